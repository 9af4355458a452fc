package model

import "time"

// RunState is the shared mutable state threaded through one orchestration run.
// Concurrency model:
//   - The loop driver creates one RunState per Run call and registers it as
//     Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers
//     (WithStatePreHandler, WithStatePostHandler) or compose.ProcessState,
//     which serialize access within a run.
//   - Execution within a run is strictly sequential, so mutations from one
//     pass are fully visible to the next decision.
//   - A RunState is never shared across concurrent Run calls and is discarded
//     once the FinalResult has been assembled.
type RunState struct {
	RunID     string
	UserQuery string // immutable once set

	Decision    Decision // set by the manager each pass
	Explanation string   // manager rationale for the latest decision
	Response    string   // user-facing final answer, populated on DecisionDone

	TDAgentResponse   string // last data-query specialist output, overwritten on re-dispatch
	PlotAgentResponse string // last visualization specialist output
	SQLQueries        string // markdown block of SQL surfaced by backend tool calls
	IsPlot            bool   // true only after a confirmed chart artifact write
	ArtifactPath      string // chart location when IsPlot is true

	IterationCount int  // incremented exactly once per manager pass
	Truncated      bool // set when the iteration bound forces termination

	Errs     []string    // append-only failure log, never cleared
	Messages []ChatEntry // per-run transcript of manager entries
	Audit    []AuditEntry
}

// ChatEntry is one line of the per-run transcript.
type ChatEntry struct {
	Role    string
	Content string
}

// AuditEntry records one manager decision for observability. It is internal
// and never part of the user-facing result.
type AuditEntry struct {
	Iteration   int       `json:"iteration"`
	Decision    Decision  `json:"decision"`
	Explanation string    `json:"explanation,omitempty"`
	At          time.Time `json:"at"`
}

// NewRunState initializes the state for a fresh run. Every field other than
// the identifiers starts at its empty default.
func NewRunState(runID, userQuery string) *RunState {
	return &RunState{
		RunID:     runID,
		UserQuery: userQuery,
		Decision:  DecisionUnknown,
	}
}

// AppendError records a specialist or manager failure. The log is append-only.
func (s *RunState) AppendError(msg string) {
	if msg == "" {
		return
	}
	s.Errs = append(s.Errs, msg)
}

// AppendMessage adds a transcript entry for the given role.
func (s *RunState) AppendMessage(role, content string) {
	if content == "" {
		return
	}
	s.Messages = append(s.Messages, ChatEntry{Role: role, Content: content})
}

// RecordDecision appends an audit entry for the current pass.
func (s *RunState) RecordDecision() {
	s.Audit = append(s.Audit, AuditEntry{
		Iteration:   s.IterationCount,
		Decision:    s.Decision,
		Explanation: s.Explanation,
		At:          time.Now().UTC(),
	})
}

// LatestSpecialistOutput returns the most recent non-empty specialist output,
// preferring the visualization response over the data response. Used for
// best-effort answers when the manager never reached DecisionDone.
func (s *RunState) LatestSpecialistOutput() string {
	if s.PlotAgentResponse != "" {
		return s.PlotAgentResponse
	}
	return s.TDAgentResponse
}

// Turn is the value passed along graph edges. All substantial data lives in
// RunState; the Turn only carries the parsed verdict of the latest manager
// pass to the routing branch.
type Turn struct {
	Query       string
	Decision    Decision
	Message     string
	Explanation string
}
