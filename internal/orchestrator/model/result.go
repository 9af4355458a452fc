package model

// RunStatus classifies how a run ended.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunTruncated RunStatus = "truncated"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

const (
	// FallbackResponse is the user-safe answer when a run fails internally.
	FallbackResponse = "I wasn't able to complete that request."
	// CancelledResponse is returned when the caller aborts the run.
	CancelledResponse = "The request was cancelled before it finished."
)

// FinalResult is the sole output of one orchestration run. The presentation
// layer never observes a raw fault; every exit path is folded into this.
type FinalResult struct {
	Status      RunStatus `json:"status"`
	Response    string    `json:"response"`
	Explanation string    `json:"explanation,omitempty"`

	IsPlot            bool   `json:"is_plot"`
	ArtifactPath      string `json:"artifact_path,omitempty"`
	PlotAgentResponse string `json:"plot_agent_response,omitempty"`
	TDAgentResponse   string `json:"td_agent_response,omitempty"`
	SQLQueries        string `json:"sql_queries,omitempty"`

	Iterations int      `json:"iterations"`
	Errors     []string `json:"errors,omitempty"`
}

// ResultFromState assembles the FinalResult for the given exit status. The
// response is best-effort: a truncated run falls back to the latest
// specialist output, a failed run to the safe fallback text.
func ResultFromState(s *RunState, status RunStatus) *FinalResult {
	res := &FinalResult{
		Status:            status,
		Explanation:       s.Explanation,
		IsPlot:            s.IsPlot,
		ArtifactPath:      s.ArtifactPath,
		PlotAgentResponse: s.PlotAgentResponse,
		TDAgentResponse:   s.TDAgentResponse,
		SQLQueries:        s.SQLQueries,
		Iterations:        s.IterationCount,
	}
	res.Errors = append(res.Errors, s.Errs...)

	switch status {
	case RunCompleted:
		res.Response = s.Response
		if res.Response == "" {
			res.Response = s.LatestSpecialistOutput()
		}
		if res.Response == "" {
			res.Response = FallbackResponse
		}
	case RunTruncated:
		res.Response = s.LatestSpecialistOutput()
		if res.Response == "" {
			res.Response = FallbackResponse
		}
		if res.Explanation == "" {
			res.Explanation = "run stopped at the iteration bound before a final answer was reached"
		}
	case RunCancelled:
		res.Response = CancelledResponse
	default:
		res.Response = FallbackResponse
	}

	return res
}
