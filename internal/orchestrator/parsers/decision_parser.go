package parsers

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxErrSnippet = 200       // limit diagnostic snippet size
)

// ManagerDecision is the parsed form of the decision capability's output.
// Decision is always one of the enumerated values; unparseable output maps to
// DecisionUnknown, never silently to DecisionDone.
type ManagerDecision struct {
	Decision    model.Decision
	Message     string
	Explanation string
	Raw         string // trimmed snippet of the raw output, for diagnostics
}

type decisionPayload struct {
	Decision    string `json:"decision"`
	Message     string `json:"message"`
	Explanation string `json:"explanation"`
}

// ParseManagerDecision parses the raw model output. The expected shape is a
// JSON object {"decision","message","explanation"}, possibly wrapped in a
// markdown code fence; as a fallback the decision keyword is looked up in the
// raw text. Anything that fails both paths becomes DecisionUnknown.
func ParseManagerDecision(content string) *ManagerDecision {
	truncated := false
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "decision_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = truncateRunes(content, maxContentLen)
		truncated = true
	}

	out := &ManagerDecision{
		Decision: model.DecisionUnknown,
		Raw:      safeSnippet(content),
	}

	if payload, ok := extractJSON(content); ok {
		out.Message = strings.TrimSpace(payload.Message)
		out.Explanation = strings.TrimSpace(payload.Explanation)
		if d, ok := matchDecision(payload.Decision); ok {
			out.Decision = d
			return out
		}
	}

	// Keyword fallback over the whole output; the JSON path either failed or
	// produced an unrecognized decision field.
	if d, ok := matchDecision(content); ok {
		out.Decision = d
		if out.Message == "" {
			out.Message = strings.TrimSpace(stripFences(content))
		}
		return out
	}

	if truncated {
		logx.Debug().Str("component", "decision_parser").Msg("unparseable decision after truncation")
	}
	return out
}

// extractJSON pulls the outermost JSON object out of the content, tolerating
// ```json fences and surrounding prose.
func extractJSON(content string) (*decisionPayload, bool) {
	content = stripFences(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, false
	}
	if strings.TrimSpace(payload.Decision) == "" {
		return nil, false
	}
	return &payload, true
}

// matchDecision maps free text to a routing decision by keyword containment,
// checked in the original routing order: teradata, plot, done.
func matchDecision(s string) (model.Decision, bool) {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "teradata"):
		return model.DecisionQuery, true
	case strings.Contains(s, "plot"):
		return model.DecisionPlot, true
	case strings.Contains(s, "done"):
		return model.DecisionDone, true
	}
	return model.DecisionUnknown, false
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return s
}

func safeSnippet(s string) string {
	return truncateRunes(strings.TrimSpace(s), maxErrSnippet)
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
