package specialists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/prompts"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// TeradataSpecialist answers data questions by driving a tool-bound chat model
// against the Teradata MCP backend. One Execute call is one bounded
// generate/tool loop; SQL surfaced by tool observations is collected into the
// shared state alongside the natural-language answer.
type TeradataSpecialist struct {
	chatModel einomodel.BaseChatModel
	tools     ToolInvoker
	cfg       *model.TeradataModelConfig
	timeout   time.Duration
}

func NewTeradataSpecialist(chatModel einomodel.BaseChatModel, tools ToolInvoker, cfg *model.TeradataModelConfig, timeout time.Duration) *TeradataSpecialist {
	return &TeradataSpecialist{
		chatModel: chatModel,
		tools:     tools,
		cfg:       cfg,
		timeout:   timeout,
	}
}

func (s *TeradataSpecialist) Name() string {
	return "teradata"
}

// Execute runs the query loop and merges a QueryOutcome into the state.
// Only unrecoverable conditions (backend unreachable, caller cancellation)
// return an error; everything else becomes a failure note in the state.
func (s *TeradataSpecialist) Execute(ctx context.Context, st *model.RunState) error {
	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	system, err := prompts.RenderTeradataSystem(cctx, s.cfg)
	if err != nil {
		(&model.QueryOutcome{Success: false, ErrorNote: err.Error()}).Merge(st)
		return nil
	}

	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(st.UserQuery),
	}

	var sqlQueries []string
	for i := 0; i < s.cfg.MaxToolCalls; i++ {
		resp, genErr := s.chatModel.Generate(cctx, msgs)
		if genErr != nil {
			return s.mergeGenerateFailure(ctx, cctx, st, genErr, sqlQueries)
		}

		if len(resp.ToolCalls) == 0 {
			(&model.QueryOutcome{
				Result:     resp.Content,
				SQLQueries: formatSQL(sqlQueries),
				Success:    true,
			}).Merge(st)
			return nil
		}

		msgs = append(msgs, resp)
		for j, tc := range resp.ToolCalls {
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", j)
			}
			logx.Debug().
				Str("component", "teradata_specialist").
				Str("tool", tc.Function.Name).
				Msg("Invoking backend tool")

			obs, invErr := s.tools.Invoke(cctx, tc.Function.Name, tc.Function.Arguments)
			if invErr != nil {
				if errors.Is(invErr, errx.ErrBackendUnreachable) {
					return invErr
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				obs = fmt.Sprintf(`{"status":"error","message":%q}`, invErr.Error())
			}
			if sql, ok := extractSQL(obs); ok {
				sqlQueries = append(sqlQueries, sql)
			}
			msgs = append(msgs, schema.ToolMessage(obs, id))
		}
	}

	// Tool budget spent; ask for a final answer from what was gathered.
	msgs = append(msgs, schema.UserMessage(
		"You have reached the tool call limit. Summarize the best answer you can from the results gathered so far, without calling any more tools."))
	resp, genErr := s.chatModel.Generate(cctx, msgs)
	if genErr != nil {
		return s.mergeGenerateFailure(ctx, cctx, st, genErr, sqlQueries)
	}
	(&model.QueryOutcome{
		Result:     resp.Content,
		SQLQueries: formatSQL(sqlQueries),
		Success:    true,
	}).Merge(st)
	return nil
}

// mergeGenerateFailure classifies a model failure. Caller cancellation and
// backend loss propagate; the specialist's own deadline and transient model
// errors fold into the state.
func (s *TeradataSpecialist) mergeGenerateFailure(ctx, cctx context.Context, st *model.RunState, err error, sqlQueries []string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, errx.ErrBackendUnreachable) {
		return err
	}
	note := err.Error()
	if cctx.Err() != nil {
		note = fmt.Sprintf("query timed out after %s", s.timeout)
	}
	logx.Warn().
		Str("component", "teradata_specialist").
		Err(err).
		Msg("Data query failed")
	(&model.QueryOutcome{
		SQLQueries: formatSQL(sqlQueries),
		Success:    false,
		ErrorNote:  note,
	}).Merge(st)
	return nil
}

// extractSQL pulls the executed SQL out of a backend tool observation. The
// backend reports {"status":..., "results":..., "metadata":{"sql":...}}.
func extractSQL(observation string) (string, bool) {
	var payload struct {
		Metadata struct {
			SQL string `json:"sql"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(observation), &payload); err != nil {
		return "", false
	}
	sql := strings.TrimSpace(payload.Metadata.SQL)
	return sql, sql != ""
}

// formatSQL renders collected statements as a markdown section for the state.
func formatSQL(queries []string) string {
	if len(queries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n**SQL Commands:**\n```sql\n")
	for _, q := range queries {
		b.WriteString(q)
		if !strings.HasSuffix(q, ";") {
			b.WriteString(";")
		}
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String()
}
