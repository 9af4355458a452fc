package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/OmarSamirz/NextBI/internal/artifacts"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/prompts"
	"github.com/OmarSamirz/NextBI/internal/sandbox"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// RunPythonToolName is the single tool exposed to the visualization model.
const RunPythonToolName = "run_python"

// PlotToolInfos describes the sandbox tool for model binding.
func PlotToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: RunPythonToolName,
			Desc: "Execute a Python snippet that generates a chart. The snippet must save the chart to the path in the NEXTBI_CHART_PATH environment variable.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"code": {
					Type:     schema.String,
					Desc:     "Complete, self-contained Python plotting code.",
					Required: true,
				},
			}),
		},
	}
}

// PlotSpecialist produces chart artifacts from already-fetched data. The
// chat model writes plotting code; the sandbox runs it; success is judged by
// the artifact actually landing on disk, never by the code merely running.
type PlotSpecialist struct {
	chatModel einomodel.BaseChatModel
	exec      sandbox.Executor
	store     *artifacts.Store
	cfg       *model.PlotModelConfig
	timeout   time.Duration
}

func NewPlotSpecialist(chatModel einomodel.BaseChatModel, exec sandbox.Executor, store *artifacts.Store, cfg *model.PlotModelConfig, timeout time.Duration) *PlotSpecialist {
	return &PlotSpecialist{
		chatModel: chatModel,
		exec:      exec,
		store:     store,
		cfg:       cfg,
		timeout:   timeout,
	}
}

func (s *PlotSpecialist) Name() string {
	return "plot"
}

// Execute runs the plotting loop and merges a PlotOutcome into the state.
func (s *PlotSpecialist) Execute(ctx context.Context, st *model.RunState) error {
	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	artifact := s.store.ChartPath(st.RunID)

	system, err := prompts.RenderPlotSystem(cctx, artifact)
	if err != nil {
		(&model.PlotOutcome{Success: false, ErrorNote: err.Error()}).Merge(st)
		return nil
	}

	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(plotUserContent(st)),
	}

	for i := 0; i < s.cfg.MaxToolCalls; i++ {
		resp, genErr := s.chatModel.Generate(cctx, msgs)
		if genErr != nil {
			return s.mergeGenerateFailure(ctx, cctx, st, genErr)
		}

		if len(resp.ToolCalls) == 0 {
			s.mergeFinal(st, artifact, resp.Content)
			return nil
		}

		msgs = append(msgs, resp)
		for j, tc := range resp.ToolCalls {
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", j)
			}
			obs, toolErr := s.runTool(cctx, tc.Function.Name, tc.Function.Arguments, artifact, st)
			if toolErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return toolErr
			}
			msgs = append(msgs, schema.ToolMessage(obs, id))
		}
	}

	// Tool budget spent; judge by what is on disk.
	s.mergeFinal(st, artifact, "")
	return nil
}

// runTool executes one tool call. Unknown tools and failed snippets come back
// as observations for the model; only an unavailable sandbox is an error.
func (s *PlotSpecialist) runTool(ctx context.Context, name, argsJSON, artifact string, st *model.RunState) (string, error) {
	if name != RunPythonToolName {
		return fmt.Sprintf(`{"status":"error","message":"unknown tool %q, only %s is available"}`, name, RunPythonToolName), nil
	}

	var args struct {
		Code string `json:"code"`
	}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf(`{"status":"error","message":"invalid tool arguments: %s"}`, err.Error()), nil
		}
	}

	logx.Debug().
		Str("component", "plot_specialist").
		Int("code_len", len(args.Code)).
		Msg("Executing plotting code")

	res, err := s.exec.Execute(ctx, &sandbox.ExecRequest{
		Code:         args.Code,
		ArtifactPath: artifact,
		Data:         st.TDAgentResponse,
	})
	if err != nil {
		// sandbox unavailable or caller cancellation, both unrecoverable
		return "", err
	}

	status := "ok"
	if !res.Success() {
		status = "error"
	}
	obs, mErr := json.Marshal(map[string]any{
		"status":         status,
		"exit_code":      res.ExitCode,
		"stdout":         res.Stdout,
		"stderr":         res.Stderr,
		"chart_written":  s.store.Exists(artifact),
		"chart_expected": artifact,
	})
	if mErr != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, mErr.Error()), nil
	}
	return string(obs), nil
}

// mergeFinal decides success by artifact presence.
func (s *PlotSpecialist) mergeFinal(st *model.RunState, artifact, description string) {
	if s.store.Exists(artifact) {
		if description == "" {
			description = fmt.Sprintf("Chart saved to %s.", artifact)
		}
		(&model.PlotOutcome{
			Description:  description,
			ArtifactPath: artifact,
			Success:      true,
		}).Merge(st)
		return
	}
	note := "no chart artifact was produced"
	logx.Warn().
		Str("component", "plot_specialist").
		Str("expected", artifact).
		Msg("Plot pass finished without an artifact")
	(&model.PlotOutcome{
		Description: description,
		Success:     false,
		ErrorNote:   note,
	}).Merge(st)
}

func (s *PlotSpecialist) mergeGenerateFailure(ctx, cctx context.Context, st *model.RunState, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	note := err.Error()
	if cctx.Err() != nil {
		note = fmt.Sprintf("plotting timed out after %s", s.timeout)
	}
	logx.Warn().
		Str("component", "plot_specialist").
		Err(err).
		Msg("Plot generation failed")
	(&model.PlotOutcome{Success: false, ErrorNote: note}).Merge(st)
	return nil
}

// plotUserContent hands the model the question plus whatever data the
// data-query specialist already produced this run.
func plotUserContent(st *model.RunState) string {
	content := "User Query:\n" + st.UserQuery
	if st.TDAgentResponse != "" {
		content += "\n\nData to visualize:\n" + st.TDAgentResponse
	}
	return content
}
