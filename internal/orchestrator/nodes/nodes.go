package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/parsers"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/prompts"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/specialists"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// Node names used across the graph definition.
const (
	NodeManagerContext   = "ManagerContext"
	NodeManagerChatModel = "ManagerChatModel"
	NodeDecisionParser   = "DecisionParser"
	NodeTeradata         = "TeradataSpecialist"
	NodePlot             = "PlotSpecialist"
	NodeFinalize         = "Finalize"
)

// NewManagerContextPreHandler counts manager passes. The counter increments
// exactly once per pass, before the context is assembled, so it is accurate
// even when the pass later fails.
func NewManagerContextPreHandler() func(context.Context, *model.Turn, *model.RunState) (*model.Turn, error) {
	return func(ctx context.Context, in *model.Turn, s *model.RunState) (*model.Turn, error) {
		s.IterationCount++
		logx.Debug().
			Str("run_id", s.RunID).
			Int("iteration", s.IterationCount).
			Msg("Starting manager pass")
		return in, nil
	}
}

// NewManagerContextNode assembles the decision context for the manager model:
// the system prompt plus the question and whatever the specialists have
// produced so far this run.
func NewManagerContextNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Turn) ([]*schema.Message, error) {
		var content string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.RunState) error {
			content = BuildManagerInput(s)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderManagerSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render manager system prompt: %w", err)
		}

		messages := []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(content),
		}

		return messages, nil
	})
}

// BuildManagerInput renders the decision context from the run state. Only
// populated sections appear, so the first pass is just the question.
func BuildManagerInput(s *model.RunState) string {
	var b strings.Builder
	b.WriteString("User Query:\n")
	b.WriteString(s.UserQuery)
	if s.TDAgentResponse != "" {
		b.WriteString("\n\nTeradata Agent Response:\n")
		b.WriteString(s.TDAgentResponse)
	}
	if s.PlotAgentResponse != "" {
		b.WriteString("\n\nPlot Agent Response:\n")
		b.WriteString(s.PlotAgentResponse)
	}
	return b.String()
}

// NewManagerChatModelPostHandler records the raw manager output on the
// transcript before parsing.
func NewManagerChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.RunState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *model.RunState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("manager model returned nil message")
		}
		s.AppendMessage(string(schema.Assistant), out.Content)
		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			logx.Debug().
				Str("run_id", s.RunID).
				Str("node", NodeManagerChatModel).
				Str("model", modelName).
				Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
				Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
				Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
				Msg("LLM usage")
		}
		return out, nil
	}
}

// NewDecisionParserNode converts the raw manager output into a routing Turn.
// Parsing never fails; malformed output comes out as DecisionUnknown.
func NewDecisionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (*model.Turn, error) {
		if resp == nil {
			logx.Error().Msg("Decision parser received nil message")
			return &model.Turn{Decision: model.DecisionUnknown}, nil
		}
		parsed := parsers.ParseManagerDecision(resp.Content)
		turn := &model.Turn{
			Decision:    parsed.Decision,
			Message:     parsed.Message,
			Explanation: parsed.Explanation,
		}
		if turn.Decision == model.DecisionUnknown && turn.Message == "" {
			turn.Message = parsed.Raw
		}
		return turn, nil
	})
}

// NewDecisionParserPostHandler merges the parsed verdict into the state. The
// final response is written only on an explicit DONE; an unparseable pass is
// logged as an error and otherwise leaves prior results untouched.
func NewDecisionParserPostHandler() func(context.Context, *model.Turn, *model.RunState) (*model.Turn, error) {
	return func(ctx context.Context, out *model.Turn, s *model.RunState) (*model.Turn, error) {
		s.Decision = out.Decision
		s.Explanation = out.Explanation

		switch out.Decision {
		case model.DecisionDone:
			s.Response = out.Message
		case model.DecisionUnknown:
			s.AppendError(fmt.Sprintf("manager: unparseable decision output: %s", out.Message))
			logx.Warn().
				Str("run_id", s.RunID).
				Int("iteration", s.IterationCount).
				Msg("Manager produced an unparseable decision")
		}

		s.RecordDecision()

		logx.Debug().
			Str("run_id", s.RunID).
			Str("decision", s.Decision.String()).
			Int("iteration", s.IterationCount).
			Msg("Manager decision recorded")
		return out, nil
	}
}

// NewDecisionRouteCondition routes the parsed decision. Order matters: an
// explicit DONE always finishes, then the iteration bound is enforced, then
// specialists are dispatched. UNKNOWN loops back for another manager pass and
// never finishes the run on its own.
func NewDecisionRouteCondition(maxIterations int) func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, input *model.Turn) (string, error) {
		if input.Decision.Terminal() {
			logx.Debug().Msg("Routing to Finalize - manager signalled done")
			return NodeFinalize, nil
		}

		var bound bool
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.RunState) error {
			if s.IterationCount >= maxIterations {
				s.Truncated = true
				bound = true
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		if bound {
			logx.Warn().Int("max_iterations", maxIterations).Msg("Routing to Finalize - iteration bound reached")
			return NodeFinalize, nil
		}

		switch input.Decision {
		case model.DecisionQuery:
			logx.Debug().Msg("Routing to Teradata specialist")
			return NodeTeradata, nil
		case model.DecisionPlot:
			logx.Debug().Msg("Routing to Plot specialist")
			return NodePlot, nil
		}

		logx.Debug().Msg("Routing back to manager - decision unknown")
		return NodeManagerContext, nil
	}
}

// NewSpecialistNode wraps a registry dispatch as a graph node. The specialist
// mutates the state; the Turn going back to the manager only carries the
// question.
func NewSpecialistNode(registry *specialists.Registry, decision model.Decision) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.Turn) (*model.Turn, error) {
		err := compose.ProcessState(ctx, func(sctx context.Context, s *model.RunState) error {
			return registry.Dispatch(sctx, decision, s)
		})
		if err != nil {
			return nil, err
		}
		return &model.Turn{Query: in.Query}, nil
	})
}

// NewFinalizeNode assembles the FinalResult from the state.
func NewFinalizeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Turn) (*model.FinalResult, error) {
		var result *model.FinalResult
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.RunState) error {
			status := model.RunCompleted
			if s.Truncated {
				status = model.RunTruncated
			}
			result = model.ResultFromState(s, status)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return result, nil
	})
}
