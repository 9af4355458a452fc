// Package driver owns the public entry point of an orchestration run. It
// builds the loop graph per run, classifies every exit path, and guarantees
// the caller always receives a FinalResult, never a raw fault.
package driver

import (
	"context"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/audit"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/graph"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/observers"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/specialists"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

const auditFlushTimeout = 5 * time.Second

// Orchestrator runs questions through the manager/specialist loop.
type Orchestrator struct {
	managerModel  einomodel.BaseChatModel
	managerName   string
	registry      *specialists.Registry
	maxIterations int
	sink          audit.Sink
}

// Config assembles an Orchestrator.
type Config struct {
	ManagerModel     einomodel.BaseChatModel
	ManagerModelName string
	Registry         *specialists.Registry
	MaxIterations    int
	AuditSink        audit.Sink
}

func New(cfg Config) *Orchestrator {
	sink := cfg.AuditSink
	if sink == nil {
		sink = audit.NewMemorySink()
	}
	return &Orchestrator{
		managerModel:  cfg.ManagerModel,
		managerName:   cfg.ManagerModelName,
		registry:      cfg.Registry,
		maxIterations: cfg.MaxIterations,
		sink:          sink,
	}
}

// Run executes one orchestration loop for the question. It never returns an
// error: every failure mode is classified and folded into the FinalResult.
func (o *Orchestrator) Run(ctx context.Context, question string) *model.FinalResult {
	question = strings.TrimSpace(question)
	if question == "" {
		st := model.NewRunState(uuid.NewString(), question)
		st.AppendError("driver: empty question")
		return model.ResultFromState(st, model.RunFailed)
	}

	st := model.NewRunState(uuid.NewString(), question)
	logx.Info().
		Str("run_id", st.RunID).
		Str("question", question).
		Msg("Run started")

	result := o.invoke(ctx, st)

	o.flushAudit(st)

	logx.Info().
		Str("run_id", st.RunID).
		Str("status", string(result.Status)).
		Int("iterations", result.Iterations).
		Bool("is_plot", result.IsPlot).
		Int("error_count", len(result.Errors)).
		Msg("Run finished")
	return result
}

// invoke compiles the graph around this run's state and executes it. The
// driver holds the state pointer, so aborted invocations still yield a
// best-effort result from everything merged before the fault.
func (o *Orchestrator) invoke(ctx context.Context, st *model.RunState) *model.FinalResult {
	runnable, err := graph.Build(ctx, &graph.Config{
		ManagerModel:     o.managerModel,
		ManagerModelName: o.managerName,
		Registry:         o.registry,
		MaxIterations:    o.maxIterations,
	}, st)
	if err != nil {
		logx.Error().Err(err).Str("run_id", st.RunID).Msg("Failed to build loop graph")
		st.AppendError("driver: " + err.Error())
		return model.ResultFromState(st, model.RunFailed)
	}

	out, err := runnable.Invoke(ctx, &model.Turn{Query: st.UserQuery},
		compose.WithCallbacks(observers.NewAllCallbacks()),
	)
	if err != nil {
		if ctx.Err() != nil {
			logx.Warn().Str("run_id", st.RunID).Msg("Run cancelled by caller")
			return model.ResultFromState(st, model.RunCancelled)
		}
		logx.Error().Err(err).Str("run_id", st.RunID).Msg("Run failed")
		st.AppendError(err.Error())
		return model.ResultFromState(st, model.RunFailed)
	}
	if out == nil {
		st.AppendError("driver: graph returned no result")
		return model.ResultFromState(st, model.RunFailed)
	}
	return out
}

// flushAudit persists the decision trail. The run's own context may already
// be done, so the flush gets its own deadline; a failed flush is logged and
// never affects the result.
func (o *Orchestrator) flushAudit(st *model.RunState) {
	if len(st.Audit) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditFlushTimeout)
	defer cancel()
	if err := o.sink.Append(ctx, st.RunID, st.Audit); err != nil {
		logx.Error().Err(err).Str("run_id", st.RunID).Msg("Failed to persist audit trail")
	}
}
