package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/audit"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/specialists"
)

// scriptedManager plays back canned manager outputs in order.
type scriptedManager struct {
	outputs []string
	calls   int
}

func (m *scriptedManager) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if m.calls >= len(m.outputs) {
		return nil, fmt.Errorf("scripted manager exhausted after %d calls", m.calls)
	}
	out := m.outputs[m.calls]
	m.calls++
	return schema.AssistantMessage(out, nil), nil
}

func (m *scriptedManager) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	resp, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	sr, sw := schema.Pipe[*schema.Message](1)
	sw.Send(resp, nil)
	sw.Close()
	return sr, nil
}

// blockingManager parks until the caller cancels.
type blockingManager struct{}

func (m *blockingManager) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *blockingManager) Stream(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func decisionJSON(decision, message, explanation string) string {
	return fmt.Sprintf(`{"decision":%q,"message":%q,"explanation":%q}`, decision, message, explanation)
}

// fakeQuery merges a canned data result, optionally failing its first pass.
type fakeQuery struct {
	failFirst bool
	err       error
	calls     int
}

func (f *fakeQuery) Name() string { return "teradata" }

func (f *fakeQuery) Execute(_ context.Context, st *model.RunState) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.failFirst && f.calls == 1 {
		(&model.QueryOutcome{Success: false, ErrorNote: "query timed out after 2m0s"}).Merge(st)
		return nil
	}
	(&model.QueryOutcome{
		Result:     "There are 42 customers.",
		SQLQueries: "\n\n**SQL Commands:**\n```sql\nSELECT COUNT(*) FROM customers;\n```",
		Success:    true,
	}).Merge(st)
	return nil
}

// fakePlot writes a real artifact file, mimicking a successful chart pass.
type fakePlot struct {
	dir   string
	calls int
}

func (f *fakePlot) Name() string { return "plot" }

func (f *fakePlot) Execute(_ context.Context, st *model.RunState) error {
	f.calls++
	path := filepath.Join(f.dir, fmt.Sprintf("chart_%d.png", f.calls))
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		return err
	}
	(&model.PlotOutcome{
		Description:  "Bar chart of customers per region.",
		ArtifactPath: path,
		Success:      true,
	}).Merge(st)
	return nil
}

func newOrchestrator(manager einomodel.BaseChatModel, maxIterations int, reg *specialists.Registry, sink audit.Sink) *Orchestrator {
	return New(Config{
		ManagerModel:     manager,
		ManagerModelName: "scripted",
		Registry:         reg,
		MaxIterations:    maxIterations,
		AuditSink:        sink,
	})
}

func TestRunQueryThenDone(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("Teradata_Query", "", "need the customer count"),
		decisionJSON("done", "There are 42 customers.", "count retrieved"),
	}}
	query := &fakeQuery{}
	reg := specialists.NewRegistry()
	reg.Register(model.DecisionQuery, query)

	sink := audit.NewMemorySink()
	orch := newOrchestrator(manager, 8, reg, sink)

	res := orch.Run(context.Background(), "how many customers do we have?")

	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Equal(t, "There are 42 customers.", res.Response)
	assert.Equal(t, 1, query.calls)
	assert.Equal(t, 2, res.Iterations)
	assert.False(t, res.IsPlot)
	assert.Contains(t, res.SQLQueries, "SELECT COUNT(*) FROM customers;")
	assert.Empty(t, res.Errors)

	ids := sink.RunIDs()
	require.Len(t, ids, 1)
	trail := sink.Entries(ids[0])
	require.Len(t, trail, 2)
	assert.Equal(t, model.DecisionQuery, trail[0].Decision)
	assert.Equal(t, model.DecisionDone, trail[1].Decision)
}

func TestRunQueryPlotThenDone(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("teradata", "", "fetch the data first"),
		decisionJSON("plot", "", "now chart it"),
		decisionJSON("done", "Here is your chart of customers per region.", "chart produced"),
	}}
	reg := specialists.NewRegistry()
	reg.Register(model.DecisionQuery, &fakeQuery{})
	plot := &fakePlot{dir: t.TempDir()}
	reg.Register(model.DecisionPlot, plot)

	orch := newOrchestrator(manager, 8, reg, nil)
	res := orch.Run(context.Background(), "plot customers per region")

	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.True(t, res.IsPlot)
	assert.FileExists(t, res.ArtifactPath)
	assert.Equal(t, "Here is your chart of customers per region.", res.Response)
	assert.Equal(t, "Bar chart of customers per region.", res.PlotAgentResponse)
}

func TestRunMalformedDecisionsHitBound(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		"I think we should maybe look at the data?",
		"```\nnot even json\n```",
		"{\"verdict\":\"hmm\"}",
	}}
	orch := newOrchestrator(manager, 3, specialists.NewRegistry(), nil)

	res := orch.Run(context.Background(), "do something")

	assert.Equal(t, model.RunTruncated, res.Status)
	assert.Equal(t, 3, res.Iterations, "each malformed pass consumes one iteration")
	require.Len(t, res.Errors, 3)
	for _, e := range res.Errors {
		assert.Contains(t, e, "unparseable")
	}
	assert.Equal(t, model.FallbackResponse, res.Response)
}

func TestRunSpecialistFailureIsNoteNotFault(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("teradata", "", "first attempt"),
		decisionJSON("teradata", "", "retry the query"),
		decisionJSON("done", "Got it on the second attempt: 42 customers.", ""),
	}}
	query := &fakeQuery{failFirst: true}
	reg := specialists.NewRegistry()
	reg.Register(model.DecisionQuery, query)

	orch := newOrchestrator(manager, 8, reg, nil)
	res := orch.Run(context.Background(), "how many customers?")

	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Equal(t, 2, query.calls)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "query timed out")
	assert.Equal(t, "Got it on the second attempt: 42 customers.", res.Response)
}

func TestRunCancellation(t *testing.T) {
	orch := newOrchestrator(&blockingManager{}, 8, specialists.NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := orch.Run(ctx, "anything")
	elapsed := time.Since(start)

	assert.Equal(t, model.RunCancelled, res.Status)
	assert.Equal(t, model.CancelledResponse, res.Response)
	assert.Less(t, elapsed, 2*time.Second, "cancellation must interrupt a stalled model call")
}

func TestRunBackendLossFailsRun(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("teradata", "", "fetch data"),
	}}
	reg := specialists.NewRegistry()
	reg.Register(model.DecisionQuery, &fakeQuery{err: errx.WrapBackend(errors.New("broken pipe"))})

	orch := newOrchestrator(manager, 8, reg, nil)
	res := orch.Run(context.Background(), "how many customers?")

	assert.Equal(t, model.RunFailed, res.Status)
	assert.Equal(t, model.FallbackResponse, res.Response)
	require.NotEmpty(t, res.Errors)
}

func TestRunEmptyQuestion(t *testing.T) {
	manager := &scriptedManager{}
	orch := newOrchestrator(manager, 8, specialists.NewRegistry(), nil)

	res := orch.Run(context.Background(), "   ")

	assert.Equal(t, model.RunFailed, res.Status)
	assert.Equal(t, 0, res.Iterations, "an empty question never consumes an iteration")
	assert.Equal(t, 0, manager.calls)
}

func TestRunDoneImmediately(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("done", "Hello! Ask me about your data.", "greeting needs no specialist"),
	}}
	orch := newOrchestrator(manager, 8, specialists.NewRegistry(), nil)

	res := orch.Run(context.Background(), "hi")

	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "Hello! Ask me about your data.", res.Response)
}

func TestRunDoneOnLastAllowedIteration(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("teradata", "", ""),
		decisionJSON("teradata", "", ""),
		decisionJSON("done", "final answer", ""),
	}}
	reg := specialists.NewRegistry()
	reg.Register(model.DecisionQuery, &fakeQuery{})

	orch := newOrchestrator(manager, 3, reg, nil)
	res := orch.Run(context.Background(), "q")

	assert.Equal(t, model.RunCompleted, res.Status, "an explicit done at the bound still completes")
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "final answer", res.Response)
}

func TestRunTruncationKeepsSpecialistOutput(t *testing.T) {
	manager := &scriptedManager{outputs: []string{
		decisionJSON("teradata", "", ""),
		decisionJSON("teradata", "", ""),
	}}
	reg := specialists.NewRegistry()
	reg.Register(model.DecisionQuery, &fakeQuery{})

	orch := newOrchestrator(manager, 2, reg, nil)
	res := orch.Run(context.Background(), "q")

	assert.Equal(t, model.RunTruncated, res.Status)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, "There are 42 customers.", res.Response, "truncated runs fall back to the latest specialist output")
	assert.NotEmpty(t, res.Explanation)
}
