package specialists

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
)

// scriptedModel returns canned responses in order, then an error.
type scriptedModel struct {
	responses []*schema.Message
	calls     int
	err       error
}

func (m *scriptedModel) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.responses) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", m.calls)
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	resp, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	sr, sw := schema.Pipe[*schema.Message](1)
	sw.Send(resp, nil)
	sw.Close()
	return sr, nil
}

type fakeInvoker struct {
	invoke func(ctx context.Context, name, argsJSON string) (string, error)
	calls  []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	f.calls = append(f.calls, name)
	return f.invoke(ctx, name, argsJSON)
}

func assistantToolCall(name, args string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "tc-1", Function: schema.FunctionCall{Name: name, Arguments: args}},
		},
	}
}

func tdConfig() *model.TeradataModelConfig {
	return &model.TeradataModelConfig{MaxToolCalls: 4, DatabaseName: "demo_db"}
}

func TestTeradataSpecialistDirectAnswer(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		schema.AssistantMessage("There are 42 customers.", nil),
	}}
	spec := NewTeradataSpecialist(chatModel, &fakeInvoker{}, tdConfig(), time.Minute)

	st := model.NewRunState("run-1", "how many customers?")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.Equal(t, "There are 42 customers.", st.TDAgentResponse)
	assert.Empty(t, st.SQLQueries)
	assert.Empty(t, st.Errs)
}

func TestTeradataSpecialistCollectsSQL(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall("base_readQuery", `{"sql":"SELECT COUNT(*) FROM customers"}`),
		schema.AssistantMessage("42 customers found.", nil),
	}}
	invoker := &fakeInvoker{
		invoke: func(_ context.Context, _, _ string) (string, error) {
			return `{"status":"ok","results":[[42]],"metadata":{"sql":"SELECT COUNT(*) FROM customers"}}`, nil
		},
	}
	spec := NewTeradataSpecialist(chatModel, invoker, tdConfig(), time.Minute)

	st := model.NewRunState("run-1", "how many customers?")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.Equal(t, []string{"base_readQuery"}, invoker.calls)
	assert.Equal(t, "42 customers found.", st.TDAgentResponse)
	assert.Contains(t, st.SQLQueries, "**SQL Commands:**")
	assert.Contains(t, st.SQLQueries, "SELECT COUNT(*) FROM customers;")
}

func TestTeradataSpecialistToolErrorBecomesObservation(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall("base_readQuery", `{"sql":"SELECT * FROM nope"}`),
		schema.AssistantMessage("That table does not exist.", nil),
	}}
	invoker := &fakeInvoker{
		invoke: func(_ context.Context, _, _ string) (string, error) {
			return "", errors.New("table NOPE not found")
		},
	}
	spec := NewTeradataSpecialist(chatModel, invoker, tdConfig(), time.Minute)

	st := model.NewRunState("run-1", "select from nope")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.Equal(t, "That table does not exist.", st.TDAgentResponse)
	assert.Empty(t, st.Errs, "a tool-level failure is fed back to the model, not logged as a run error")
}

func TestTeradataSpecialistBackendUnreachableEscalates(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall("base_readQuery", `{}`),
	}}
	invoker := &fakeInvoker{
		invoke: func(_ context.Context, _, _ string) (string, error) {
			return "", errx.WrapBackend(errors.New("broken pipe"))
		},
	}
	spec := NewTeradataSpecialist(chatModel, invoker, tdConfig(), time.Minute)

	st := model.NewRunState("run-1", "query")
	err := spec.Execute(context.Background(), st)

	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrBackendUnreachable)
}

func TestTeradataSpecialistModelFailureIsFailureNote(t *testing.T) {
	chatModel := &scriptedModel{err: errors.New("model overloaded")}
	spec := NewTeradataSpecialist(chatModel, &fakeInvoker{}, tdConfig(), time.Minute)

	st := model.NewRunState("run-1", "query")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err, "a transient model failure must not abort the run")
	require.Len(t, st.Errs, 1)
	assert.Contains(t, st.Errs[0], "model overloaded")
	assert.Contains(t, st.TDAgentResponse, "model overloaded")
}

func TestTeradataSpecialistCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chatModel := &scriptedModel{err: context.Canceled}
	spec := NewTeradataSpecialist(chatModel, &fakeInvoker{}, tdConfig(), time.Minute)

	st := model.NewRunState("run-1", "query")
	err := spec.Execute(ctx, st)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestTeradataSpecialistToolBudgetForcesWrapUp(t *testing.T) {
	cfg := tdConfig()
	cfg.MaxToolCalls = 2
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall("base_readQuery", `{}`),
		assistantToolCall("base_readQuery", `{}`),
		schema.AssistantMessage("Partial answer from two queries.", nil),
	}}
	invoker := &fakeInvoker{
		invoke: func(_ context.Context, _, _ string) (string, error) {
			return `{"status":"ok","metadata":{"sql":"SELECT 1"}}`, nil
		},
	}
	spec := NewTeradataSpecialist(chatModel, invoker, cfg, time.Minute)

	st := model.NewRunState("run-1", "query")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.Equal(t, 3, chatModel.calls, "two tool rounds plus one forced wrap-up")
	assert.Equal(t, "Partial answer from two queries.", st.TDAgentResponse)
	assert.Contains(t, st.SQLQueries, "SELECT 1;")
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name        string
		observation string
		want        string
		ok          bool
	}{
		{"with sql", `{"status":"ok","metadata":{"sql":"SELECT 1"}}`, "SELECT 1", true},
		{"no metadata", `{"status":"ok"}`, "", false},
		{"blank sql", `{"metadata":{"sql":"   "}}`, "", false},
		{"not json", "plain text result", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractSQL(tt.observation)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
