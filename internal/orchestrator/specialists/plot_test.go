package specialists

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarSamirz/NextBI/internal/artifacts"
	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/sandbox"
)

// fakeExecutor optionally writes the artifact, mimicking plotting code that
// saves its chart.
type fakeExecutor struct {
	writeArtifact bool
	result        *sandbox.Result
	err           error
	requests      []*sandbox.ExecRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req *sandbox.ExecRequest) (*sandbox.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.writeArtifact {
		if err := os.WriteFile(req.ArtifactPath, []byte("png-bytes"), 0o644); err != nil {
			return nil, err
		}
	}
	if f.result != nil {
		return f.result, nil
	}
	return &sandbox.Result{Stdout: "saved"}, nil
}

func plotConfig() *model.PlotModelConfig {
	return &model.PlotModelConfig{MaxToolCalls: 3}
}

func newTestStore(t *testing.T) *artifacts.Store {
	t.Helper()
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestPlotSpecialistProducesArtifact(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall(RunPythonToolName, `{"code":"plt.savefig(path)"}`),
		schema.AssistantMessage("Here is a bar chart of monthly sales.", nil),
	}}
	exec := &fakeExecutor{writeArtifact: true}
	spec := NewPlotSpecialist(chatModel, exec, newTestStore(t), plotConfig(), time.Minute)

	st := model.NewRunState("run-1", "plot monthly sales")
	st.TDAgentResponse = "Jan 10, Feb 20"
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.True(t, st.IsPlot)
	assert.FileExists(t, st.ArtifactPath)
	assert.Equal(t, "Here is a bar chart of monthly sales.", st.PlotAgentResponse)
	require.Len(t, exec.requests, 1)
	assert.Equal(t, "Jan 10, Feb 20", exec.requests[0].Data)
	assert.Equal(t, st.ArtifactPath, exec.requests[0].ArtifactPath)
}

func TestPlotSpecialistNoArtifactIsFailure(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall(RunPythonToolName, `{"code":"print('forgot to save')"}`),
		schema.AssistantMessage("Chart generated.", nil),
	}}
	exec := &fakeExecutor{writeArtifact: false}
	spec := NewPlotSpecialist(chatModel, exec, newTestStore(t), plotConfig(), time.Minute)

	st := model.NewRunState("run-1", "plot something")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.False(t, st.IsPlot, "running code is not success, only an artifact on disk is")
	assert.Empty(t, st.ArtifactPath)
	require.Len(t, st.Errs, 1)
	assert.Contains(t, st.Errs[0], "no chart artifact")
}

func TestPlotSpecialistFailedSnippetFedBackToModel(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall(RunPythonToolName, `{"code":"import nope"}`),
		schema.AssistantMessage("I could not render the chart.", nil),
	}}
	exec := &fakeExecutor{result: &sandbox.Result{Stderr: "ModuleNotFoundError: nope", ExitCode: 1}}
	spec := NewPlotSpecialist(chatModel, exec, newTestStore(t), plotConfig(), time.Minute)

	st := model.NewRunState("run-1", "plot something")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.False(t, st.IsPlot)
	assert.Equal(t, 2, chatModel.calls, "the failed execution is an observation, not a dead end")
}

func TestPlotSpecialistSandboxUnavailableEscalates(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall(RunPythonToolName, `{"code":"x"}`),
	}}
	exec := &fakeExecutor{err: errx.WrapSandbox(errors.New("python3: not found"))}
	spec := NewPlotSpecialist(chatModel, exec, newTestStore(t), plotConfig(), time.Minute)

	st := model.NewRunState("run-1", "plot something")
	err := spec.Execute(context.Background(), st)

	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrSandboxUnavailable)
}

func TestPlotSpecialistUnknownToolObservation(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall("make_chart", `{}`),
		schema.AssistantMessage("Retrying with the right tool failed.", nil),
	}}
	spec := NewPlotSpecialist(chatModel, &fakeExecutor{}, newTestStore(t), plotConfig(), time.Minute)

	st := model.NewRunState("run-1", "plot something")
	err := spec.Execute(context.Background(), st)

	require.NoError(t, err)
	assert.False(t, st.IsPlot)
}

func TestPlotToolInfos(t *testing.T) {
	infos := PlotToolInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, RunPythonToolName, infos[0].Name)
}

func TestPlotObservationShape(t *testing.T) {
	chatModel := &scriptedModel{responses: []*schema.Message{
		assistantToolCall(RunPythonToolName, `{"code":"x"}`),
		schema.AssistantMessage("done", nil),
	}}
	spec := NewPlotSpecialist(chatModel, &fakeExecutor{writeArtifact: true}, newTestStore(t), plotConfig(), time.Minute)

	st := model.NewRunState("run-1", "plot")
	obs, err := spec.runTool(context.Background(), RunPythonToolName, `{"code":"x"}`, spec.store.ChartPath(st.RunID), st)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(obs), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, true, payload["chart_written"])
}
