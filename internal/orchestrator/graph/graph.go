// Package graph composes the orchestration loop: the manager decides, a
// branch dispatches, specialists report back into shared state, and the loop
// repeats until the manager finishes, the iteration bound trips, or a
// capability is lost.
package graph

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/nodes"
	"github.com/OmarSamirz/NextBI/internal/orchestrator/specialists"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// Config holds all configuration needed to build the loop graph.
type Config struct {
	// ManagerModel makes the routing decision each pass. It is the interface
	// type so a scripted model can drive the loop in tests.
	ManagerModel     einomodel.BaseChatModel
	ManagerModelName string
	Registry         *specialists.Registry
	MaxIterations    int
}

// Builder handles the construction of the orchestration loop graph
type Builder struct {
	config *Config
	graph  *compose.Graph[*model.Turn, *model.FinalResult]
}

// Build constructs and compiles the loop graph. The caller owns the RunState:
// it is registered as graph local state, so when an invoke aborts mid-run the
// driver can still assemble a best-effort result from everything the run
// merged before the fault.
func Build(ctx context.Context, config *Config, state *model.RunState) (compose.Runnable[*model.Turn, *model.FinalResult], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ManagerModel == nil {
		return nil, fmt.Errorf("manager model is not initialized")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("specialist registry is nil")
	}
	if state == nil {
		return nil, fmt.Errorf("run state is nil")
	}
	if config.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", config.MaxIterations)
	}

	builder := &Builder{
		config: config,
		graph: compose.NewGraph[*model.Turn, *model.FinalResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.RunState {
				return state
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranch(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *Builder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeManagerContext,
		nodes.NewManagerContextNode(),
		compose.WithStatePreHandler(nodes.NewManagerContextPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeManagerChatModel,
		b.config.ManagerModel,
		compose.WithStatePostHandler(nodes.NewManagerChatModelPostHandler(b.config.ManagerModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeDecisionParser,
		nodes.NewDecisionParserNode(),
		compose.WithStatePostHandler(nodes.NewDecisionParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeTeradata,
		nodes.NewSpecialistNode(b.config.Registry, model.DecisionQuery),
	)

	b.graph.AddLambdaNode(nodes.NodePlot,
		nodes.NewSpecialistNode(b.config.Registry, model.DecisionPlot),
	)

	b.graph.AddLambdaNode(nodes.NodeFinalize,
		nodes.NewFinalizeNode(),
	)
}

// addEdges creates the flow connections, including the cycle back to the
// manager after each specialist pass.
func (b *Builder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeManagerContext},
		{nodes.NodeManagerContext, nodes.NodeManagerChatModel},
		{nodes.NodeManagerChatModel, nodes.NodeDecisionParser},
		{nodes.NodeTeradata, nodes.NodeManagerContext},
		{nodes.NodePlot, nodes.NodeManagerContext},
		{nodes.NodeFinalize, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranch attaches the decision routing branch after the parser.
func (b *Builder) addBranch() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewDecisionRouteCondition(b.config.MaxIterations),
		map[string]bool{
			nodes.NodeFinalize:       true,
			nodes.NodeTeradata:       true,
			nodes.NodePlot:           true,
			nodes.NodeManagerContext: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeDecisionParser, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *Builder) compile(ctx context.Context) (compose.Runnable[*model.Turn, *model.FinalResult], error) {
	// Each manager pass touches at most four nodes plus one specialist; the
	// step limit is a backstop, the branch enforces the real bound.
	maxSteps := b.config.MaxIterations*4 + 8
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Loop graph compiled successfully")
	return runnable, nil
}
