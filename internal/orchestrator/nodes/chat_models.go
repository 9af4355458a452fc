package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey         string
	BaseURL        string
	ManagerConfig  *model.ManagerModelConfig
	TeradataConfig *model.TeradataModelConfig
	PlotConfig     *model.PlotModelConfig
}

// ChatModels holds the manager and both specialist chat models
type ChatModels struct {
	Manager           *gemini.ChatModel
	Teradata          *gemini.ChatModel
	Plot              *gemini.ChatModel
	ManagerModelName  string
	TeradataModelName string
	PlotModelName     string
}

// NewChatModels creates all three chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// Create Manager Chat Model
	chatModelManager, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ManagerConfig.Model,
		Temperature: &config.ManagerConfig.Temperature,
		MaxTokens:   &config.ManagerConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Manager model")
		return nil, fmt.Errorf("error creating Manager model: %w", err)
	}

	// Create Teradata Chat Model
	chatModelTeradata, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.TeradataConfig.Model,
		Temperature: &config.TeradataConfig.Temperature,
		MaxTokens:   &config.TeradataConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Teradata model")
		return nil, fmt.Errorf("error creating Teradata model: %w", err)
	}

	// Create Plot Chat Model
	chatModelPlot, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.PlotConfig.Model,
		Temperature: &config.PlotConfig.Temperature,
		MaxTokens:   &config.PlotConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Plot model")
		return nil, fmt.Errorf("error creating Plot model: %w", err)
	}

	return &ChatModels{
		Manager:           chatModelManager,
		Teradata:          chatModelTeradata,
		Plot:              chatModelPlot,
		ManagerModelName:  config.ManagerConfig.Model,
		TeradataModelName: config.TeradataConfig.Model,
		PlotModelName:     config.PlotConfig.Model,
	}, nil
}

// BindTeradataTools binds the backend tool catalog to the Teradata model
func (cm *ChatModels) BindTeradataTools(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Teradata.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind Teradata tools")
		return fmt.Errorf("failed to bind Teradata tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to Teradata model")
	return nil
}

// BindPlotTools binds the sandbox execution tool to the Plot model
func (cm *ChatModels) BindPlotTools(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Plot.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind Plot tools")
		return fmt.Errorf("failed to bind Plot tools: %w", err)
	}

	logx.Debug().Msg("Successfully bound tools to Plot model")
	return nil
}
