package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
)

//go:embed template/manager_prompt.txt
var managerSystemPrompt string

//go:embed template/teradata_prompt.txt
var teradataSystemPrompt string

//go:embed template/plot_prompt.txt
var plotSystemPrompt string

// RenderManagerSystem renders the manager system prompt via the Eino prompt
// component. This triggers Prompt callbacks and returns the final string.
func RenderManagerSystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, managerSystemPrompt)
}

// RenderTeradataSystem renders the data-query specialist's system prompt.
// Only known tokens are substituted so template braces stay intact.
func RenderTeradataSystem(ctx context.Context, cfg *model.TeradataModelConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("teradata model config is nil")
	}
	content := strings.NewReplacer(
		"{database_name}", cfg.DatabaseName,
	).Replace(teradataSystemPrompt)
	return renderSystem(ctx, content)
}

// RenderPlotSystem renders the visualization specialist's system prompt with
// the per-run chart artifact path baked in.
func RenderPlotSystem(ctx context.Context, artifactPath string) (string, error) {
	if artifactPath == "" {
		return "", fmt.Errorf("artifact path is empty")
	}
	content := strings.NewReplacer(
		"{artifact_path}", artifactPath,
	).Replace(plotSystemPrompt)
	return renderSystem(ctx, content)
}

// renderSystem wraps the content in the Eino prompt component using a
// messages placeholder so prompt callbacks fire.
func renderSystem(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
