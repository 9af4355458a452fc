package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// newPromptHandler builds a typed PromptCallbackHandler to trace template
// rendering.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *prompt.CallbackInput) context.Context {
			ev := logx.Debug().
				Str("component", "prompt").
				Str("type", string(info.Type)).
				Str("name", info.Name)
			if input != nil {
				ev = ev.Int("variable_count", len(input.Variables))
			}
			ev.Msg("Prompt render start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			ev := logx.Debug().
				Str("component", "prompt").
				Str("type", string(info.Type)).
				Str("name", info.Name)
			if output != nil {
				ev = ev.Int("message_count", len(output.Result))
			}
			ev.Msg("Prompt render end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().
				Str("component", "prompt").
				Str("type", string(info.Type)).
				Str("name", info.Name).
				Err(err).
				Msg("Prompt render error")
			return ctx
		},
	}
}
