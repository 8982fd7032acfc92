package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ChainCompleter runs prompts through an eino chat chain (Ark in production).
type ChainCompleter struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewChainCompleter compiles a system+user chain around chatModel.
func NewChainCompleter(ctx context.Context, chatModel model.ChatModel) (*ChainCompleter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	// Prompt text and schemas contain braces, so they travel as values.
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &ChainCompleter{chain: runnable}, nil
}

// Complete implements Completer.
func (c *ChainCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	system := req.System
	if len(req.Schema) > 0 {
		system += "\n\nJSON schema:\n" + schemaText(req.Schema)
	}

	msg, err := c.chain.Invoke(ctx, map[string]any{
		"system": system,
		"query":  req.User,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}
