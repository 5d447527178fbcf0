package completion

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

// promptBuilder renders the fixed two-turn conversation: persona system turn + user turn.
type promptBuilder struct {
	template prompt.ChatTemplate
	system   string
}

func newPromptBuilder(system string) *promptBuilder {
	return &promptBuilder{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.UserMessage("{query}"),
		),
		system: system,
	}
}

func (b *promptBuilder) build(ctx context.Context, userText string) ([]openai.ChatCompletionMessage, error) {
	messages, err := b.template.Format(ctx, map[string]any{
		"system": b.system,
		"query":  userText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render chat template: %w", err)
	}

	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    roleOf(msg.Role),
			Content: msg.Content,
		})
	}
	return out, nil
}

func roleOf(role schema.RoleType) string {
	switch role {
	case schema.System:
		return openai.ChatMessageRoleSystem
	case schema.Assistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
