package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is the slice of the chat completion API the agent drives. Tests
// substitute a scripted implementation.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
