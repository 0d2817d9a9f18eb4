package agents

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
)

// Completer is the language-model surface the concrete agents call.
type Completer interface {
	Complete(ctx context.Context, class agent.ConfigClass, systemPrompt, userPrompt string) (string, error)
}

// temperatureFor maps a config class to its sampling temperature.
func temperatureFor(class agent.ConfigClass) float32 {
	switch class {
	case agent.ConfigCoding:
		return 0.1
	case agent.ConfigReview:
		return 0.2
	case agent.ConfigCreative:
		return 0.8
	default:
		return 0.7
	}
}

// OpenAICompleter backs agents with the OpenAI chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. baseURL may be empty for the
// public API or point at a compatible local endpoint.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, class agent.ConfigClass, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperatureFor(class),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
