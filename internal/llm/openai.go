package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI talks to any endpoint implementing the chat completions api.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg Config) *OpenAI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, mode Mode) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: mode.temperature(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if mode == ModeDecision {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	res, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion (%s): %w", mode, err)
	}
	if len(res.Choices) == 0 {
		return "", nil
	}
	return res.Choices[0].Message.Content, nil
}
