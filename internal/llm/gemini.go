package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-flash-latest"

type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string, mode Mode) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(mode.temperature()),
	}
	if mode == ModeDecision {
		config.ResponseMIMEType = "application/json"
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate (%s): %w", mode, err)
	}
	return res.Text(), nil
}
