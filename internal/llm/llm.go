// Package llm wraps the text generation providers used to answer questions about contracts.
package llm

import (
	"context"
	"fmt"
)

// Mode selects how a prompt is answered.
type Mode int

const (
	// ModeDecision constrains the output to json at a near zero temperature.
	ModeDecision Mode = iota
	// ModeAnswer produces free text at a conversational temperature.
	ModeAnswer
)

func (m Mode) String() string {
	switch m {
	case ModeDecision:
		return "decision"
	case ModeAnswer:
		return "answer"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) temperature() float32 {
	if m == ModeDecision {
		return 0.1
	}
	return 0.7
}

// Model generates text for a prompt. An empty string with a nil error means the provider
// returned no candidates.
//
// note: fault injection point
type Model interface {
	Generate(ctx context.Context, prompt string, mode Mode) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	// Provider is either "gemini" or "openai".
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	// BaseURL overrides the provider's endpoint.
	BaseURL string `json:"base_url"`
}

// New constructs the model described by cfg.
func New(ctx context.Context, cfg Config) (Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: %s api key not configured", cfg.Provider)
	}
	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(ctx, cfg)
	case "openai":
		return NewOpenAI(cfg), nil
	}
	return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
}
