// Package provider adapts LLM backends to a single Generate call used by the cascade.
package provider

import (
	"context"

	"github.com/ashureev/defi-assistant/internal/domain"
)

// Request is a single generation request.
type Request struct {
	System      string
	Prompt      string
	Query       string // raw user text, used by providers that do not read the full prompt
	History     []domain.ChatTurn
	MaxTokens   int
	Temperature float64
}

// Provider generates a completion for one configured model.
type Provider interface {
	// Name returns the provider identifier, e.g. "openai".
	Name() string
	// Model returns the model identifier sent to the backend.
	Model() string
	// Generate returns the completion text. Errors are classified by Normalize.
	Generate(ctx context.Context, req Request) (string, error)
}
