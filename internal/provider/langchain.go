package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/tmc/langchaingo/llms"
)

// LLM wraps a langchaingo model for text generation.
type LLM struct {
	name      string
	modelName string
	llm       llms.Model
}

// NewLLM wraps an already constructed langchaingo model.
func NewLLM(name, modelName string, model llms.Model) *LLM {
	return &LLM{name: name, modelName: modelName, llm: model}
}

// Name returns the provider identifier.
func (p *LLM) Name() string { return p.name }

// Model returns the model identifier.
func (p *LLM) Model() string { return p.modelName }

// Generate sends system prompt, history and the user prompt as one chat completion.
func (p *LLM) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == domain.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}

	start := time.Now()
	response, err := p.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)
	if err != nil {
		slog.Debug("generation failed", "provider", p.name, "model", p.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", Normalize(fmt.Errorf("generate: %w", err))
	}

	if len(response.Choices) == 0 {
		return "", Normalize(ErrEmptyCompletion)
	}
	content := strings.TrimSpace(response.Choices[0].Content)
	if content == "" {
		return "", Normalize(ErrEmptyCompletion)
	}

	slog.Debug("generation complete", "provider", p.name, "model", p.modelName, "duration_ms", duration.Milliseconds(), "content_len", len(content))
	return content, nil
}
