package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/defi-assistant/internal/config"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// New creates the provider for a single cascade candidate.
func New(ctx context.Context, c config.Candidate, ai config.AIConfig) (Provider, error) {
	var model llms.Model
	var err error

	switch c.Provider {
	case config.ProviderLocal:
		return NewLocal(), nil

	case "openai":
		if ai.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(ai.OpenAIAPIKey),
			openai.WithModel(c.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case "openrouter":
		if ai.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("OpenRouter API key required")
		}
		model, err = openai.New(
			openai.WithToken(ai.OpenRouterAPIKey),
			openai.WithModel(c.Model),
			openai.WithBaseURL(ai.OpenRouterBaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create openrouter model: %w", err)
		}

	case "anthropic":
		if ai.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(ai.AnthropicAPIKey),
			anthropic.WithModel(c.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(c.Model),
			ollama.WithServerURL(ai.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case "bedrock":
		awsCfg, loadErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(ai.AWSRegion))
		if loadErr != nil {
			return nil, fmt.Errorf("load aws config: %w", loadErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(c.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", c.Provider)
	}

	return NewLLM(c.Provider, c.Model, model), nil
}

// FromConfig builds the ordered provider list once at startup.
// Candidates that cannot be constructed are skipped with a warning; if none
// remain the local responder is used so the cascade is never empty.
func FromConfig(ctx context.Context, ai config.AIConfig) []Provider {
	out := make([]Provider, 0, len(ai.Candidates))
	for _, c := range ai.Candidates {
		p, err := New(ctx, c, ai)
		if err != nil {
			slog.Warn("Skipping cascade candidate", "provider", c.Provider, "model", c.Model, "error", err)
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		slog.Warn("No usable cascade candidates, falling back to local responder")
		out = append(out, NewLocal())
	}
	return out
}
