package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderLocal is the built-in keyword responder used when no model is configured.
const ProviderLocal = "local"

var knownProviders = map[string]bool{
	"openai":      true,
	"openrouter":  true,
	"anthropic":   true,
	"ollama":      true,
	"bedrock":     true,
	ProviderLocal: true,
}

// Candidate is one (provider, model) pair in the fallback cascade.
type Candidate struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// cascadeFile is the on-disk shape of AI_CASCADE_FILE.
type cascadeFile struct {
	Candidates []Candidate `yaml:"candidates"`
}

// LoadCascadeFile reads an ordered candidate list from a YAML file.
func LoadCascadeFile(path string) ([]Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cascade file: %w", err)
	}
	return ParseCascade(data)
}

// ParseCascade decodes and validates a YAML candidate list.
func ParseCascade(data []byte) ([]Candidate, error) {
	var f cascadeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cascade file: %w", err)
	}
	out := make([]Candidate, 0, len(f.Candidates))
	for i, c := range f.Candidates {
		c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
		c.Model = strings.TrimSpace(c.Model)
		if !knownProviders[c.Provider] {
			return nil, fmt.Errorf("cascade candidate %d: unknown provider %q", i, c.Provider)
		}
		if c.Model == "" && c.Provider != ProviderLocal {
			return nil, fmt.Errorf("cascade candidate %d: model is required for %s", i, c.Provider)
		}
		out = append(out, c)
	}
	return out, nil
}

// resolveCandidates builds the ordered cascade from the file or the env pair.
// An empty result falls back to the local responder.
func resolveCandidates(ai AIConfig) ([]Candidate, error) {
	var out []Candidate
	switch {
	case ai.CascadeFile != "":
		fromFile, err := LoadCascadeFile(ai.CascadeFile)
		if err != nil {
			return nil, err
		}
		out = fromFile
	case ai.Provider != "":
		if !knownProviders[ai.Provider] {
			return nil, fmt.Errorf("AI_PROVIDER %q is not supported", ai.Provider)
		}
		if ai.Provider == ProviderLocal {
			out = append(out, Candidate{Provider: ProviderLocal})
			break
		}
		if len(ai.Models) == 0 {
			return nil, fmt.Errorf("AI_MODELS is required when AI_PROVIDER=%s", ai.Provider)
		}
		for _, m := range ai.Models {
			out = append(out, Candidate{Provider: ai.Provider, Model: m})
		}
	}

	if len(out) == 0 {
		return []Candidate{{Provider: ProviderLocal}}, nil
	}
	if ai.LocalFallback && out[len(out)-1].Provider != ProviderLocal {
		out = append(out, Candidate{Provider: ProviderLocal})
	}
	return out, nil
}
