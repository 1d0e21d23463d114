package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("AI_CASCADE_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Cache.KeyPrefix != "defi-assistant:response:" {
		t.Errorf("Cache.KeyPrefix = %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Market.TickerInterval != 30*time.Second {
		t.Errorf("TickerInterval = %v, want 30s", cfg.Market.TickerInterval)
	}
	if len(cfg.AI.Candidates) != 1 || cfg.AI.Candidates[0].Provider != ProviderLocal {
		t.Errorf("Candidates = %+v, want [local]", cfg.AI.Candidates)
	}
}

func TestLoadProviderModels(t *testing.T) {
	t.Setenv("AI_PROVIDER", "OpenRouter")
	t.Setenv("AI_MODELS", "a/model-1, b/model-2 ,,c/model-3")
	t.Setenv("AI_LOCAL_FALLBACK", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []Candidate{
		{Provider: "openrouter", Model: "a/model-1"},
		{Provider: "openrouter", Model: "b/model-2"},
		{Provider: "openrouter", Model: "c/model-3"},
		{Provider: ProviderLocal},
	}
	if len(cfg.AI.Candidates) != len(want) {
		t.Fatalf("Candidates = %+v, want %+v", cfg.AI.Candidates, want)
	}
	for i := range want {
		if cfg.AI.Candidates[i] != want[i] {
			t.Errorf("Candidates[%d] = %+v, want %+v", i, cfg.AI.Candidates[i], want[i])
		}
	}
}

func TestLoadRejectsProviderWithoutModels(t *testing.T) {
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("AI_MODELS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when AI_MODELS is empty")
	}
}

func TestLoadCascadeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	body := `candidates:
  - provider: anthropic
    model: claude-3-5-haiku-latest
  - provider: ollama
    model: llama3.2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AI_CASCADE_FILE", path)
	t.Setenv("AI_PROVIDER", "openai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.AI.Candidates) != 2 || cfg.AI.Candidates[0].Provider != "anthropic" || cfg.AI.Candidates[1].Model != "llama3.2" {
		t.Fatalf("Candidates = %+v", cfg.AI.Candidates)
	}
}

func TestParseCascadeRejectsUnknownProvider(t *testing.T) {
	_, err := ParseCascade([]byte("candidates:\n  - provider: gemini\n    model: x\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("COLLABORATOR_TRANSPORT", "http")
	t.Setenv("COLLABORATOR_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for http transport without URL")
	}

	t.Setenv("COLLABORATOR_TRANSPORT", "none")
	t.Setenv("CACHE_DRIVER", "memcached")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown cache driver")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 45*time.Second {
		t.Errorf("bare seconds = %v", got)
	}
	t.Setenv("TEST_DURATION", "1m30s")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("duration string = %v", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("invalid value = %v, want fallback", got)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var a, b bytes.Buffer
	logger := SetupLoggerWithWriters(&a, &b, ParseLevel("warn"))
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	for name, buf := range map[string]*bytes.Buffer{"primary": &a, "secondary": &b} {
		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("%s sink logged below level: %s", name, out)
		}
		if !strings.Contains(out, `"msg":"shown"`) {
			t.Errorf("%s sink missing record: %s", name, out)
		}
	}
}
