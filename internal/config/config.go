// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	DBPath       string
	LogLevel     string
	LogFile      string
	MaxBodyBytes int64

	AI           AIConfig
	Cache        CacheConfig
	Collaborator CollaboratorConfig
	Market       MarketConfig
	WS           WSConfig
}

// AIConfig controls the provider cascade and intent classifier.
type AIConfig struct {
	Provider      string
	Models        []string
	CascadeFile   string
	LocalFallback bool
	Candidates    []Candidate

	OpenAIAPIKey      string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	AnthropicAPIKey   string
	OllamaHost        string
	AWSRegion         string

	ProviderTimeout time.Duration
	PipelineTimeout time.Duration
	MaxTokens       int
	Temperature     float64
	HistoryTurns    int

	ClassifierProvider string
	ClassifierModel    string
	ClassifierTimeout  time.Duration
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Driver    string
	TTL       time.Duration
	RedisURL  string
	KeyPrefix string
}

// CollaboratorConfig points at the market, portfolio and security services.
type CollaboratorConfig struct {
	Transport string // "http", "grpc" or "none"
	URL       string
	GRPCAddr  string
	Timeout   time.Duration
}

// MarketConfig controls the default watchlist and the market ticker.
type MarketConfig struct {
	Watchlist      []string
	WatchlistSize  int
	TickerInterval time.Duration
}

// WSConfig tunes per-connection delivery.
type WSConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/assistant.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFile:      getEnv("LOG_FILE", ""),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 64*1024)),
		AI: AIConfig{
			Provider:           strings.ToLower(getEnv("AI_PROVIDER", "")),
			Models:             getEnvList("AI_MODELS"),
			CascadeFile:        getEnv("AI_CASCADE_FILE", ""),
			LocalFallback:      getEnvBool("AI_LOCAL_FALLBACK", false),
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenRouterAPIKey:   getEnv("OPENROUTER_API_KEY", ""),
			OpenRouterBaseURL:  getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
			ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
			PipelineTimeout:    getEnvDuration("PIPELINE_TIMEOUT", 2*time.Minute),
			MaxTokens:          getEnvInt("AI_MAX_TOKENS", 1024),
			Temperature:        getEnvFloat("AI_TEMPERATURE", 0.7),
			HistoryTurns:       getEnvInt("AI_HISTORY_TURNS", 10),
			ClassifierProvider: strings.ToLower(getEnv("CLASSIFIER_PROVIDER", "")),
			ClassifierModel:    getEnv("CLASSIFIER_MODEL", ""),
			ClassifierTimeout:  getEnvDuration("CLASSIFIER_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			Driver:    strings.ToLower(getEnv("CACHE_DRIVER", "memory")),
			TTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),
			RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", "defi-assistant:response:"),
		},
		Collaborator: CollaboratorConfig{
			Transport: strings.ToLower(getEnv("COLLABORATOR_TRANSPORT", "none")),
			URL:       strings.TrimRight(getEnv("COLLABORATOR_URL", ""), "/"),
			GRPCAddr:  getEnv("COLLABORATOR_GRPC_ADDR", ""),
			Timeout:   getEnvDuration("COLLABORATOR_TIMEOUT", 8*time.Second),
		},
		Market: MarketConfig{
			Watchlist:      getEnvList("WATCHLIST"),
			WatchlistSize:  getEnvInt("WATCHLIST_SIZE", 5),
			TickerInterval: getEnvDuration("MARKET_TICKER_INTERVAL", 30*time.Second),
		},
		WS: WSConfig{
			SendBuffer:   getEnvInt("WS_SEND_BUFFER", 64),
			WriteTimeout: getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		},
	}
	if len(cfg.Market.Watchlist) == 0 {
		cfg.Market.Watchlist = []string{"BTC", "ETH", "USDC", "SOL", "BNB", "LINK", "UNI", "AAVE"}
	}

	candidates, err := resolveCandidates(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.AI.Candidates = candidates

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be > 0")
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("CACHE_DRIVER must be memory or redis, got %q", c.Cache.Driver)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0")
	}
	switch c.Collaborator.Transport {
	case "none":
	case "http":
		if c.Collaborator.URL == "" {
			return fmt.Errorf("COLLABORATOR_URL is required for http transport")
		}
	case "grpc":
		if c.Collaborator.GRPCAddr == "" {
			return fmt.Errorf("COLLABORATOR_GRPC_ADDR is required for grpc transport")
		}
	default:
		return fmt.Errorf("COLLABORATOR_TRANSPORT must be http, grpc or none, got %q", c.Collaborator.Transport)
	}
	if c.AI.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.Collaborator.Timeout <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be > 0")
	}
	if c.Market.WatchlistSize <= 0 {
		return fmt.Errorf("WATCHLIST_SIZE must be > 0")
	}
	if c.Market.TickerInterval <= 0 {
		return fmt.Errorf("MARKET_TICKER_INTERVAL must be > 0")
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
