// DeFi assistant response and delivery server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/defi-assistant/internal/aggregator"
	"github.com/ashureev/defi-assistant/internal/api"
	"github.com/ashureev/defi-assistant/internal/assistant"
	"github.com/ashureev/defi-assistant/internal/cache"
	"github.com/ashureev/defi-assistant/internal/cascade"
	"github.com/ashureev/defi-assistant/internal/collaborator"
	"github.com/ashureev/defi-assistant/internal/config"
	"github.com/ashureev/defi-assistant/internal/gateway"
	"github.com/ashureev/defi-assistant/internal/hub"
	"github.com/ashureev/defi-assistant/internal/identity"
	"github.com/ashureev/defi-assistant/internal/intent"
	"github.com/ashureev/defi-assistant/internal/metrics"
	"github.com/ashureev/defi-assistant/internal/middleware"
	"github.com/ashureev/defi-assistant/internal/provider"
	"github.com/ashureev/defi-assistant/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("Failed to close log file", "error", err)
		}
	}()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Conversation history. The service runs without it when the database is unusable.
	var repo store.Repository
	var repoPinger api.Pinger
	if sqlite, err := store.NewSQLite(cfg.DBPath); err != nil {
		slog.Warn("Conversation store disabled", "error", err, "path", cfg.DBPath)
	} else {
		repo, repoPinger = sqlite, sqlite
		defer func() {
			if closeErr := sqlite.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()
		slog.Info("Database connected", "path", cfg.DBPath)
	}

	respCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		slog.Error("Failed to initialize response cache", "error", err, "driver", cfg.Cache.Driver)
		os.Exit(1)
	}
	defer func() {
		if closeErr := respCache.Close(); closeErr != nil {
			slog.Error("Failed to close response cache", "error", closeErr)
		}
	}()
	slog.Info("Response cache ready", "driver", cfg.Cache.Driver, "ttl", cfg.Cache.TTL)

	var services collaborator.Services
	switch cfg.Collaborator.Transport {
	case "http":
		services = collaborator.NewHTTPClient(cfg.Collaborator.URL, cfg.Collaborator.Timeout).Services()
		slog.Info("Collaborators over HTTP", "url", cfg.Collaborator.URL)
	case "grpc":
		grpcClient, err := collaborator.NewGRPCClient(collaborator.DefaultGRPCClientConfig(cfg.Collaborator.GRPCAddr), logger)
		if err != nil {
			slog.Warn("Failed to connect to collaborators, context will be empty", "error", err, "address", cfg.Collaborator.GRPCAddr)
		} else {
			defer grpcClient.Close()
			services = grpcClient.Services()
			slog.Info("Collaborators over gRPC", "address", cfg.Collaborator.GRPCAddr)
		}
	default:
		slog.Info("Collaborators disabled, responses will use no external context")
	}

	collector := metrics.NewCollector()

	providers := provider.FromConfig(ctx, cfg.AI)
	generator := cascade.New(providers, cascade.Options{
		Timeout:     cfg.AI.ProviderTimeout,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	}, collector, logger)
	slog.Info("Provider cascade ready", "candidates", generator.Candidates())

	var classifierModel provider.Provider
	if cfg.AI.ClassifierProvider != "" && cfg.AI.ClassifierModel != "" {
		classifierModel, err = provider.New(ctx, config.Candidate{
			Provider: cfg.AI.ClassifierProvider,
			Model:    cfg.AI.ClassifierModel,
		}, cfg.AI)
		if err != nil {
			slog.Warn("Intent model unavailable, using keyword heuristic", "error", err)
		}
	}
	classifier := intent.NewClassifier(classifierModel, cfg.AI.ClassifierTimeout, logger)

	agg := aggregator.New(services, aggregator.Config{
		CallTimeout:   cfg.Collaborator.Timeout,
		Watchlist:     cfg.Market.Watchlist,
		WatchlistSize: cfg.Market.WatchlistSize,
	}, logger)

	svc := assistant.NewService(assistant.Deps{
		Classifier: classifier,
		Aggregator: agg,
		Generator:  generator,
		Cache:      respCache,
		Repo:       repo,
		Stats:      collector,
	}, assistant.Options{
		CacheTTL:     cfg.Cache.TTL,
		HistoryTurns: cfg.AI.HistoryTurns,
	}, logger)

	router := hub.NewRouter(logger)
	registry := hub.NewRegistry(router, hub.RegistryConfig{
		SendBuffer:   cfg.WS.SendBuffer,
		WriteTimeout: cfg.WS.WriteTimeout,
	}, logger)

	gw := gateway.New(registry, router, svc, services, gateway.Config{
		AllowedOrigin:   cfg.FrontendURL,
		IsDev:           cfg.IsDevelopment(),
		MaxBodyBytes:    cfg.MaxBodyBytes,
		PipelineTimeout: cfg.AI.PipelineTimeout,
		CallTimeout:     cfg.Collaborator.Timeout,
		TickerInterval:  cfg.Market.TickerInterval,
		Watchlist:       cfg.Market.Watchlist,
	}, logger)

	healthHandler := api.NewHealthHandler(api.HealthConfig{
		Repo:       repoPinger,
		Metrics:    collector,
		Sessions:   registry,
		Rooms:      router.RoomCount,
		CacheLen:   respCache.Len,
		Candidates: generator.Candidates(),
	})

	allowed := []string{"*"}
	if !cfg.IsDevelopment() {
		allowed = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowed))
	r.Use(identity.Middleware)

	healthHandler.RegisterRoutes(r)
	gw.RegisterRoutes(r)

	// WebSocket sessions are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	gw.StartMarketTicker(ctx)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	gw.Wait(shutdownCtx)
	registry.Close()

	slog.Info("Server stopped successfully")
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if cache.Driver(cfg.Driver) != cache.DriverRedis {
		return cache.New(cache.DriverMemory)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := cache.NewRedisClient(pingCtx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return cache.New(cache.DriverRedis, cache.WithRedisClient(client), cache.WithKeyPrefix(cfg.KeyPrefix))
}
