// Package gateway delivers assistant responses and live market, portfolio and
// security events over WebSocket and HTTP.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/defi-assistant/internal/collaborator"
	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/hub"
	"github.com/go-chi/chi/v5"
)

// ErrShuttingDown is returned for messages that arrive after Wait was called.
var ErrShuttingDown = errors.New("server shutting down")

// Processor runs the response pipeline.
type Processor interface {
	ProcessMessage(ctx context.Context, msg domain.InboundMessage) (*domain.AIResponse, error)
	Persist(ctx context.Context, msg domain.InboundMessage, resp *domain.AIResponse) bool
}

// Config tunes the gateway.
type Config struct {
	AllowedOrigin   string
	IsDev           bool
	MaxBodyBytes    int64
	PipelineTimeout time.Duration
	CallTimeout     time.Duration
	TickerInterval  time.Duration
	Watchlist       []string
}

// Gateway adapts client transports onto the hub and the pipeline.
type Gateway struct {
	registry  *hub.Registry
	router    *hub.Router
	typing    *hub.Typing
	processor Processor
	services  collaborator.Services
	cfg       Config
	logger    *slog.Logger

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// New creates a gateway.
func New(registry *hub.Registry, router *hub.Router, processor Processor, services collaborator.Services, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 2 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 8 * time.Second
	}
	if cfg.TickerInterval <= 0 {
		cfg.TickerInterval = 30 * time.Second
	}
	return &Gateway{
		registry:  registry,
		router:    router,
		typing:    hub.NewTyping(router),
		processor: processor,
		services:  services,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterRoutes registers the chat, webhook and WebSocket routes.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Post("/chat/message", g.HandleChatMessage)
	r.Get("/ws", g.ServeWS)
	r.Route("/api", func(r chi.Router) {
		r.Post("/alerts/security", g.HandleSecurityAlert)
		r.Post("/portfolio/refresh", g.HandlePortfolioRefresh)
	})
}

// begin registers a pipeline run. It fails once Wait has been called.
func (g *Gateway) begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.inflight.Add(1)
	return true
}

// Wait stops accepting new pipeline runs and blocks until in-flight ones
// finish or ctx is done.
func (g *Gateway) Wait(ctx context.Context) {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.logger.Warn("Shutdown with pipelines still in flight", "reason", ctx.Err())
	}
}

// run answers msg on a context detached from the caller so the pipeline
// finishes, and caches, after a client disconnect. room may be empty.
// Callers must hold a slot from begin.
func (g *Gateway) run(parent context.Context, msg domain.InboundMessage, room string) (*domain.AIResponse, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.cfg.PipelineTimeout)
	defer cancel()

	var resp *domain.AIResponse
	err := g.typing.Run(ctx, room, msg.ConversationID, func(ctx context.Context) error {
		var perr error
		resp, perr = g.processor.ProcessMessage(ctx, msg)
		return perr
	})
	return resp, err
}

func (g *Gateway) deliver(room string, s *hub.Session, conversationID string, resp *domain.AIResponse) int {
	ev := hub.Event{Type: hub.EventNewMessage, Data: hub.MessagePayload{ConversationID: conversationID, Message: resp}}
	if room != "" {
		return g.router.Broadcast(room, ev)
	}
	if s == nil {
		return 0
	}
	if err := hub.SendTo(s, ev); err != nil {
		g.logger.Debug("Reply not delivered", "session_id", s.ID(), "error", err)
		return 0
	}
	return 1
}

func (g *Gateway) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, g.cfg.CallTimeout)
}
