// Package assistant runs the response pipeline for one inbound message.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/defi-assistant/internal/cache"
	"github.com/ashureev/defi-assistant/internal/cascade"
	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/metrics"
	"github.com/ashureev/defi-assistant/internal/store"
)

// ErrPipeline is returned alongside the apology reply when the pipeline crashed.
var ErrPipeline = errors.New("response pipeline failed")

// IntentClassifier resolves the intent of a message.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) domain.Intent
}

// ContextAggregator gathers supporting data for a message.
type ContextAggregator interface {
	Aggregate(ctx context.Context, intent domain.Intent, text, address string) domain.ContextBundle
}

// Generator produces a response from an ordered provider list.
type Generator interface {
	Run(ctx context.Context, req cascade.Request) (cascade.Result, error)
}

// Stats receives pipeline measurements.
type Stats interface {
	RecordTiming(op string, d time.Duration)
	RecordCache(hit bool)
	RecordIntent(intent domain.Intent)
	RecordExhausted()
}

// Options tunes the pipeline.
type Options struct {
	CacheTTL     time.Duration
	HistoryTurns int
}

// Service wires classifier, aggregator, cache, cascade and history together.
type Service struct {
	classifier IntentClassifier
	aggregator ContextAggregator
	generator  Generator
	cache      cache.Cache
	repo       store.Repository
	stats      Stats
	opts       Options
	logger     *slog.Logger
}

// Deps holds the collaborators of a Service. Cache, Repo and Stats may be nil.
type Deps struct {
	Classifier IntentClassifier
	Aggregator ContextAggregator
	Generator  Generator
	Cache      cache.Cache
	Repo       store.Repository
	Stats      Stats
}

// NewService creates a pipeline service.
func NewService(deps Deps, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	return &Service{
		classifier: deps.Classifier,
		aggregator: deps.Aggregator,
		generator:  deps.Generator,
		cache:      deps.Cache,
		repo:       deps.Repo,
		stats:      deps.Stats,
		opts:       opts,
		logger:     logger,
	}
}

// ProcessMessage answers msg. Every valid message yields a non-nil response:
// provider exhaustion and fatal provider errors both produce a canned reply.
// The only errors are domain.ErrEmptyMessage, returned before any work, and
// ErrPipeline, returned with the apology reply after a crash.
func (s *Service) ProcessMessage(ctx context.Context, msg domain.InboundMessage) (resp *domain.AIResponse, err error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	intent := domain.IntentGeneral
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Response pipeline panicked", "intent", intent, "panic", r)
			resp = domain.NewApologyResponse(intent, domain.ApologyContent)
			err = fmt.Errorf("%w: %v", ErrPipeline, r)
		}
		s.timing(metrics.OpPipeline, time.Since(start))
	}()

	address := domain.NormalizeAddress(msg.Address)

	stageStart := time.Now()
	intent = s.classifier.Classify(ctx, msg.Text)
	s.timing(metrics.OpClassify, time.Since(stageStart))
	if s.stats != nil {
		s.stats.RecordIntent(intent)
	}

	// Identity-scoped portfolio answers are neither served from nor written to the shared cache.
	cacheable := s.cache != nil && (intent != domain.IntentPortfolio || address == "")
	fingerprint := cache.Fingerprint(msg.Text)

	if cacheable {
		hit, ok, cerr := s.cache.Get(ctx, fingerprint)
		if cerr != nil {
			s.logger.Warn("Response cache lookup failed", "error", cerr)
		}
		if s.stats != nil {
			s.stats.RecordCache(ok)
		}
		if ok {
			out := hit.Clone()
			out.Metadata.Cached = true
			s.logger.Debug("Response served from cache", "intent", intent, "model", out.Metadata.Model)
			return out, nil
		}
	}

	stageStart = time.Now()
	bundle := s.aggregator.Aggregate(ctx, intent, msg.Text, address)
	s.timing(metrics.OpAggregate, time.Since(stageStart))

	req := cascade.Request{
		Intent:  intent,
		System:  BuildSystemPrompt(intent),
		Prompt:  BuildPrompt(msg.Text, bundle),
		Query:   msg.Text,
		History: s.history(ctx, msg.ConversationID),
		Sources: contextSources(bundle),
	}

	stageStart = time.Now()
	res, runErr := s.generator.Run(ctx, req)
	s.timing(metrics.OpCascade, time.Since(stageStart))

	if runErr != nil {
		s.logger.Error("Provider cascade failed", "intent", intent, "attempts", len(res.Attempts), "error", runErr)
		apology := domain.NewApologyResponse(intent, domain.ApologyContent)
		apology.Metadata.Attempts = res.Attempts
		apology.Metadata.ContextErrors = bundle.Errors
		return apology, nil
	}

	resp = res.Response
	resp.Metadata.ContextErrors = bundle.Errors
	if !res.Succeeded {
		if s.stats != nil {
			s.stats.RecordExhausted()
		}
		return resp, nil
	}

	if cacheable && !bundle.HasIdentityData() {
		if perr := s.cache.Put(ctx, fingerprint, resp, s.opts.CacheTTL); perr != nil {
			s.logger.Warn("Response cache store failed", "error", perr)
		}
	}
	return resp, nil
}

// Persist records the user message and the reply. It reports whether both
// were stored and never fails the caller.
func (s *Service) Persist(ctx context.Context, msg domain.InboundMessage, resp *domain.AIResponse) bool {
	if s.repo == nil || msg.ConversationID == "" || resp == nil {
		return false
	}
	address := domain.NormalizeAddress(msg.Address)

	user := &domain.StoredMessage{
		ConversationID: msg.ConversationID,
		Role:           domain.RoleUser,
		Content:        msg.Text,
		Address:        address,
	}
	if err := s.repo.SaveMessage(ctx, user); err != nil {
		s.logger.Warn("Failed to persist user message", "conversation_id", msg.ConversationID, "error", err)
		return false
	}

	reply := &domain.StoredMessage{
		ConversationID: msg.ConversationID,
		Role:           domain.RoleAssistant,
		Content:        resp.Content,
		Address:        address,
		Metadata: map[string]any{
			"intent":     string(resp.Metadata.Intent),
			"provider":   resp.Metadata.Provider,
			"model":      resp.Metadata.Model,
			"type":       string(resp.Type),
			"confidence": resp.Confidence,
			"cached":     resp.Metadata.Cached,
		},
	}
	if err := s.repo.SaveMessage(ctx, reply); err != nil {
		s.logger.Warn("Failed to persist assistant message", "conversation_id", msg.ConversationID, "error", err)
		return false
	}
	return true
}

func (s *Service) history(ctx context.Context, conversationID string) []domain.ChatTurn {
	if s.repo == nil || conversationID == "" || s.opts.HistoryTurns == 0 {
		return nil
	}
	msgs, err := s.repo.RecentMessages(ctx, conversationID, s.opts.HistoryTurns)
	if err != nil {
		s.logger.Warn("Failed to load conversation history", "conversation_id", conversationID, "error", err)
		return nil
	}
	return store.History(msgs)
}

func (s *Service) timing(op string, d time.Duration) {
	if s.stats != nil {
		s.stats.RecordTiming(op, d)
	}
}
