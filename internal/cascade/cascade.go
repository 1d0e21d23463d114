// Package cascade drives an ordered list of providers until one produces an answer.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/provider"
)

// ErrFatal is returned when an attempt fails in a way that must not advance the cascade.
var ErrFatal = errors.New("provider cascade aborted")

// Recorder observes individual provider attempts.
type Recorder interface {
	RecordAttempt(attempt domain.ProviderAttempt)
}

// Options tunes every attempt in a run.
type Options struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Request is one generation job.
type Request struct {
	Intent  domain.Intent
	System  string
	Prompt  string
	Query   string
	History []domain.ChatTurn
	Sources []string
}

// Result is the outcome of a run.
type Result struct {
	Response  *domain.AIResponse
	Attempts  []domain.ProviderAttempt
	Succeeded bool
}

// Cascade tries candidates strictly in order.
type Cascade struct {
	candidates []provider.Provider
	opts       Options
	recorder   Recorder
	logger     *slog.Logger
}

// New creates a cascade over the given ordered candidates.
func New(candidates []provider.Provider, opts Options, recorder Recorder, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Cascade{
		candidates: append([]provider.Provider(nil), candidates...),
		opts:       opts,
		recorder:   recorder,
		logger:     logger,
	}
}

// Candidates returns the provider/model pairs in cascade order.
func (c *Cascade) Candidates() []string {
	out := make([]string, len(c.candidates))
	for i, p := range c.candidates {
		out[i] = p.Name() + "/" + p.Model()
	}
	return out
}

// Run attempts each candidate in order. Retryable failures advance to the next
// candidate; a fatal failure returns ErrFatal with the attempts made so far.
// When every candidate fails retryably the result carries the unavailable reply
// and a nil error.
func (c *Cascade) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	genReq := provider.Request{
		System:      req.System,
		Prompt:      req.Prompt,
		Query:       req.Query,
		History:     req.History,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}

	for _, p := range c.candidates {
		content, attempt, err := c.attempt(ctx, p, genReq)
		res.Attempts = append(res.Attempts, attempt)
		if c.recorder != nil {
			c.recorder.RecordAttempt(attempt)
		}

		if err == nil {
			res.Succeeded = true
			res.Response = &domain.AIResponse{
				Content:    content,
				Type:       ClassifyResponseType(content, req.Intent),
				Confidence: Confidence(content),
				Sources:    append([]string(nil), req.Sources...),
				Metadata: domain.ResponseMetadata{
					Intent:      req.Intent,
					Provider:    p.Name(),
					Model:       p.Model(),
					Attempts:    res.Attempts,
					GeneratedAt: time.Now().UTC(),
				},
			}
			return res, nil
		}

		if attempt.Outcome == domain.OutcomeFatal {
			c.logger.Warn("Provider cascade aborted", "provider", p.Name(), "model", p.Model(), "attempts", len(res.Attempts), "error", err)
			return res, fmt.Errorf("%w: %s/%s: %w", ErrFatal, p.Name(), p.Model(), err)
		}

		c.logger.Info("Provider attempt failed, trying next candidate", "provider", p.Name(), "model", p.Model(), "error", err)
	}

	c.logger.Warn("All provider candidates failed", "attempts", len(res.Attempts))
	unavailable := domain.NewApologyResponse(req.Intent, domain.UnavailableContent)
	unavailable.Metadata.Attempts = res.Attempts
	res.Response = unavailable
	return res, nil
}

func (c *Cascade) attempt(ctx context.Context, p provider.Provider, req provider.Request) (string, domain.ProviderAttempt, error) {
	attempt := domain.ProviderAttempt{Provider: p.Name(), Model: p.Model()}

	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	content, err := p.Generate(attemptCtx, req)
	attempt.LatencyMs = time.Since(start).Milliseconds()

	if err == nil && content == "" {
		err = provider.Normalize(provider.ErrEmptyCompletion)
	}
	if err == nil {
		attempt.Outcome = domain.OutcomeSuccess
		return content, attempt, nil
	}

	attempt.Error = err.Error()
	switch {
	case ctx.Err() != nil:
		// The caller went away; nothing after this attempt can be delivered.
		attempt.Outcome = domain.OutcomeFatal
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		attempt.Outcome = domain.OutcomeRetryable
	case provider.IsRetryable(provider.Normalize(err)):
		attempt.Outcome = domain.OutcomeRetryable
	default:
		attempt.Outcome = domain.OutcomeFatal
	}
	return "", attempt, err
}
