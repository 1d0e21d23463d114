// Package aggregator gathers supporting context for a classified message by
// calling the collaborator services in parallel.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/defi-assistant/internal/collaborator"
	"github.com/ashureev/defi-assistant/internal/domain"
)

// Config tunes the aggregator.
type Config struct {
	CallTimeout   time.Duration
	Watchlist     []string
	WatchlistSize int
}

// Aggregator fans out collaborator calls and joins them into a ContextBundle.
type Aggregator struct {
	services collaborator.Services
	cfg      Config
	logger   *slog.Logger
}

// New creates an aggregator over the given collaborators.
func New(services collaborator.Services, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 8 * time.Second
	}
	if cfg.WatchlistSize <= 0 {
		cfg.WatchlistSize = 5
	}
	return &Aggregator{services: services, cfg: cfg, logger: logger}
}

// DefaultWatchlist returns the top-N symbols used when a message names none.
func (a *Aggregator) DefaultWatchlist() []string {
	n := a.cfg.WatchlistSize
	if n > len(a.cfg.Watchlist) {
		n = len(a.cfg.Watchlist)
	}
	return append([]string(nil), a.cfg.Watchlist[:n]...)
}

// collector accumulates results from concurrent calls.
type collector struct {
	mu     sync.Mutex
	bundle domain.ContextBundle
	wg     sync.WaitGroup
}

func (c *collector) set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle.Data[key] = v
}

func (c *collector) fail(e domain.ContextError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle.Errors = append(c.bundle.Errors, e)
}

// Aggregate gathers context for intent. It never fails: every collaborator
// error or timeout becomes a ContextError and the rest of the bundle is kept.
func (a *Aggregator) Aggregate(ctx context.Context, intent domain.Intent, text, address string) domain.ContextBundle {
	c := &collector{bundle: domain.NewContextBundle()}
	address = domain.NormalizeAddress(address)

	switch intent {
	case domain.IntentPortfolio:
		if address != "" {
			a.portfolio(ctx, c, address)
		}
		a.overview(ctx, c)

	case domain.IntentMarket:
		a.overview(ctx, c)
		symbols := ExtractSymbols(text)
		if len(symbols) == 0 {
			symbols = a.DefaultWatchlist()
		} else {
			c.set(domain.ContextSymbols, symbols)
		}
		a.prices(ctx, c, symbols)

	case domain.IntentSecurity:
		targets := ExtractSecurityTargets(text)
		if len(targets) > 0 {
			c.set(domain.ContextTargets, targets)
			a.security(ctx, c, targets)
		}

	case domain.IntentEducation:
		if HasInvestmentLanguage(text) {
			a.overview(ctx, c)
			a.prices(ctx, c, a.DefaultWatchlist())
		}

	default:
		a.overview(ctx, c)
		if HasInvestmentLanguage(text) {
			a.prices(ctx, c, a.DefaultWatchlist())
		}
	}

	c.wg.Wait()
	if reports, ok := c.bundle.Data[domain.ContextSecurity].(map[string]domain.SecurityReport); ok && len(reports) == 0 {
		delete(c.bundle.Data, domain.ContextSecurity)
	}
	if len(c.bundle.Errors) > 0 {
		a.logger.Debug("Context aggregated with gaps", "intent", intent, "errors", len(c.bundle.Errors), "keys", len(c.bundle.Data))
	}
	return c.bundle
}

// run executes fn in its own goroutine under a per-call timeout.
func (a *Aggregator) run(ctx context.Context, c *collector, key, source string, fn func(context.Context) (any, error)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()

		v, err := guard(callCtx, fn)
		if err != nil {
			timedOut := errors.Is(err, context.DeadlineExceeded)
			c.fail(domain.ContextError{Key: key, Source: source, Message: err.Error(), TimedOut: timedOut})
			return
		}
		c.set(key, v)
	}()
}

// guard runs fn and returns when it finishes or ctx expires, whichever is
// first. A panicking collaborator becomes an error.
func guard(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("collaborator panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Aggregator) unavailable(c *collector, key, source string) {
	c.fail(domain.ContextError{Key: key, Source: source, Message: collaborator.ErrUnavailable.Error()})
}

func (a *Aggregator) overview(ctx context.Context, c *collector) {
	if a.services.Market == nil {
		a.unavailable(c, domain.ContextMarketOverview, "market")
		return
	}
	a.run(ctx, c, domain.ContextMarketOverview, "market", func(ctx context.Context) (any, error) {
		return a.services.Market.Overview(ctx)
	})
}

func (a *Aggregator) prices(ctx context.Context, c *collector, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	if a.services.Market == nil {
		a.unavailable(c, domain.ContextPrices, "market")
		return
	}
	a.run(ctx, c, domain.ContextPrices, "market", func(ctx context.Context) (any, error) {
		return a.services.Market.Prices(ctx, symbols)
	})
}

func (a *Aggregator) portfolio(ctx context.Context, c *collector, address string) {
	if a.services.Portfolio == nil {
		a.unavailable(c, domain.ContextPortfolio, "portfolio")
		return
	}
	a.run(ctx, c, domain.ContextPortfolio, "portfolio", func(ctx context.Context) (any, error) {
		return a.services.Portfolio.Snapshot(ctx, address)
	})
	a.run(ctx, c, domain.ContextPortfolioAnalysis, "portfolio", func(ctx context.Context) (any, error) {
		return a.services.Portfolio.Analysis(ctx, address)
	})
}

// security analyses every target in parallel; each result lands under
// the security map keyed by target so failures stay independent.
func (a *Aggregator) security(ctx context.Context, c *collector, targets []string) {
	if a.services.Security == nil {
		a.unavailable(c, domain.ContextSecurity, "security")
		return
	}

	var mu sync.Mutex
	reports := make(map[string]domain.SecurityReport, len(targets))
	c.set(domain.ContextSecurity, reports)

	for _, target := range targets {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
			defer cancel()

			v, err := guard(callCtx, func(ctx context.Context) (any, error) {
				return a.services.Security.Analyze(ctx, target)
			})
			if err != nil {
				c.fail(domain.ContextError{
					Key:      domain.ContextSecurity + "." + target,
					Source:   "security",
					Message:  err.Error(),
					TimedOut: errors.Is(err, context.DeadlineExceeded),
				})
				return
			}
			mu.Lock()
			reports[target] = v.(domain.SecurityReport)
			mu.Unlock()
		}()
	}
}
