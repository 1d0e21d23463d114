// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
)

// Operation names for timed pipeline stages.
const (
	OpPipeline  = "pipeline"
	OpClassify  = "classify"
	OpAggregate = "aggregate"
	OpCascade   = "cascade"
)

// OperationMetrics holds aggregated timings for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
}

// ProviderSnapshot counts attempts for one provider/model pair.
type ProviderSnapshot struct {
	Candidate    string  `json:"candidate"`
	Success      int64   `json:"success"`
	Retryable    int64   `json:"retryable"`
	Fatal        int64   `json:"fatal"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// CacheSnapshot counts response cache lookups.
type CacheSnapshot struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptimeSeconds"`
	Operations    map[string]*OperationSnapshot `json:"operations"`
	Providers     []ProviderSnapshot            `json:"providers"`
	Cache         CacheSnapshot                 `json:"cache"`
	Intents       map[domain.Intent]int64       `json:"intents"`
	Exhausted     int64                         `json:"exhausted"`
}

type providerCounts struct {
	success, retryable, fatal int64
	totalLatencyMs            int64
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	providers map[string]*providerCounts
	intents   map[domain.Intent]int64
	hits      int64
	misses    int64
	exhausted int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		providers: make(map[string]*providerCounts),
		intents:   make(map[domain.Intent]int64),
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Time returns a func that records the elapsed time for op when called.
func (c *Collector) Time(op string) func() {
	start := time.Now()
	return func() { c.RecordTiming(op, time.Since(start)) }
}

// RecordAttempt counts one provider attempt by outcome.
func (c *Collector) RecordAttempt(attempt domain.ProviderAttempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := attempt.Provider + "/" + attempt.Model
	p, ok := c.providers[key]
	if !ok {
		p = &providerCounts{}
		c.providers[key] = p
	}
	switch attempt.Outcome {
	case domain.OutcomeSuccess:
		p.success++
	case domain.OutcomeRetryable:
		p.retryable++
	default:
		p.fatal++
	}
	p.totalLatencyMs += attempt.LatencyMs
}

// RecordCache counts a cache lookup.
func (c *Collector) RecordCache(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// RecordIntent counts a classified message.
func (c *Collector) RecordIntent(intent domain.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents[intent]++
}

// RecordExhausted counts a cascade run where every candidate failed.
func (c *Collector) RecordExhausted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exhausted++
}

func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    make(map[string]*OperationSnapshot, len(c.ops)),
		Providers:     make([]ProviderSnapshot, 0, len(c.providers)),
		Intents:       make(map[domain.Intent]int64, len(c.intents)),
		Exhausted:     c.exhausted,
		Cache:         CacheSnapshot{Hits: c.hits, Misses: c.misses},
	}
	for op, m := range c.ops {
		snap.Operations[op] = snapshotOp(m)
	}
	for key, p := range c.providers {
		total := p.success + p.retryable + p.fatal
		ps := ProviderSnapshot{Candidate: key, Success: p.success, Retryable: p.retryable, Fatal: p.fatal}
		if total > 0 {
			ps.AvgLatencyMs = float64(p.totalLatencyMs) / float64(total)
		}
		snap.Providers = append(snap.Providers, ps)
	}
	sort.Slice(snap.Providers, func(i, j int) bool { return snap.Providers[i].Candidate < snap.Providers[j].Candidate })
	for k, v := range c.intents {
		snap.Intents[k] = v
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		snap.Cache.HitRate = float64(c.hits) / float64(lookups)
	}
	return snap
}
