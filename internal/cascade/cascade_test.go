package cascade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	name, model string
	reply       string
	err         error
	block       bool
	calls       int
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return p.model }

func (p *scriptedProvider) Generate(ctx context.Context, _ provider.Request) (string, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.reply, p.err
}

type attemptLog struct {
	mu       sync.Mutex
	attempts []domain.ProviderAttempt
}

func (l *attemptLog) RecordAttempt(a domain.ProviderAttempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func failing(model string, err error) *scriptedProvider {
	return &scriptedProvider{name: "openrouter", model: model, err: err}
}

func TestRunRecordsExactlyKAttempts(t *testing.T) {
	t.Parallel()

	for k := 1; k <= 4; k++ {
		candidates := make([]provider.Provider, 0, 5)
		var scripted []*scriptedProvider
		for i := 1; i < k; i++ {
			p := failing("m"+string(rune('0'+i)), errors.New("HTTP 429: rate limited"))
			scripted = append(scripted, p)
			candidates = append(candidates, p)
		}
		winner := &scriptedProvider{name: "openrouter", model: "winner", reply: "Ethereum is a programmable blockchain."}
		after := &scriptedProvider{name: "openrouter", model: "after", reply: "unused"}
		candidates = append(candidates, winner, after)

		log := &attemptLog{}
		c := New(candidates, Options{Timeout: time.Second}, log, nil)
		res, err := c.Run(context.Background(), Request{Intent: domain.IntentGeneral, Prompt: "x"})
		require.NoError(t, err)

		assert.Len(t, res.Attempts, k, "k=%d", k)
		assert.Len(t, log.attempts, k, "recorder k=%d", k)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "winner", res.Response.Metadata.Model)
		assert.Equal(t, "Ethereum is a programmable blockchain.", res.Response.Content)
		assert.Equal(t, domain.OutcomeSuccess, res.Attempts[k-1].Outcome)
		for i := 0; i < k-1; i++ {
			assert.Equal(t, domain.OutcomeRetryable, res.Attempts[i].Outcome)
			assert.Equal(t, 1, scripted[i].calls)
		}
		assert.Zero(t, after.calls)
	}
}

func TestRunAllRetryableReturnsWarning(t *testing.T) {
	t.Parallel()

	c := New([]provider.Provider{
		failing("a", errors.New("model_not_found")),
		failing("b", errors.New("status code: 400 bad request")),
		failing("c", errors.New("HTTP 503: overloaded")),
	}, Options{Timeout: time.Second}, nil, nil)

	res, err := c.Run(context.Background(), Request{Intent: domain.IntentMarket})
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Len(t, res.Attempts, 3)
	require.NotNil(t, res.Response)
	assert.Equal(t, 0.0, res.Response.Confidence)
	assert.Equal(t, domain.ResponseWarning, res.Response.Type)
	assert.NotEmpty(t, res.Response.Content)
	assert.Equal(t, domain.IntentMarket, res.Response.Metadata.Intent)
}

func TestRunFatalAborts(t *testing.T) {
	t.Parallel()

	next := &scriptedProvider{name: "ollama", model: "llama", reply: "never"}
	c := New([]provider.Provider{
		failing("a", errors.New("dial tcp 10.0.0.1:443: connect: connection refused")),
		next,
	}, Options{Timeout: time.Second}, nil, nil)

	res, err := c.Run(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, domain.OutcomeFatal, res.Attempts[0].Outcome)
	assert.Zero(t, next.calls)
}

func TestRunAttemptTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	slow := &scriptedProvider{name: "anthropic", model: "slow", block: true}
	fast := &scriptedProvider{name: "anthropic", model: "fast", reply: "ok, here it is"}
	c := New([]provider.Provider{slow, fast}, Options{Timeout: 20 * time.Millisecond}, nil, nil)

	res, err := c.Run(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, domain.OutcomeRetryable, res.Attempts[0].Outcome)
	assert.Equal(t, "fast", res.Response.Metadata.Model)
}

func TestRunCallerCancellationIsFatal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	slow := &scriptedProvider{name: "openai", model: "gpt", block: true}
	next := &scriptedProvider{name: "openai", model: "next", reply: "late"}
	c := New([]provider.Provider{slow, next}, Options{Timeout: time.Minute}, nil, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res, err := c.Run(ctx, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Attempts, 1)
	assert.Zero(t, next.calls)
}

func TestRunEmptyContentIsRetryable(t *testing.T) {
	t.Parallel()

	empty := &scriptedProvider{name: "ollama", model: "quiet"}
	good := &scriptedProvider{name: "ollama", model: "chatty", reply: "Think of it as a shared ledger."}
	c := New([]provider.Provider{empty, good}, Options{}, nil, nil)

	res, err := c.Run(context.Background(), Request{Intent: domain.IntentGeneral})
	require.NoError(t, err)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, domain.ResponseEducation, res.Response.Type)
}

func TestConfidenceBuckets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want float64
	}{
		{1, 0.3}, {49, 0.3}, {50, 0.6}, {199, 0.6}, {200, 0.8}, {499, 0.8}, {500, 0.9}, {5000, 0.9},
	}
	prev := 0.0
	for _, tt := range tests {
		got := Confidence(strings.Repeat("a", tt.n))
		assert.Equal(t, tt.want, got, "len=%d", tt.n)
		assert.GreaterOrEqual(t, got, prev, "confidence must not decrease with length")
		prev = got
	}
}

func TestClassifyResponseType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		intent  domain.Intent
		want    domain.ResponseType
	}{
		{"warning wins over intent", "Warning: this contract is unverified.", domain.IntentEducation, domain.ResponseWarning},
		{"rug pull marker", "Signs of a rug pull are present.", domain.IntentGeneral, domain.ResponseWarning},
		{"education intent", "Staking locks tokens.", domain.IntentEducation, domain.ResponseEducation},
		{"teaching language", "Let me explain how gas works.", domain.IntentGeneral, domain.ResponseEducation},
		{"market analysis", "ETH is up 2% today.", domain.IntentMarket, domain.ResponseAnalysis},
		{"portfolio analysis", "Your largest holding is USDC.", domain.IntentPortfolio, domain.ResponseAnalysis},
		{"security analysis", "Aave v3 has multiple audits.", domain.IntentSecurity, domain.ResponseAnalysis},
		{"plain text", "Hello!", domain.IntentGeneral, domain.ResponseText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyResponseType(tt.content, tt.intent))
		})
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	c := New([]provider.Provider{provider.NewLocal()}, Options{}, nil, nil)
	assert.Equal(t, []string{"local/keyword-v1"}, c.Candidates())
}
