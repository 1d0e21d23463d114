package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/defi-assistant/internal/collaborator"
	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

type fakeServices struct {
	mu            sync.Mutex
	priceRequests [][]string
	snapshots     []string
	analyzed      []string

	overviewErr  error
	overviewHang bool
	analyzeFail  map[string]bool
	panicPrices  bool
}

func (f *fakeServices) Overview(ctx context.Context) (domain.MarketOverview, error) {
	if f.overviewHang {
		select {}
	}
	return domain.MarketOverview{TotalMarketCap: 2e12, Sentiment: "neutral"}, f.overviewErr
}

func (f *fakeServices) Prices(_ context.Context, symbols []string) ([]domain.TokenPrice, error) {
	if f.panicPrices {
		panic("boom")
	}
	f.mu.Lock()
	f.priceRequests = append(f.priceRequests, symbols)
	f.mu.Unlock()
	out := make([]domain.TokenPrice, len(symbols))
	for i, s := range symbols {
		out[i] = domain.TokenPrice{Symbol: s, Price: 1}
	}
	return out, nil
}

func (f *fakeServices) Snapshot(_ context.Context, address string) (domain.PortfolioSnapshot, error) {
	f.mu.Lock()
	f.snapshots = append(f.snapshots, address)
	f.mu.Unlock()
	return domain.PortfolioSnapshot{Address: address, TotalValue: 99}, nil
}

func (f *fakeServices) Analysis(_ context.Context, address string) (map[string]any, error) {
	return map[string]any{"address": address}, nil
}

func (f *fakeServices) Analyze(_ context.Context, target string) (domain.SecurityReport, error) {
	f.mu.Lock()
	f.analyzed = append(f.analyzed, target)
	f.mu.Unlock()
	if f.analyzeFail[target] {
		return domain.SecurityReport{}, errors.New("analysis backend error")
	}
	return domain.SecurityReport{Target: target, RiskLevel: "low"}, nil
}

func newTestAggregator(f *fakeServices) *Aggregator {
	return New(collaborator.Services{Market: f, Portfolio: f, Security: f}, Config{
		CallTimeout:   200 * time.Millisecond,
		Watchlist:     []string{"BTC", "ETH", "USDC", "SOL", "BNB", "LINK"},
		WatchlistSize: 3,
	}, nil)
}

func TestAggregateMarketNamedSymbol(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentMarket, "What is the price of ETH?", "")

	assert.Empty(t, b.Errors)
	assert.Contains(t, b.Data, domain.ContextMarketOverview)
	prices, ok := b.Data[domain.ContextPrices].([]domain.TokenPrice)
	require.True(t, ok)
	require.Len(t, prices, 1)
	assert.Equal(t, "ETH", prices[0].Symbol)
}

func TestAggregateMarketDefaultWatchlist(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentMarket, "how is the market today", "")

	require.Len(t, f.priceRequests, 1)
	assert.Equal(t, []string{"BTC", "ETH", "USDC"}, f.priceRequests[0])
	assert.NotContains(t, b.Data, domain.ContextSymbols)
}

func TestAggregatePortfolio(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentPortfolio, "how is my portfolio", wallet)

	assert.Contains(t, b.Data, domain.ContextPortfolio)
	assert.Contains(t, b.Data, domain.ContextPortfolioAnalysis)
	assert.Contains(t, b.Data, domain.ContextMarketOverview)
	assert.Equal(t, []string{"0xabcdef0123456789abcdef0123456789abcdef01"}, f.snapshots)
	assert.True(t, b.HasIdentityData())
}

func TestAggregatePortfolioWithoutIdentity(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentPortfolio, "how is my portfolio", "not-an-address")

	assert.Empty(t, f.snapshots)
	assert.Contains(t, b.Data, domain.ContextMarketOverview)
	assert.False(t, b.HasIdentityData())
}

func TestAggregateSecurityIndependentFailures(t *testing.T) {
	t.Parallel()

	contract := "0x1111111111111111111111111111111111111111"
	f := &fakeServices{analyzeFail: map[string]bool{"curve": true}}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentSecurity,
		"Is uniswap or curve safe? Also check "+contract, "")

	assert.ElementsMatch(t, []string{"uniswap", "curve", contract}, f.analyzed)
	reports, ok := b.Data[domain.ContextSecurity].(map[string]domain.SecurityReport)
	require.True(t, ok)
	assert.Len(t, reports, 2)
	assert.Contains(t, reports, "uniswap")
	assert.Contains(t, reports, contract)
	require.Len(t, b.Errors, 1)
	assert.Equal(t, "security.curve", b.Errors[0].Key)
}

func TestAggregateSecurityNoTargets(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentSecurity, "is this safe?", "")
	assert.Empty(t, f.analyzed)
	assert.Empty(t, b.Data)
	assert.Empty(t, b.Errors)
}

func TestAggregateEducation(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentEducation, "Explain DeFi", "")
	assert.Empty(t, b.Data)
	assert.Empty(t, f.priceRequests)

	b = newTestAggregator(f).Aggregate(context.Background(), domain.IntentEducation, "What is staking and should I invest?", "")
	assert.Contains(t, b.Data, domain.ContextMarketOverview)
	assert.Contains(t, b.Data, domain.ContextPrices)
}

func TestAggregateGeneral(t *testing.T) {
	t.Parallel()

	f := &fakeServices{}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentGeneral, "hi there", "")
	assert.Contains(t, b.Data, domain.ContextMarketOverview)
	assert.NotContains(t, b.Data, domain.ContextPrices)
}

func TestAggregateTimeoutBecomesContextError(t *testing.T) {
	t.Parallel()

	f := &fakeServices{overviewHang: true}
	start := time.Now()
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentMarket, "price of BTC", "")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotContains(t, b.Data, domain.ContextMarketOverview)
	assert.Contains(t, b.Data, domain.ContextPrices)
	require.Len(t, b.Errors, 1)
	assert.True(t, b.Errors[0].TimedOut)
	assert.Equal(t, domain.ContextMarketOverview, b.Errors[0].Key)
}

func TestAggregateRecordsErrorsAndPanics(t *testing.T) {
	t.Parallel()

	f := &fakeServices{overviewErr: errors.New("upstream 502"), panicPrices: true}
	b := newTestAggregator(f).Aggregate(context.Background(), domain.IntentMarket, "price of ETH", "")
	assert.Empty(t, b.Data[domain.ContextPrices])
	assert.Len(t, b.Errors, 2)
}

func TestAggregateMissingCollaborators(t *testing.T) {
	t.Parallel()

	a := New(collaborator.Services{}, Config{Watchlist: []string{"BTC"}}, nil)
	b := a.Aggregate(context.Background(), domain.IntentPortfolio, "my portfolio", wallet)
	assert.Empty(t, b.Data)
	assert.Len(t, b.Errors, 2)
	for _, e := range b.Errors {
		assert.Equal(t, collaborator.ErrUnavailable.Error(), e.Message)
	}
}

func TestExtractSymbols(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"ETH", "BTC"}, ExtractSymbols("Compare ethereum with BTC and eth"))
	assert.Equal(t, []string{"LINK"}, ExtractSymbols("price of LINK"))
	assert.Empty(t, ExtractSymbols("send me the link to the docs"))
	assert.Equal(t, []string{"SOL"}, ExtractSymbols("how is solana doing"))
}

func TestExtractSecurityTargets(t *testing.T) {
	t.Parallel()

	got := ExtractSecurityTargets("Is MakerDAO safer than Aave? 0xABCDEF0123456789abcdef0123456789abcdef01")
	assert.Equal(t, []string{"aave", "makerdao", "0xabcdef0123456789abcdef0123456789abcdef01"}, got)
}

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	sym, ok := NormalizeSymbol("bitcoin")
	assert.True(t, ok)
	assert.Equal(t, "BTC", sym)

	sym, ok = NormalizeSymbol("pepe")
	assert.True(t, ok)
	assert.Equal(t, "PEPE", sym)

	_, ok = NormalizeSymbol("not a symbol!")
	assert.False(t, ok)
}
