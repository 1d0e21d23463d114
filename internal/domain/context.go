package domain

import "time"

// Context bundle keys populated by the aggregator.
const (
	ContextMarketOverview    = "marketOverview"
	ContextPrices            = "prices"
	ContextPortfolio         = "portfolio"
	ContextPortfolioAnalysis = "portfolioAnalysis"
	ContextSecurity          = "security"
	ContextSymbols           = "symbols"
	ContextTargets           = "securityTargets"
)

// ContextError records a collaborator call that failed or timed out.
type ContextError struct {
	Key      string `json:"key"`
	Source   string `json:"source"`
	Message  string `json:"message"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// ContextBundle is the supporting data gathered for one message.
// Data may be partial. Each missing key that was attempted has an entry in Errors.
type ContextBundle struct {
	Data   map[string]any `json:"data"`
	Errors []ContextError `json:"errors,omitempty"`
}

// NewContextBundle returns an empty bundle.
func NewContextBundle() ContextBundle {
	return ContextBundle{Data: make(map[string]any)}
}

// HasIdentityData reports whether the bundle holds wallet-specific data.
func (b ContextBundle) HasIdentityData() bool {
	_, snap := b.Data[ContextPortfolio]
	_, analysis := b.Data[ContextPortfolioAnalysis]
	return snap || analysis
}

// TokenPrice is a single market quote.
type TokenPrice struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Volume24h float64   `json:"volume24h,omitempty"`
	MarketCap float64   `json:"marketCap,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarketOverview summarises overall market conditions.
type MarketOverview struct {
	TotalMarketCap float64      `json:"totalMarketCap"`
	TotalVolume24h float64      `json:"totalVolume24h"`
	BTCDominance   float64      `json:"btcDominance"`
	Sentiment      string       `json:"sentiment,omitempty"`
	TopMovers      []TokenPrice `json:"topMovers,omitempty"`
}

// PortfolioSnapshot is a wallet's current holdings.
type PortfolioSnapshot struct {
	Address    string         `json:"address"`
	TotalValue float64        `json:"totalValue"`
	Change24h  float64        `json:"change24h"`
	Holdings   []Holding      `json:"holdings"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Holding is one asset position in a portfolio.
type Holding struct {
	Symbol  string  `json:"symbol"`
	Amount  float64 `json:"amount"`
	ValueUS float64 `json:"valueUsd"`
	Chain   string  `json:"chain,omitempty"`
}

// SecurityReport is the result of analysing a protocol or contract.
type SecurityReport struct {
	Target    string   `json:"target"`
	RiskScore float64  `json:"riskScore"`
	RiskLevel string   `json:"riskLevel"`
	Findings  []string `json:"findings,omitempty"`
	Audited   bool     `json:"audited"`
}
