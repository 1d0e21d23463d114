// Package intent classifies user messages into a fixed set of categories.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/provider"
)

const classifierSystemPrompt = `You classify messages sent to a DeFi assistant.
Reply with exactly one word from this list and nothing else:
portfolio - questions about the user's own wallet, holdings, balances or performance
market - prices, charts, market trends, token comparisons
security - protocol or contract safety, audits, scams, risk checks
education - explanations of DeFi concepts or how things work
general - anything else`

var categoryPattern = regexp.MustCompile(`\b(portfolio|market|security|education|general)\b`)

// Keyword patterns, checked in Heuristic precedence order. Each keyword only
// matches as a whole word or phrase.
var (
	securityKeywords = keywordPattern(
		"safe", "safety", "secure", "security", "risk", "risks", "risky", "audit", "audits", "audited",
		"scam", "scams", "rug", "rugged", "rug pull", "hack", "hacks", "hacked", "exploit", "exploits",
		"exploited", "vulnerable", "vulnerability", "vulnerabilities", "phishing", "trust", "trusted",
		"trustworthy", "legit", "approval", "approvals", "revoke",
	)
	portfolioKeywords = keywordPattern(
		"my portfolio", "my wallet", "my balance", "my holdings", "my tokens", "my assets",
		"my position", "my positions", "portfolio", "holdings", "balance", "rebalance", "allocation", "pnl",
	)
	marketKeywords = keywordPattern(
		"price", "prices", "market", "markets", "chart", "charts", "trend", "trending", "pump", "dump",
		"bull", "bullish", "bear", "bearish", "volume", "market cap", "trading at", "worth", "rally",
		"all-time high", "dip", "forecast", "prediction",
	)
	educationKeywords = keywordPattern(
		"what is", "what are", "how does", "how do", "explain", "why does", "meaning of",
		"define", "tutorial", "learn", "guide", "difference between", "beginner",
	)
)

func keywordPattern(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Classifier maps free text to an intent. A nil model selects the keyword heuristic.
type Classifier struct {
	model   provider.Provider
	timeout time.Duration
	logger  *slog.Logger
}

// NewClassifier creates a classifier. model may be nil.
func NewClassifier(model provider.Provider, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Classifier{model: model, timeout: timeout, logger: logger}
}

// Classify never fails: model errors and unparseable replies resolve to general.
func (c *Classifier) Classify(ctx context.Context, text string) domain.Intent {
	if c.model == nil {
		return Heuristic(text)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.model.Generate(callCtx, provider.Request{
		System:      classifierSystemPrompt,
		Prompt:      text,
		Query:       text,
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Debug("Intent classification failed, defaulting to general", "provider", c.model.Name(), "error", err)
		return domain.IntentGeneral
	}
	return parseReply(reply)
}

// parseReply accepts a reply naming exactly one distinct category.
func parseReply(reply string) domain.Intent {
	matches := categoryPattern.FindAllString(strings.ToLower(reply), -1)
	if len(matches) == 0 {
		return domain.IntentGeneral
	}
	first := matches[0]
	for _, m := range matches[1:] {
		if m != first {
			return domain.IntentGeneral
		}
	}
	return domain.ParseIntent(first)
}

// Heuristic classifies by keyword, checking security, portfolio, market and
// education in that order.
func Heuristic(text string) domain.Intent {
	lower := strings.ToLower(text)
	switch {
	case strings.TrimSpace(lower) == "":
		return domain.IntentGeneral
	case securityKeywords.MatchString(lower):
		return domain.IntentSecurity
	case portfolioKeywords.MatchString(lower):
		return domain.IntentPortfolio
	case marketKeywords.MatchString(lower):
		return domain.IntentMarket
	case educationKeywords.MatchString(lower):
		return domain.IntentEducation
	default:
		return domain.IntentGeneral
	}
}
