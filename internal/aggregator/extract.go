package aggregator

import (
	"regexp"
	"strings"
)

var contractPattern = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// tokenSymbols maps recognised tickers and common names onto tickers.
var tokenSymbols = map[string]string{
	"btc": "BTC", "bitcoin": "BTC",
	"eth": "ETH", "ethereum": "ETH", "ether": "ETH",
	"usdc": "USDC", "usdt": "USDT", "tether": "USDT", "dai": "DAI",
	"sol": "SOL", "solana": "SOL",
	"bnb": "BNB", "binance": "BNB",
	"matic": "MATIC", "polygon": "MATIC",
	"avax": "AVAX", "avalanche": "AVAX",
	"link": "LINK", "chainlink": "LINK",
	"uni": "UNI",
	"aave": "AAVE",
	"arb": "ARB", "arbitrum": "ARB",
	"op": "OP", "optimism": "OP",
	"doge": "DOGE", "dogecoin": "DOGE",
	"ada": "ADA", "cardano": "ADA",
	"dot": "DOT", "polkadot": "DOT",
	"crv": "CRV", "mkr": "MKR", "ldo": "LDO", "wbtc": "WBTC", "steth": "STETH",
}

// protocols is the fixed vocabulary of protocol names recognised for security checks.
var protocols = []string{
	"uniswap", "aave", "compound", "curve", "makerdao", "maker", "lido", "sushiswap",
	"pancakeswap", "balancer", "yearn", "convex", "gmx", "dydx", "rocket pool",
	"eigenlayer", "pendle", "morpho", "spark", "frax", "synthetix", "1inch", "stargate",
}

var investmentKeywords = []string{
	"invest", "buy", "sell", "should i", "portfolio", "allocation", "profit", "return",
	"yield", "apy", "apr", "stake", "staking", "trade", "trading", "hold", "hodl", "dca",
}

// ExtractSymbols returns the distinct tickers mentioned in text, in order of first mention.
func ExtractSymbols(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordPattern.FindAllString(text, -1) {
		sym, ok := tokenSymbols[strings.ToLower(w)]
		if !ok || seen[sym] {
			continue
		}
		// Short tickers that are also English words only count when written in capitals.
		if ambiguousTicker(w) && w != strings.ToUpper(w) {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

func ambiguousTicker(w string) bool {
	switch strings.ToLower(w) {
	case "op", "link", "uni", "dot", "sol", "arb", "ada":
		return true
	}
	return false
}

// ExtractSecurityTargets returns recognised protocol names and contract addresses.
// Protocols are returned in vocabulary order followed by addresses in order of appearance.
func ExtractSecurityTargets(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var out []string
	for _, p := range protocols {
		if p == "maker" && seen["makerdao"] {
			continue
		}
		if strings.Contains(lower, p) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, addr := range contractPattern.FindAllString(text, -1) {
		addr = strings.ToLower(addr)
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// HasInvestmentLanguage reports whether text discusses investing decisions.
func HasInvestmentLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range investmentKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// NormalizeSymbol maps a name or ticker onto an upper-case ticker. Unknown
// tickers are accepted when they look like one.
func NormalizeSymbol(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if sym, ok := tokenSymbols[strings.ToLower(s)]; ok {
		return sym, true
	}
	s = strings.ToUpper(s)
	return s, symbolPattern.MatchString(s)
}
