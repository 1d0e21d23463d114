package provider

import (
	"context"
	"strings"

	"github.com/ashureev/defi-assistant/internal/config"
)

type topicReply struct {
	keywords []string
	reply    string
}

// Ordered so that more specific topics win over broad ones.
var localTopics = []topicReply{
	{
		keywords: []string{"impermanent loss"},
		reply: "Impermanent loss happens when the price ratio of tokens in a liquidity pool changes after you deposit. " +
			"The pool rebalances, so withdrawing can return less value than simply holding the tokens. " +
			"It becomes permanent only when you withdraw at the changed ratio. Stable pairs and concentrated ranges you monitor closely reduce the exposure.",
	},
	{
		keywords: []string{"rug pull", "scam", "audit", "hack", "exploit", "safe", "risk"},
		reply: "Before interacting with any protocol or contract, check whether it has been audited by a reputable firm, " +
			"how long it has held significant liquidity, whether admin keys are behind a timelock or multisig, and whether the contract source is verified. " +
			"Revoke token approvals you no longer need and never sign transactions you do not understand.",
	},
	{
		keywords: []string{"yield", "farming", "staking", "apy", "apr"},
		reply: "Yield in DeFi comes from lending interest, trading fees, staking rewards or token incentives. " +
			"High advertised APYs are often paid in volatile reward tokens, so compare the real yield after fees and price movement. " +
			"Smart contract risk compounds with every protocol you stack.",
	},
	{
		keywords: []string{"liquidity", "pool", "amm", "uniswap"},
		reply: "Automated market makers price trades from pool reserves instead of an order book. " +
			"Liquidity providers deposit token pairs and earn a share of swap fees in proportion to their stake, accepting impermanent loss risk in return.",
	},
	{
		keywords: []string{"price", "market", "trend", "bitcoin", "btc", "eth", "ethereum"},
		reply: "Live market commentary needs an AI model, which is not configured right now. " +
			"Current prices are still streamed on the market updates channel. Subscribe to it for quotes every 30 seconds.",
	},
	{
		keywords: []string{"portfolio", "wallet", "balance", "holdings"},
		reply: "Connect your wallet to see holdings and allocation. " +
			"A common starting point is to review concentration: how much of your value sits in a single asset or protocol, and how much is in stablecoins you could deploy.",
	},
	{
		keywords: []string{"defi", "decentralized finance"},
		reply: "DeFi (decentralized finance) is a set of financial services such as lending, trading and saving built on public blockchains with smart contracts instead of banks. " +
			"Anyone with a wallet can use them, and positions are transparent on-chain, but users carry their own key management and smart contract risk.",
	},
}

const localDefaultReply = "I can explain DeFi concepts, summarise market conditions, review a connected portfolio and flag protocol security risks. " +
	"Ask me about a token, a protocol, or a strategy you are considering."

// Local answers from a fixed set of topic replies without calling a model.
type Local struct{}

// NewLocal returns the keyword responder.
func NewLocal() *Local { return &Local{} }

// Name returns the provider identifier.
func (*Local) Name() string { return config.ProviderLocal }

// Model returns the responder identifier.
func (*Local) Model() string { return "keyword-v1" }

// Generate picks the first topic whose keyword appears in the query.
func (*Local) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := req.Query
	if text == "" {
		text = req.Prompt
	}
	text = strings.ToLower(text)
	for _, topic := range localTopics {
		if containsAny(text, topic.keywords...) {
			return topic.reply, nil
		}
	}
	return localDefaultReply, nil
}
