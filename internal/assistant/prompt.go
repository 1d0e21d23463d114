package assistant

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/defi-assistant/internal/domain"
)

const persona = `You are a DeFi assistant. You help users understand decentralized finance, ` +
	`read market conditions, review their portfolio and judge protocol risk. ` +
	`Be concise and concrete. Quote numbers from the supplied context when you use them ` +
	`and say plainly when data is missing. Never ask for private keys or seed phrases. ` +
	`You do not give personalised financial advice; frame suggestions as considerations.`

var intentGuidance = map[domain.Intent]string{
	domain.IntentPortfolio: "The user is asking about their own holdings. Use the portfolio snapshot and analysis " +
		"when present to discuss allocation, concentration and 24h performance. If no portfolio data is present, " +
		"explain that a wallet must be connected.",
	domain.IntentMarket: "The user is asking about market conditions. Lead with the current prices and 24h changes " +
		"for the tokens they named, then add the broader market picture.",
	domain.IntentSecurity: "The user is asking about safety. Summarise each security report's risk level and key findings. " +
		"Flag any high risk clearly with the word warning and recommend caution when a protocol is unaudited.",
	domain.IntentEducation: "The user wants to learn. Explain the concept step by step with a simple example. " +
		"Use market data only as an illustration.",
	domain.IntentGeneral: "Answer helpfully and briefly. Offer to go deeper on markets, portfolio or security if relevant.",
}

// BuildSystemPrompt combines the persona with intent-specific guidance.
func BuildSystemPrompt(intent domain.Intent) string {
	guidance, ok := intentGuidance[intent]
	if !ok {
		guidance = intentGuidance[domain.IntentGeneral]
	}
	return persona + "\n\n" + guidance
}

// BuildPrompt renders the user message with the serialized context bundle.
func BuildPrompt(text string, bundle domain.ContextBundle) string {
	var b strings.Builder

	if len(bundle.Data) > 0 {
		raw, err := json.MarshalIndent(bundle.Data, "", "  ")
		if err == nil {
			b.WriteString("Context data (JSON):\n")
			b.Write(raw)
			b.WriteString("\n\n")
		}
	}

	if len(bundle.Errors) > 0 {
		b.WriteString("Unavailable context:\n")
		for _, e := range bundle.Errors {
			fmt.Fprintf(&b, "- %s (%s)\n", e.Key, e.Source)
		}
		b.WriteString("\n")
	}

	b.WriteString("User message:\n")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}

// contextSources lists the bundle keys that were populated, for AIResponse.Sources.
func contextSources(bundle domain.ContextBundle) []string {
	out := make([]string, 0, len(bundle.Data))
	for k := range bundle.Data {
		if k == domain.ContextSymbols || k == domain.ContextTargets {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
