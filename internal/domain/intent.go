package domain

import "strings"

// Intent is the coarse category a user message is classified into.
type Intent string

const (
	IntentPortfolio Intent = "portfolio"
	IntentMarket    Intent = "market"
	IntentSecurity  Intent = "security"
	IntentEducation Intent = "education"
	IntentGeneral   Intent = "general"
)

// ParseIntent maps s onto the intent enum. Anything unrecognised is general.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentPortfolio:
		return IntentPortfolio
	case IntentMarket:
		return IntentMarket
	case IntentSecurity:
		return IntentSecurity
	case IntentEducation:
		return IntentEducation
	default:
		return IntentGeneral
	}
}

// ResponseType is the presentation category of an assistant reply.
type ResponseType string

const (
	ResponseText      ResponseType = "text"
	ResponseAnalysis  ResponseType = "analysis"
	ResponseWarning   ResponseType = "warning"
	ResponseEducation ResponseType = "education"
)
