package cascade

import (
	"strings"

	"github.com/ashureev/defi-assistant/internal/domain"
)

var warningMarkers = []string{
	"warning", "caution", "high risk", "high-risk", "scam", "rug pull",
	"exploit", "be careful", "do not interact", "phishing", "⚠",
}

var teachingMarkers = []string{
	"let me explain", "in simple terms", "for example", "think of it as",
	"step by step", "here's how", "here is how",
}

// Confidence buckets response length into a fixed score.
func Confidence(content string) float64 {
	n := len([]rune(content))
	switch {
	case n < 50:
		return 0.3
	case n < 200:
		return 0.6
	case n < 500:
		return 0.8
	default:
		return 0.9
	}
}

// ClassifyResponseType picks the presentation type for content generated for intent.
func ClassifyResponseType(content string, intent domain.Intent) domain.ResponseType {
	lower := strings.ToLower(content)
	switch {
	case hasAny(lower, warningMarkers):
		return domain.ResponseWarning
	case intent == domain.IntentEducation || hasAny(lower, teachingMarkers):
		return domain.ResponseEducation
	case intent == domain.IntentPortfolio || intent == domain.IntentMarket || intent == domain.IntentSecurity:
		return domain.ResponseAnalysis
	default:
		return domain.ResponseText
	}
}

func hasAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
