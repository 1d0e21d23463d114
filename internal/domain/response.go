package domain

import "time"

// AttemptOutcome records how a single provider attempt ended.
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeRetryable AttemptOutcome = "retryable"
	OutcomeFatal     AttemptOutcome = "fatal"
)

// ProviderAttempt describes one (provider, model) try within a cascade run.
type ProviderAttempt struct {
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Outcome   AttemptOutcome `json:"outcome"`
	LatencyMs int64          `json:"latencyMs"`
	Error     string         `json:"error,omitempty"`
}

// ResponseMetadata carries provenance for an AIResponse.
type ResponseMetadata struct {
	Intent        Intent            `json:"intent"`
	Provider      string            `json:"provider,omitempty"`
	Model         string            `json:"model,omitempty"`
	Cached        bool              `json:"cached"`
	Attempts      []ProviderAttempt `json:"attempts,omitempty"`
	ContextErrors []ContextError    `json:"contextErrors,omitempty"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

// AIResponse is the assistant's answer to one inbound message.
type AIResponse struct {
	Content    string           `json:"content"`
	Type       ResponseType     `json:"type"`
	Confidence float64          `json:"confidence"`
	Sources    []string         `json:"sources,omitempty"`
	Metadata   ResponseMetadata `json:"metadata"`
}

// Clone returns a copy that shares no mutable slices with r.
func (r *AIResponse) Clone() *AIResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Sources = append([]string(nil), r.Sources...)
	out.Metadata.Attempts = append([]ProviderAttempt(nil), r.Metadata.Attempts...)
	out.Metadata.ContextErrors = append([]ContextError(nil), r.Metadata.ContextErrors...)
	return &out
}

// ApologyContent is returned when the pipeline cannot produce an answer.
const ApologyContent = "I apologize, but I'm having trouble processing your request right now. Please try again in a moment."

// UnavailableContent is returned when every provider candidate failed.
const UnavailableContent = "The AI service is temporarily unavailable. Please try again shortly. Market data and portfolio tools remain accessible in the meantime."

// NewApologyResponse builds the canned zero-confidence reply for intent.
func NewApologyResponse(intent Intent, content string) *AIResponse {
	return &AIResponse{
		Content:    content,
		Type:       ResponseWarning,
		Confidence: 0,
		Metadata: ResponseMetadata{
			Intent:      intent,
			GeneratedAt: time.Now().UTC(),
		},
	}
}
