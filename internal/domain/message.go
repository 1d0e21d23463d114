// Package domain contains core domain types for the DeFi assistant.
package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrEmptyMessage is returned when an inbound message has no usable text.
var ErrEmptyMessage = errors.New("message text is required")

var walletAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Channel identifies which delivery path a message arrived on.
type Channel string

const (
	ChannelWebSocket Channel = "websocket"
	ChannelHTTP      Channel = "http"
)

// InboundMessage is a user message entering the response pipeline.
type InboundMessage struct {
	Text           string  `json:"text"`
	Address        string  `json:"address,omitempty"`
	ConversationID string  `json:"conversationId,omitempty"`
	SessionID      string  `json:"sessionId,omitempty"`
	Channel        Channel `json:"channel,omitempty"`
}

// Validate checks that the message carries non-blank text.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// IsWalletAddress reports whether s is a 0x-prefixed 40 hex digit address.
func IsWalletAddress(s string) bool {
	return walletAddressPattern.MatchString(s)
}

// NormalizeAddress lower-cases a wallet address, or returns "" when s is not one.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if !IsWalletAddress(s) {
		return ""
	}
	return strings.ToLower(s)
}

// Message roles stored in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StoredMessage is a persisted conversation entry.
type StoredMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Address        string         `json:"address,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ChatTurn is a single prior exchange passed to a provider as history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
