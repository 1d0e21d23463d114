// Package hub tracks live client sessions, their room membership and the
// events broadcast to them.
package hub

import (
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
)

// Outbound event names.
const (
	EventAuthenticated   = "authenticated"
	EventNewMessage      = "new-message"
	EventAITyping        = "ai-typing"
	EventUserTyping      = "user-typing"
	EventMarketUpdate    = "market-update"
	EventPortfolioUpdate = "portfolio-update"
	EventSecurityAlert   = "security-alert"
	EventError           = "error"
	EventPong            = "pong"
	EventJoined          = "joined"
	EventLeft            = "left"
)

// Event is the {"type","data"} envelope used in both directions.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TypingPayload is sent with ai-typing and user-typing.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	Typing         bool   `json:"typing"`
	SessionID      string `json:"sessionId,omitempty"`
}

// MessagePayload carries an assistant reply to a conversation.
type MessagePayload struct {
	ConversationID string             `json:"conversationId,omitempty"`
	Message        *domain.AIResponse `json:"message"`
}

// MarketPayload carries a batch of prices.
type MarketPayload struct {
	Prices    []domain.TokenPrice `json:"prices"`
	Timestamp time.Time           `json:"timestamp"`
}

// PortfolioPayload carries a wallet snapshot.
type PortfolioPayload struct {
	Address   string                   `json:"address"`
	Data      domain.PortfolioSnapshot `json:"data"`
	Timestamp time.Time                `json:"timestamp"`
}

// AlertPayload carries a security alert for a wallet.
type AlertPayload struct {
	Address   string         `json:"address"`
	Alert     map[string]any `json:"alert"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuthPayload acknowledges an authenticate event.
type AuthPayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomPayload acknowledges a join or leave.
type RoomPayload struct {
	Room string `json:"room"`
}

// PongPayload answers a ping.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload is sent with error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Room name prefixes.
const (
	chatPrefix      = "chat:"
	MarketRoom      = "market-updates"
	portfolioPrefix = "portfolio:"
	securityPrefix  = "security:"
)

// ChatRoom returns the room for a conversation, or "" for an empty id.
func ChatRoom(conversationID string) string {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ""
	}
	return chatPrefix + conversationID
}

// MarketSymbolRoom returns the per-symbol market room.
func MarketSymbolRoom(symbol string) string {
	return MarketRoom + ":" + strings.ToUpper(symbol)
}

// PortfolioRoom returns the room for a wallet's portfolio updates.
func PortfolioRoom(address string) string {
	return portfolioPrefix + strings.ToLower(address)
}

// SecurityRoom returns the room for a wallet's security alerts.
func SecurityRoom(address string) string {
	return securityPrefix + strings.ToLower(address)
}

// SymbolFromRoom extracts the symbol from a per-symbol market room name.
func SymbolFromRoom(room string) (string, bool) {
	sym, ok := strings.CutPrefix(room, MarketRoom+":")
	return sym, ok && sym != ""
}
