// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/defi-assistant/internal/domain"
)

// Repository defines the interface for persisting conversation history.
type Repository interface {
	// SaveMessage appends a message to its conversation. ID and CreatedAt are
	// filled in when empty.
	SaveMessage(ctx context.Context, msg *domain.StoredMessage) error

	// RecentMessages returns up to limit of the newest messages in a
	// conversation, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error)

	// CountMessages returns the number of stored messages in a conversation.
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// History converts stored messages to chat turns for a provider prompt.
func History(msgs []domain.StoredMessage) []domain.ChatTurn {
	turns := make([]domain.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		turns = append(turns, domain.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
