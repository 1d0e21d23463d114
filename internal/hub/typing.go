package hub

import "context"

// Typing brackets long-running work with ai-typing start and stop events.
type Typing struct {
	router *Router
}

// NewTyping creates a coordinator that broadcasts through router.
func NewTyping(router *Router) *Typing {
	return &Typing{router: router}
}

// Run broadcasts typing=true to room, runs fn, and broadcasts typing=false on
// every exit path including a panic in fn. An empty room runs fn silently.
func (t *Typing) Run(ctx context.Context, room, conversationID string, fn func(context.Context) error) error {
	if room == "" {
		return fn(ctx)
	}

	t.router.Broadcast(room, Event{Type: EventAITyping, Data: TypingPayload{ConversationID: conversationID, Typing: true}})
	defer t.router.Broadcast(room, Event{Type: EventAITyping, Data: TypingPayload{ConversationID: conversationID, Typing: false}})

	return fn(ctx)
}
