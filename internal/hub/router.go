package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Router maps room names to member sessions.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Session
	logger *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rooms:  make(map[string]map[string]*Session),
		logger: logger,
	}
}

// Join adds s to room, creating the room on first join. Returns false for a
// closed session or an empty room name.
func (r *Router) Join(s *Session, room string) bool {
	if room == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !s.addRoom(room) {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[room] = members
	}
	members[s.id] = s
	return true
}

// Leave removes s from room. Empty rooms are deleted.
func (r *Router) Leave(s *Session, room string) {
	s.removeRoom(room)
	r.detach(s, room)
}

// LeavePrefix removes s from every room it joined whose name starts with prefix.
func (r *Router) LeavePrefix(s *Session, prefix string) {
	for _, room := range s.Rooms() {
		if strings.HasPrefix(room, prefix) {
			r.Leave(s, room)
		}
	}
}

func (r *Router) detach(s *Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	if current, ok := members[s.id]; ok && current == s {
		delete(members, s.id)
	}
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast delivers event to every current member of room and returns the
// number of sessions it was queued for. An empty or unknown room is a no-op.
func (r *Router) Broadcast(room string, event Event) int {
	return r.BroadcastExcept(room, event, "")
}

// BroadcastExcept is Broadcast skipping the session with id except.
func (r *Router) BroadcastExcept(room string, event Event, except string) int {
	if room == "" {
		return 0
	}

	r.mu.RLock()
	members := r.rooms[room]
	targets := make([]*Session, 0, len(members))
	for id, s := range members {
		if id != except {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to encode broadcast", "room", room, "type", event.Type, "error", err)
		return 0
	}

	delivered := 0
	for _, s := range targets {
		if s.Send(data) {
			delivered++
		}
	}
	return delivered
}

// SendTo delivers event to a single session.
func SendTo(s *Session, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if !s.Send(data) {
		return fmt.Errorf("session %s closed", s.id)
	}
	return nil
}

// Members returns the sorted session ids in room.
func (r *Router) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasMembers reports whether room has at least one member.
func (r *Router) HasMembers(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room]) > 0
}

// Rooms returns the sorted names of non-empty rooms starting with prefix.
func (r *Router) Rooms(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name := range r.rooms {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of non-empty rooms.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
