package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the outbound half of a client connection.
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Session is one live client connection. Outbound frames are queued and
// written by a dedicated goroutine so a slow client never blocks a broadcast.
type Session struct {
	id          string
	connectedAt time.Time
	conn        Conn
	logger      *slog.Logger

	mu      sync.RWMutex
	address string
	rooms   map[string]struct{}
	closed  bool

	outputChan   chan []byte
	writeTimeout time.Duration
	dropped      atomic.Int64
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func newSession(id string, conn Conn, buffer int, writeTimeout time.Duration, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           id,
		connectedAt:  time.Now().UTC(),
		conn:         conn,
		logger:       logger,
		rooms:        make(map[string]struct{}),
		outputChan:   make(chan []byte, buffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.wg.Add(1)
	go s.processOutput()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ConnectedAt returns when the session was registered.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Address returns the authenticated wallet address, or "".
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Authenticated reports whether an identity is attached.
func (s *Session) Authenticated() bool {
	return s.Address() != ""
}

// Rooms returns the rooms the session has joined.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// InRoom reports membership in room.
func (s *Session) InRoom(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Dropped returns how many frames were discarded under backpressure.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// Send queues a frame. When the queue is full the oldest frame is dropped.
// Returns false once the session is closed.
func (s *Session) Send(data []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.outputChan <- data:
		return true
	default:
	}

	// Queue full: drop oldest to make room.
	select {
	case <-s.outputChan:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.outputChan <- data:
		return true
	default:
		s.dropped.Add(1)
		s.logger.Warn("Session queue full after backpressure", "session_id", s.id)
		return false
	}
}

func (s *Session) processOutput() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.outputChan:
			writeCtx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
			err := s.conn.Write(writeCtx, data)
			cancel()
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Debug("Session write failed", "session_id", s.id, "error", err)
				}
				return
			}
		}
	}
}

func (s *Session) setAddress(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
}

func (s *Session) addRoom(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

func (s *Session) removeRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

// markClosed flips the session to closed and returns its rooms.
func (s *Session) markClosed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	s.rooms = make(map[string]struct{})
	return out
}

// shutdown stops the writer and waits for it to exit.
func (s *Session) shutdown() {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Session writer shutdown timeout", "session_id", s.id)
	}
}
