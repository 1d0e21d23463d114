package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/aggregator"
	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/hub"
	"github.com/ashureev/defi-assistant/internal/identity"
	"github.com/coder/websocket"
)

// Inbound event names.
const (
	cmdAuthenticate         = "authenticate"
	cmdSendMessage          = "send-message"
	cmdSendMessageAlias     = "send_message"
	cmdJoinConversation     = "join_conversation"
	cmdLeaveConversation    = "leave_conversation"
	cmdSubscribeMarket      = "subscribe_market"
	cmdUnsubscribeMarket    = "unsubscribe_market"
	cmdSubscribePortfolio   = "subscribe_portfolio"
	cmdUnsubscribePortfolio = "unsubscribe_portfolio"
	cmdTypingStart          = "typing_start"
	cmdTypingStop           = "typing_stop"
	cmdPing                 = "ping"
)

const maxFrameBytes = 64 * 1024

// wsConn adapts websocket.Conn to hub.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusGoingAway, reason)
}

// command is one inbound event. Fields may sit under "data" or at the top level.
type command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type commandData struct {
	Address        string   `json:"address,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Content        string   `json:"content,omitempty"`
	Message        string   `json:"message,omitempty"`
	UserAddress    string   `json:"userAddress,omitempty"`
	Symbols        []string `json:"symbols,omitempty"`
}

func parseCommand(frame []byte) (string, commandData, error) {
	var cmd command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return "", commandData{}, err
	}
	var data commandData
	payload := cmd.Data
	if len(payload) == 0 || string(payload) == "null" {
		payload = frame
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return cmd.Type, commandData{}, err
	}
	if cmd.Type == cmdSendMessageAlias {
		cmd.Type = cmdSendMessage
	}
	return cmd.Type, data, nil
}

// ServeWS implements the WebSocket endpoint.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !g.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Error("Failed to accept WebSocket", "error", err, "ip", identity.IPFromRequest(r))
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	s := g.registry.Register(&wsConn{conn: ws})
	defer func() {
		g.registry.Deregister(s)
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			g.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", s.ID())
		}
	}()

	if addr := identity.AddressFromRequest(r); addr != "" {
		if _, err := g.authenticate(s, addr); err != nil {
			g.logger.Debug("Handshake identity rejected", "session_id", s.ID(), "error", err)
		}
	}

	g.readLoop(r.Context(), ws, s)
	g.logger.Info("WebSocket session ended", "session_id", s.ID(), "duration", time.Since(s.ConnectedAt()).Round(time.Millisecond))
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || g.cfg.AllowedOrigin == "" || g.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == g.cfg.AllowedOrigin {
		return true
	}
	g.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", g.cfg.AllowedOrigin)
	return false
}

// readLoop handles one event at a time, so session state for a connection is
// never mutated concurrently. Only pipeline runs leave the loop.
func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, s *hub.Session) {
	for {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				g.logger.Debug("WebSocket closed by client", "session_id", s.ID())
			} else {
				g.logger.Warn("WebSocket read error", "error", err, "session_id", s.ID())
			}
			return
		}

		typ, data, err := parseCommand(frame)
		if err != nil {
			g.sendError(s, "malformed event")
			continue
		}
		g.dispatch(ctx, s, typ, data)
	}
}

//nolint:gocyclo // One case per inbound event keeps the protocol readable in one place.
func (g *Gateway) dispatch(ctx context.Context, s *hub.Session, typ string, data commandData) {
	switch typ {
	case cmdAuthenticate:
		addr := data.Address
		if addr == "" {
			addr = data.UserAddress
		}
		if strings.TrimSpace(addr) == "" {
			// Anonymous acknowledgement: the session keeps whatever identity it has.
			userID := s.Address()
			if userID == "" {
				userID = s.ID()
			}
			g.send(s, hub.Event{Type: hub.EventAuthenticated, Data: hub.AuthPayload{UserID: userID, Timestamp: time.Now().UTC()}})
			return
		}
		if _, err := g.authenticate(s, addr); err != nil {
			g.sendError(s, err.Error())
		}

	case cmdSendMessage:
		g.handleSendMessage(ctx, s, data)

	case cmdJoinConversation:
		room := hub.ChatRoom(data.ConversationID)
		if room == "" {
			g.sendError(s, "conversationId is required")
			return
		}
		g.router.Join(s, room)
		g.send(s, hub.Event{Type: hub.EventJoined, Data: hub.RoomPayload{Room: room}})

	case cmdLeaveConversation:
		room := hub.ChatRoom(data.ConversationID)
		if room == "" {
			g.sendError(s, "conversationId is required")
			return
		}
		g.router.Leave(s, room)
		g.send(s, hub.Event{Type: hub.EventLeft, Data: hub.RoomPayload{Room: room}})

	case cmdSubscribeMarket:
		rooms := g.marketRooms(data.Symbols)
		if len(rooms) == 0 {
			g.sendError(s, "no valid symbols")
			return
		}
		for _, room := range rooms {
			g.router.Join(s, room)
			g.send(s, hub.Event{Type: hub.EventJoined, Data: hub.RoomPayload{Room: room}})
		}

	case cmdUnsubscribeMarket:
		if len(data.Symbols) == 0 {
			g.router.LeavePrefix(s, hub.MarketRoom)
			g.send(s, hub.Event{Type: hub.EventLeft, Data: hub.RoomPayload{Room: hub.MarketRoom}})
			return
		}
		for _, room := range g.marketRooms(data.Symbols) {
			g.router.Leave(s, room)
			g.send(s, hub.Event{Type: hub.EventLeft, Data: hub.RoomPayload{Room: room}})
		}

	case cmdSubscribePortfolio:
		addr, err := g.ownAddress(s, data.Address)
		if err != nil {
			g.sendError(s, err.Error())
			return
		}
		room := hub.PortfolioRoom(addr)
		g.router.Join(s, room)
		g.send(s, hub.Event{Type: hub.EventJoined, Data: hub.RoomPayload{Room: room}})
		if g.services.Portfolio != nil {
			go func() {
				if _, _, err := g.refreshPortfolio(context.WithoutCancel(ctx), addr); err != nil {
					g.logger.Debug("Initial portfolio push failed", "address", addr, "error", err)
				}
			}()
		}

	case cmdUnsubscribePortfolio:
		addr, err := g.ownAddress(s, data.Address)
		if err != nil {
			g.sendError(s, err.Error())
			return
		}
		room := hub.PortfolioRoom(addr)
		g.router.Leave(s, room)
		g.send(s, hub.Event{Type: hub.EventLeft, Data: hub.RoomPayload{Room: room}})

	case cmdTypingStart, cmdTypingStop:
		room := hub.ChatRoom(data.ConversationID)
		if room == "" || !s.InRoom(room) {
			return
		}
		g.router.BroadcastExcept(room, hub.Event{
			Type: hub.EventUserTyping,
			Data: hub.TypingPayload{ConversationID: data.ConversationID, Typing: typ == cmdTypingStart, SessionID: s.ID()},
		}, s.ID())

	case cmdPing:
		g.send(s, hub.Event{Type: hub.EventPong, Data: hub.PongPayload{Timestamp: time.Now().UTC()}})

	default:
		g.sendError(s, "unknown event: "+typ)
	}
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *hub.Session, data commandData) {
	text := data.Content
	if strings.TrimSpace(text) == "" {
		text = data.Message
	}
	address := s.Address()
	if address == "" {
		address = domain.NormalizeAddress(data.UserAddress)
	}
	msg := domain.InboundMessage{
		Text:           text,
		Address:        address,
		ConversationID: strings.TrimSpace(data.ConversationID),
		SessionID:      s.ID(),
		Channel:        domain.ChannelWebSocket,
	}
	if err := msg.Validate(); err != nil {
		g.sendError(s, "message content is required")
		return
	}

	if !g.begin() {
		g.sendError(s, ErrShuttingDown.Error())
		return
	}

	room := hub.ChatRoom(msg.ConversationID)
	if room != "" {
		g.router.Join(s, room)
	}

	go func() {
		defer g.inflight.Done()
		resp, err := g.run(ctx, msg, room)
		if resp == nil {
			g.logger.Error("Pipeline returned no response", "session_id", s.ID(), "error", err)
			g.sendError(s, domain.ApologyContent)
			return
		}
		if err != nil {
			g.logger.Warn("Pipeline degraded", "session_id", s.ID(), "error", err)
		}
		delivered := g.deliver(room, s, msg.ConversationID, resp)
		g.logger.Debug("Reply delivered", "session_id", s.ID(), "conversation_id", msg.ConversationID, "sessions", delivered)

		persistCtx, cancel := g.callContext(context.WithoutCancel(ctx))
		defer cancel()
		g.processor.Persist(persistCtx, msg, resp)
	}()
}

// authenticate binds a wallet to the session and joins its security room.
func (g *Gateway) authenticate(s *hub.Session, address string) (string, error) {
	prev := s.Address()
	addr, err := g.registry.Authenticate(s, address)
	if err != nil {
		return "", err
	}
	if prev != "" && prev != addr {
		g.router.Leave(s, hub.SecurityRoom(prev))
		g.router.Leave(s, hub.PortfolioRoom(prev))
	}
	g.router.Join(s, hub.SecurityRoom(addr))
	g.send(s, hub.Event{Type: hub.EventAuthenticated, Data: hub.AuthPayload{UserID: addr, Timestamp: time.Now().UTC()}})
	return addr, nil
}

// ownAddress resolves the address for a portfolio subscription. It must be
// the session's own authenticated wallet.
func (g *Gateway) ownAddress(s *hub.Session, requested string) (string, error) {
	own := s.Address()
	if own == "" {
		return "", hub.ErrNotAuthenticated
	}
	if strings.TrimSpace(requested) == "" {
		return own, nil
	}
	addr := domain.NormalizeAddress(requested)
	if addr == "" {
		return "", hub.ErrInvalidAddress
	}
	if addr != own {
		return "", errors.New("address does not match authenticated wallet")
	}
	return addr, nil
}

// marketRooms maps requested symbols to rooms. No symbols means the shared market room.
func (g *Gateway) marketRooms(symbols []string) []string {
	if len(symbols) == 0 {
		return []string{hub.MarketRoom}
	}
	seen := make(map[string]bool, len(symbols))
	var rooms []string
	for _, raw := range symbols {
		sym, ok := aggregator.NormalizeSymbol(raw)
		if !ok || seen[sym] {
			continue
		}
		seen[sym] = true
		rooms = append(rooms, hub.MarketSymbolRoom(sym))
	}
	return rooms
}

func (g *Gateway) send(s *hub.Session, ev hub.Event) {
	if err := hub.SendTo(s, ev); err != nil {
		g.logger.Debug("Event not delivered", "session_id", s.ID(), "type", ev.Type, "error", err)
	}
}

func (g *Gateway) sendError(s *hub.Session, message string) {
	g.send(s, hub.Event{Type: hub.EventError, Data: hub.ErrorPayload{Message: message}})
}
