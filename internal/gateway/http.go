package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/api"
	"github.com/ashureev/defi-assistant/internal/assistant"
	"github.com/ashureev/defi-assistant/internal/collaborator"
	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/hub"
	"github.com/ashureev/defi-assistant/internal/identity"
	"github.com/google/uuid"
)

type chatRequest struct {
	Message        any    `json:"message"`
	UserAddress    string `json:"userAddress,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type chatMetadata struct {
	ConversationID string              `json:"conversationId"`
	Type           domain.ResponseType `json:"type"`
	Confidence     float64             `json:"confidence"`
	Sources        []string            `json:"sources,omitempty"`
	domain.ResponseMetadata
}

type chatResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Metadata chatMetadata `json:"metadata"`
	Stored   bool         `json:"stored"`
}

// HandleChatMessage answers one message over plain HTTP.
func (g *Gateway) HandleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := api.DecodeJSON(w, r, g.cfg.MaxBodyBytes, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text, ok := req.Message.(string)
	if !ok || strings.TrimSpace(text) == "" {
		api.Error(w, http.StatusBadRequest, "message is required and must be a non-empty string")
		return
	}

	address := domain.NormalizeAddress(req.UserAddress)
	if address == "" {
		address = identity.AddressFromContext(r.Context())
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	room := hub.ChatRoom(conversationID)
	if conversationID == "" {
		conversationID = "http-" + uuid.NewString()
	}

	msg := domain.InboundMessage{
		Text:           text,
		Address:        address,
		ConversationID: conversationID,
		SessionID:      identity.SessionIDFromContext(r.Context()),
		Channel:        domain.ChannelHTTP,
	}

	if !g.begin() {
		api.Error(w, http.StatusServiceUnavailable, ErrShuttingDown.Error())
		return
	}
	defer g.inflight.Done()

	resp, err := g.run(r.Context(), msg, room)
	if errors.Is(err, domain.ErrEmptyMessage) {
		api.Error(w, http.StatusBadRequest, "message is required and must be a non-empty string")
		return
	}
	if err != nil || resp == nil || resp.Content == "" {
		g.logger.Error("Chat request failed", "conversation_id", conversationID, "error", err,
			"pipeline_crash", errors.Is(err, assistant.ErrPipeline))
		api.Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	if room != "" {
		g.deliver(room, nil, conversationID, resp)
	}

	persistCtx, cancel := g.callContext(context.WithoutCancel(r.Context()))
	stored := g.processor.Persist(persistCtx, msg, resp)
	cancel()

	api.JSON(w, http.StatusOK, chatResponse{
		Success: true,
		Message: resp.Content,
		Metadata: chatMetadata{
			ConversationID:   conversationID,
			Type:             resp.Type,
			Confidence:       resp.Confidence,
			Sources:          resp.Sources,
			ResponseMetadata: resp.Metadata,
		},
		Stored: stored,
	})
}

type alertRequest struct {
	Address string         `json:"address"`
	Alert   map[string]any `json:"alert"`
}

// HandleSecurityAlert pushes an externally raised alert to a wallet's security room.
func (g *Gateway) HandleSecurityAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := api.DecodeJSON(w, r, g.cfg.MaxBodyBytes, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address := domain.NormalizeAddress(req.Address)
	if address == "" {
		api.Error(w, http.StatusBadRequest, "address must be a wallet address")
		return
	}
	if len(req.Alert) == 0 {
		api.Error(w, http.StatusBadRequest, "alert is required")
		return
	}

	delivered := g.router.Broadcast(hub.SecurityRoom(address), hub.Event{
		Type: hub.EventSecurityAlert,
		Data: hub.AlertPayload{Address: address, Alert: req.Alert, Timestamp: time.Now().UTC()},
	})
	g.logger.Info("Security alert broadcast", "address", address, "sessions", delivered)

	api.JSON(w, http.StatusOK, map[string]any{"success": true, "delivered": delivered})
}

type refreshRequest struct {
	Address string `json:"address"`
}

// HandlePortfolioRefresh fetches a fresh snapshot and pushes it to the wallet's portfolio room.
func (g *Gateway) HandlePortfolioRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := api.DecodeJSON(w, r, g.cfg.MaxBodyBytes, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address := domain.NormalizeAddress(req.Address)
	if address == "" {
		api.Error(w, http.StatusBadRequest, "address must be a wallet address")
		return
	}

	snap, delivered, err := g.refreshPortfolio(r.Context(), address)
	switch {
	case errors.Is(err, collaborator.ErrUnavailable):
		api.Error(w, http.StatusServiceUnavailable, "portfolio service unavailable")
		return
	case err != nil:
		g.logger.Warn("Portfolio refresh failed", "address", address, "error", err)
		api.Error(w, http.StatusBadGateway, "portfolio fetch failed")
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{"success": true, "delivered": delivered, "data": snap})
}

func (g *Gateway) refreshPortfolio(parent context.Context, address string) (domain.PortfolioSnapshot, int, error) {
	if g.services.Portfolio == nil {
		return domain.PortfolioSnapshot{}, 0, collaborator.ErrUnavailable
	}
	ctx, cancel := g.callContext(parent)
	defer cancel()

	snap, err := g.services.Portfolio.Snapshot(ctx, address)
	if err != nil {
		return domain.PortfolioSnapshot{}, 0, err
	}
	delivered := g.router.Broadcast(hub.PortfolioRoom(address), hub.Event{
		Type: hub.EventPortfolioUpdate,
		Data: hub.PortfolioPayload{Address: address, Data: snap, Timestamp: time.Now().UTC()},
	})
	return snap, delivered, nil
}
