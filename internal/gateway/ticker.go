package gateway

import (
	"context"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/hub"
)

// StartMarketTicker pushes prices to market rooms every interval until ctx is done.
func (g *Gateway) StartMarketTicker(ctx context.Context) {
	if g.services.Market == nil {
		g.logger.Info("Market ticker disabled, no market collaborator")
		return
	}
	ticker := time.NewTicker(g.cfg.TickerInterval)
	go func() {
		defer ticker.Stop()
		g.logger.Info("Market ticker started", "interval", g.cfg.TickerInterval)

		for {
			select {
			case <-ticker.C:
				g.tickMarket(ctx)
			case <-ctx.Done():
				g.logger.Info("Market ticker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// tickMarket fetches the watchlist plus every subscribed symbol once, then
// sends each room its slice. Rooms without members cost nothing.
func (g *Gateway) tickMarket(ctx context.Context) int {
	symbolRooms := g.router.Rooms(hub.MarketRoom + ":")
	shared := g.router.HasMembers(hub.MarketRoom)
	if !shared && len(symbolRooms) == 0 {
		return 0
	}

	seen := make(map[string]bool)
	var symbols []string
	add := func(sym string) {
		if sym != "" && !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if shared {
		for _, sym := range g.cfg.Watchlist {
			add(sym)
		}
	}
	for _, room := range symbolRooms {
		if sym, ok := hub.SymbolFromRoom(room); ok {
			add(sym)
		}
	}
	if len(symbols) == 0 {
		return 0
	}

	callCtx, cancel := g.callContext(ctx)
	defer cancel()
	prices, err := g.services.Market.Prices(callCtx, symbols)
	if err != nil {
		g.logger.Warn("Market ticker fetch failed", "symbols", len(symbols), "error", err)
		return 0
	}

	now := time.Now().UTC()
	delivered := 0
	if shared {
		delivered += g.router.Broadcast(hub.MarketRoom, hub.Event{
			Type: hub.EventMarketUpdate,
			Data: hub.MarketPayload{Prices: prices, Timestamp: now},
		})
	}

	bySymbol := make(map[string]domain.TokenPrice, len(prices))
	for _, p := range prices {
		bySymbol[p.Symbol] = p
	}
	for _, room := range symbolRooms {
		sym, _ := hub.SymbolFromRoom(room)
		p, ok := bySymbol[sym]
		if !ok {
			continue
		}
		delivered += g.router.Broadcast(room, hub.Event{
			Type: hub.EventMarketUpdate,
			Data: hub.MarketPayload{Prices: []domain.TokenPrice{p}, Timestamp: now},
		})
	}
	return delivered
}
