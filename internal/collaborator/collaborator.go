// Package collaborator defines the market, portfolio and security services the
// assistant reads context from, with HTTP and gRPC client implementations.
package collaborator

import (
	"context"
	"errors"

	"github.com/ashureev/defi-assistant/internal/domain"
)

// ErrUnavailable is returned when a collaborator is not configured.
var ErrUnavailable = errors.New("collaborator unavailable")

// MarketService provides market-wide data.
type MarketService interface {
	Overview(ctx context.Context) (domain.MarketOverview, error)
	Prices(ctx context.Context, symbols []string) ([]domain.TokenPrice, error)
}

// PortfolioService provides wallet-specific data.
type PortfolioService interface {
	Snapshot(ctx context.Context, address string) (domain.PortfolioSnapshot, error)
	Analysis(ctx context.Context, address string) (map[string]any, error)
}

// SecurityService analyses protocols and contracts.
type SecurityService interface {
	Analyze(ctx context.Context, target string) (domain.SecurityReport, error)
}

// Services bundles the collaborators. Any field may be nil.
type Services struct {
	Market    MarketService
	Portfolio PortfolioService
	Security  SecurityService
}
