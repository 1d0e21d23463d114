package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names served by the collaborator gRPC backend. Every method
// takes and returns a google.protobuf.Struct.
const (
	MethodMarketOverview    = "/defi.v1.MarketService/GetOverview"
	MethodMarketPrices      = "/defi.v1.MarketService/GetPrices"
	MethodPortfolioSnapshot = "/defi.v1.PortfolioService/GetSnapshot"
	MethodPortfolioAnalysis = "/defi.v1.PortfolioService/GetAnalysis"
	MethodSecurityAnalyze   = "/defi.v1.SecurityService/Analyze"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCClient calls collaborator services over gRPC with Struct payloads.
type GRPCClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GRPCClientConfig holds configuration for the gRPC client.
type GRPCClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	DialOptions      []grpc.DialOption
}

// DefaultGRPCClientConfig returns default configuration for addr.
func DefaultGRPCClientConfig(addr string) GRPCClientConfig {
	return GRPCClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGRPCClient connects to the collaborator backend and waits until the
// connection is ready so bad endpoints fail at startup.
func NewGRPCClient(cfg GRPCClientConfig, logger *slog.Logger) (*GRPCClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collaborators at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("collaborators at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to collaborator services", "address", cfg.Address)
	return &GRPCClient{conn: conn, addr: cfg.Address, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GRPCClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Services returns the client wired as every collaborator.
func (c *GRPCClient) Services() Services {
	return Services{Market: c, Portfolio: c, Security: c}
}

// Overview implements MarketService.
func (c *GRPCClient) Overview(ctx context.Context) (domain.MarketOverview, error) {
	var out domain.MarketOverview
	err := c.invoke(ctx, MethodMarketOverview, nil, &out)
	return out, err
}

// Prices implements MarketService. The response carries a "prices" list.
func (c *GRPCClient) Prices(ctx context.Context, symbols []string) ([]domain.TokenPrice, error) {
	list := make([]any, len(symbols))
	for i, s := range symbols {
		list[i] = s
	}
	var out struct {
		Prices []domain.TokenPrice `json:"prices"`
	}
	err := c.invoke(ctx, MethodMarketPrices, map[string]any{"symbols": list}, &out)
	return out.Prices, err
}

// Snapshot implements PortfolioService.
func (c *GRPCClient) Snapshot(ctx context.Context, address string) (domain.PortfolioSnapshot, error) {
	var out domain.PortfolioSnapshot
	err := c.invoke(ctx, MethodPortfolioSnapshot, map[string]any{"address": address}, &out)
	return out, err
}

// Analysis implements PortfolioService.
func (c *GRPCClient) Analysis(ctx context.Context, address string) (map[string]any, error) {
	var out map[string]any
	err := c.invoke(ctx, MethodPortfolioAnalysis, map[string]any{"address": address}, &out)
	return out, err
}

// Analyze implements SecurityService.
func (c *GRPCClient) Analyze(ctx context.Context, target string) (domain.SecurityReport, error) {
	var out domain.SecurityReport
	err := c.invoke(ctx, MethodSecurityAnalyze, map[string]any{"target": target}, &out)
	return out, err
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in map[string]any, out any) error {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, errgrpc.ToNative(err))
	}

	raw, err := protojson.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
