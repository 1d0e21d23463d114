package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/containerd/errdefs"
)

// HTTPClient talks to a JSON collaborator API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Services returns the client wired as every collaborator.
func (c *HTTPClient) Services() Services {
	return Services{Market: c, Portfolio: c, Security: c}
}

// Overview implements MarketService.
func (c *HTTPClient) Overview(ctx context.Context) (domain.MarketOverview, error) {
	var out domain.MarketOverview
	err := c.get(ctx, "/market/overview", nil, &out)
	return out, err
}

// Prices implements MarketService.
func (c *HTTPClient) Prices(ctx context.Context, symbols []string) ([]domain.TokenPrice, error) {
	var out []domain.TokenPrice
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	err := c.get(ctx, "/market/prices", q, &out)
	return out, err
}

// Snapshot implements PortfolioService.
func (c *HTTPClient) Snapshot(ctx context.Context, address string) (domain.PortfolioSnapshot, error) {
	var out domain.PortfolioSnapshot
	err := c.get(ctx, "/portfolio/"+url.PathEscape(address), nil, &out)
	return out, err
}

// Analysis implements PortfolioService.
func (c *HTTPClient) Analysis(ctx context.Context, address string) (map[string]any, error) {
	var out map[string]any
	err := c.get(ctx, "/portfolio/"+url.PathEscape(address)+"/analysis", nil, &out)
	return out, err
}

// Analyze implements SecurityService.
func (c *HTTPClient) Analyze(ctx context.Context, target string) (domain.SecurityReport, error) {
	var out domain.SecurityReport
	q := url.Values{}
	q.Set("target", target)
	err := c.get(ctx, "/security/analyze", q, &out)
	return out, err
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %w", path, statusError(resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	var class error
	switch {
	case code == http.StatusNotFound:
		class = errdefs.ErrNotFound
	case code == http.StatusBadRequest:
		class = errdefs.ErrInvalidArgument
	case code == http.StatusTooManyRequests:
		class = errdefs.ErrResourceExhausted
	case code == http.StatusUnauthorized:
		class = errdefs.ErrUnauthenticated
	case code == http.StatusForbidden:
		class = errdefs.ErrPermissionDenied
	case code >= 500:
		class = errdefs.ErrUnavailable
	default:
		class = errdefs.ErrUnknown
	}
	return fmt.Errorf("%w: status %d: %s", class, code, msg)
}
