//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/ashureev/defi-assistant/internal/metrics"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, "message is required")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"error":"message is required"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		limit   int64
		wantErr bool
	}{
		{"valid", `{"message":"hi"}`, 1024, false},
		{"empty", ``, 1024, true},
		{"malformed", `{"message":`, 1024, true},
		{"too large", `{"message":"` + strings.Repeat("a", 100) + `"}`, 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v map[string]any
			err := DecodeJSON(httptest.NewRecorder(), req, tt.limit, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBadRequest) {
				t.Errorf("error %v does not wrap ErrBadRequest", err)
			}
		})
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type counter int

func (c counter) Count() int { return int(c) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		repo       Pinger
		wantStatus int
		wantDB     string
	}{
		{"ok", pinger{}, http.StatusOK, "ok"},
		{"unreachable", pinger{err: errors.New("closed")}, http.StatusServiceUnavailable, "unreachable"},
		{"disabled", nil, http.StatusOK, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(HealthConfig{Repo: tt.repo})
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Checks["database"] != tt.wantDB {
				t.Errorf("database check = %q, want %q", body.Checks["database"], tt.wantDB)
			}
		})
	}
}

func TestStatsRoute(t *testing.T) {
	collector := metrics.NewCollector()
	collector.RecordIntent(domain.IntentMarket)

	h := NewHealthHandler(HealthConfig{
		Metrics:    collector,
		Sessions:   counter(3),
		Rooms:      func() int { return 2 },
		CacheLen:   func() int { return 7 },
		Candidates: []string{"openai/gpt-4o-mini", "local/keyword-v1"},
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Candidates   []string         `json:"candidates"`
		Sessions     int              `json:"sessions"`
		Rooms        int              `json:"rooms"`
		CacheEntries int              `json:"cacheEntries"`
		Metrics      metrics.Snapshot `json:"metrics"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Sessions != 3 || body.Rooms != 2 || body.CacheEntries != 7 {
		t.Errorf("unexpected occupancy %+v", body)
	}
	if len(body.Candidates) != 2 {
		t.Errorf("candidates = %v", body.Candidates)
	}
	if body.Metrics.Intents[domain.IntentMarket] != 1 {
		t.Errorf("intents = %v", body.Metrics.Intents)
	}
}
