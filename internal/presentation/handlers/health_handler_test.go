package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bimakw/curve-analytics/internal/testutil"
)

func TestHealthHandler_Health(t *testing.T) {
	t.Run("reports healthy when all backends answer", func(t *testing.T) {
		handler := NewHealthHandler(
			testutil.NewMockHealthChecker(true),
			testutil.NewMockHealthChecker(true),
			testutil.NewMockHealthChecker(true),
		)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Status != "healthy" {
			t.Errorf("expected status healthy, got %s", response.Status)
		}
		for _, svc := range []string{"database", "chain", "cache"} {
			if response.Services[svc] != "healthy" {
				t.Errorf("expected %s healthy, got %s", svc, response.Services[svc])
			}
		}
		if response.Timestamp == "" {
			t.Error("expected non-empty timestamp")
		}
	})

	t.Run("reports unhealthy when the database is down", func(t *testing.T) {
		handler := NewHealthHandler(
			testutil.NewMockHealthChecker(false),
			testutil.NewMockHealthChecker(true),
			testutil.NewMockHealthChecker(true),
		)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}

		var response HealthResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Status != "unhealthy" {
			t.Errorf("expected status unhealthy, got %s", response.Status)
		}
	})

	t.Run("reports unhealthy when the chain node is down", func(t *testing.T) {
		handler := NewHealthHandler(
			testutil.NewMockHealthChecker(true),
			testutil.NewMockHealthChecker(true),
			testutil.NewMockHealthChecker(false),
		)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}

		var response HealthResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Services["chain"] == "healthy" {
			t.Error("expected chain to be unhealthy")
		}
	})

	t.Run("degrades instead of failing when only the cache is down", func(t *testing.T) {
		handler := NewHealthHandler(
			testutil.NewMockHealthChecker(true),
			testutil.NewMockHealthChecker(false),
			testutil.NewMockHealthChecker(true),
		)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200 for degraded, got %d", rec.Code)
		}

		var response HealthResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Status != "degraded" {
			t.Errorf("expected status degraded, got %s", response.Status)
		}
	})

	t.Run("skips absent optional backends", func(t *testing.T) {
		handler := NewHealthHandler(testutil.NewMockHealthChecker(true), nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}

		var response HealthResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Status != "healthy" {
			t.Errorf("expected status healthy, got %s", response.Status)
		}
		if _, exists := response.Services["cache"]; exists {
			t.Error("cache should not be reported when nil")
		}
		if _, exists := response.Services["chain"]; exists {
			t.Error("chain should not be reported when nil")
		}
	})
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("ready when the database answers", func(t *testing.T) {
		handler := NewHealthHandler(testutil.NewMockHealthChecker(true), nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()

		handler.Ready(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if body := rec.Body.String(); body != "ready" {
			t.Errorf("expected body 'ready', got '%s'", body)
		}
	})

	t.Run("not ready when the database is down", func(t *testing.T) {
		handler := NewHealthHandler(testutil.NewMockHealthChecker(false), nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()

		handler.Ready(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}
	})
}

func TestHealthHandler_Live(t *testing.T) {
	// Liveness ignores backend state.
	handler := NewHealthHandler(testutil.NewMockHealthChecker(false), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()

	handler.Live(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "alive" {
		t.Errorf("expected body 'alive', got '%s'", body)
	}
}
