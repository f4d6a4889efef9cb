package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func run(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	resp := httptest.NewRecorder()
	h.Health(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Code, body
}

func TestHealthy(t *testing.T) {
	h := New(map[string]Pinger{
		"store":  PingFunc(func(context.Context) error { return nil }),
		"speech": nil,
	}, map[string]any{"aiProvider": "none"})

	code, body := run(t, h)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Fatalf("expected healthy 200, got %d %s", code, body.Status)
	}
	if body.Checks["speech"].Message != "not configured" {
		t.Fatalf("expected speech not configured, got %+v", body.Checks["speech"])
	}
}

func TestDegraded(t *testing.T) {
	h := New(map[string]Pinger{
		"store": PingFunc(func(context.Context) error { return errors.New("database is locked") }),
	}, nil)

	code, body := run(t, h)
	if code != http.StatusServiceUnavailable || body.Status != "degraded" {
		t.Fatalf("expected degraded 503, got %d %s", code, body.Status)
	}
	if body.Checks["store"].Status != "fail" {
		t.Fatalf("expected store fail, got %+v", body.Checks["store"])
	}
}
