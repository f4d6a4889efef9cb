package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
	speechmodel "github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
	aiService "github.com/zhouzirui/smart-tutor/backend/internal/service/ai"
	chatService "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	eventService "github.com/zhouzirui/smart-tutor/backend/internal/service/events"
	speechService "github.com/zhouzirui/smart-tutor/backend/internal/service/speech"
	userService "github.com/zhouzirui/smart-tutor/backend/internal/service/user"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

func newTestRouter(t *testing.T, speechSvc *speechService.Service) http.Handler {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := store.Seed(ctx, st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	hub := eventService.NewHub()
	aiSvc, err := aiService.NewService(ctx, config.AIConfig{Provider: config.ProviderNone})
	if err != nil {
		t.Fatalf("ai: %v", err)
	}
	return NewRouter(Dependencies{
		Store:          st,
		Hub:            hub,
		ChatSvc:        chatService.NewService(st, hub),
		UserSvc:        userService.NewService(st),
		AISvc:          aiSvc,
		SpeechSvc:      speechSvc,
		Logger:         zerolog.Nop(),
		AudioURLPrefix: "/audio",
	})
}

func TestRouterServesAPIAndOps(t *testing.T) {
	r := newTestRouter(t, nil)

	for path, want := range map[string]int{
		"/health":             http.StatusOK,
		"/metrics":            http.StatusOK,
		"/api/subjects":       http.StatusOK,
		"/api/users/1":        http.StatusOK,
		"/api/sessions/1":     http.StatusOK,
		"/api/does-not-exist": http.StatusNotFound,
	} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.Code)
		}
	}
}

func TestRouterTTSWithoutSpeech(t *testing.T) {
	r := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/ai/tts", bytes.NewReader([]byte(`{"text":"hi"}`))))
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"success":false`)) {
		t.Fatalf("expected success=false, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestRouterServesAudioFiles(t *testing.T) {
	dir := t.TempDir()
	speechSvc, err := speechService.NewService(&speechmodel.SpeechConfig{AudioDir: dir, AudioURLPrefix: "/audio"}, nil)
	if err != nil {
		t.Fatalf("speech: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "speech_test.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := newTestRouter(t, speechSvc)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/audio/speech_test.mp3", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "ID3" {
		t.Fatalf("expected clip served, got %d %q", resp.Code, resp.Body.String())
	}
}
