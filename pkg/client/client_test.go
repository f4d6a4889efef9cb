package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/pkg/session"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

var (
	_ session.Remote      = (*Client)(nil)
	_ session.EventSource = (*Client)(nil)
)

func newTestServer(t *testing.T, register func(r chi.Router)) *Client {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestSynthesizeSpeechTruncates(t *testing.T) {
	var got string
	c := newTestServer(t, func(r chi.Router) {
		r.Post("/api/ai/tts", func(w http.ResponseWriter, r *http.Request) {
			var req chat.SpeechRequest
			json.NewDecoder(r.Body).Decode(&req)
			got = req.Text
			url := "/audio/x.mp3"
			utils.RespondJSON(w, http.StatusOK, chat.SpeechReply{Success: true, AudioURL: &url})
		})
	})

	text := strings.Repeat("a", 4000) + strings.Repeat("é", 1000)
	locator, err := c.SynthesizeSpeech(context.Background(), text)
	if err != nil {
		t.Fatalf("SynthesizeSpeech err: %v", err)
	}
	if locator != "/audio/x.mp3" {
		t.Fatalf("unexpected locator %q", locator)
	}
	if n := utf8.RuneCountInString(got); n != 4096 {
		t.Fatalf("expected 4096 characters sent, got %d", n)
	}
	if got != strings.Repeat("a", 4000)+strings.Repeat("é", 96) {
		t.Fatal("expected the first 4096 characters")
	}
}

func TestSynthesizeSpeechUnavailable(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Post("/api/ai/tts", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, chat.SpeechReply{Success: false, Message: "speech disabled"})
		})
	})

	_, err := c.SynthesizeSpeech(context.Background(), "hi")
	if !errors.Is(err, ErrSpeechUnavailable) {
		t.Fatalf("expected ErrSpeechUnavailable, got %v", err)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
		})
	})

	_, err := c.GetSession(context.Background(), 42)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "session not found" {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !IsNotFound(err) {
		t.Fatal("IsNotFound should be true")
	}
}

func TestAttachAudioSendsPatch(t *testing.T) {
	var method, audio string
	c := newTestServer(t, func(r chi.Router) {
		r.Patch("/api/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			var patch chat.AudioPatch
			json.NewDecoder(r.Body).Decode(&patch)
			if patch.AudioURL != nil {
				audio = *patch.AudioURL
			}
			utils.RespondJSON(w, http.StatusOK, chat.Message{ID: 9, Role: chat.RoleAssistant, AudioURL: patch.AudioURL})
		})
	})

	msg, err := c.AttachAudio(context.Background(), 9, "/audio/y.mp3")
	if err != nil {
		t.Fatalf("AttachAudio err: %v", err)
	}
	if method != http.MethodPatch || audio != "/audio/y.mp3" || msg.ID != 9 {
		t.Fatalf("unexpected patch: %s %s %+v", method, audio, msg)
	}
}

func TestResolveURL(t *testing.T) {
	c := New("http://localhost:8080/")
	cases := map[string]string{
		"/audio/x.mp3":              "http://localhost:8080/audio/x.mp3",
		"audio/x.mp3":               "http://localhost:8080/audio/x.mp3",
		"https://cdn.example/x.mp3": "https://cdn.example/x.mp3",
		"":                          "",
	}
	for in, want := range cases {
		if got := c.ResolveURL(in); got != want {
			t.Fatalf("ResolveURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubscribeSkipsConnectedFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestServer(t, func(r chi.Router) {
		r.Get("/api/sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.WriteJSON(chat.Event{Type: "connected", SessionID: 5})
			conn.WriteJSON(chat.Event{Type: chat.EventMessageCreated, SessionID: 5, MessageID: 11})
			conn.ReadMessage()
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, err := c.Subscribe(ctx, 5)
	if err != nil {
		t.Fatalf("Subscribe err: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != chat.EventMessageCreated || evt.MessageID != 11 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	cancel()
	for range events {
	}
}
