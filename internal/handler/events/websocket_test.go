package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/service/events"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

func setupServer(t *testing.T) (*httptest.Server, *chatservice.Service, *events.Hub) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := store.Seed(context.Background(), st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	hub := events.NewHub()
	chatSvc := chatservice.NewService(st, hub)

	r := chi.NewRouter()
	NewWebSocketHandler(hub, chatSvc).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc, hub
}

func dial(t *testing.T, srv *httptest.Server, sessionID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + strconv.FormatInt(sessionID, 10) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) chat.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt chat.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return evt
}

func TestWebSocketReceivesMessageEvents(t *testing.T) {
	srv, chatSvc, hub := setupServer(t)
	conn := dial(t, srv, 1)

	if evt := readEvent(t, conn); evt.Type != EventConnected {
		t.Fatalf("expected connected frame, got %+v", evt)
	}
	if hub.Count(1) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Count(1))
	}

	msg, err := chatSvc.SaveMessage(context.Background(), chat.NewMessage{SessionID: 1, Role: chat.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	evt := readEvent(t, conn)
	if evt.Type != chat.EventMessageCreated || evt.MessageID != msg.ID || evt.SessionID != 1 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/sessions/99/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
