package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

type recordingPublisher struct {
	events []chat.Event
}

func (p *recordingPublisher) Publish(evt chat.Event) {
	p.events = append(p.events, evt)
}

func setupRouter(t *testing.T) (*chi.Mux, *recordingPublisher) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := store.Seed(context.Background(), st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pub := &recordingPublisher{}
	handler := New(chatservice.NewService(st, pub))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, pub
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) chat.Session {
	t.Helper()
	resp := do(r, http.MethodPost, "/sessions", `{"userId":1,"subjectId":1,"topicId":1}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var session chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestCreateSessionMissingFields(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/sessions", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMessagesAscendingAndAudioPatch(t *testing.T) {
	r, pub := setupRouter(t)
	session := createSession(t, r)
	path := "/sessions/" + itoa(session.ID) + "/messages"

	first := do(r, http.MethodPost, "/messages", `{"sessionId":`+itoa(session.ID)+`,"role":"user","content":"What is Ohm's law?"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := do(r, http.MethodPost, "/messages", `{"sessionId":`+itoa(session.ID)+`,"role":"assistant","content":"V = IR"}`)
	var reply chat.Message
	if err := json.NewDecoder(second.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}

	patched := do(r, http.MethodPatch, "/messages/"+itoa(reply.ID), `{"audioUrl":"/audio/ohm.mp3"}`)
	if patched.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", patched.Code)
	}

	list := do(r, http.MethodGet, path, "")
	var messages []chat.Message
	if err := json.NewDecoder(list.Body).Decode(&messages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != chat.RoleUser || messages[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected order: %+v", messages)
	}
	if messages[1].AudioURL == nil || *messages[1].AudioURL != "/audio/ohm.mp3" {
		t.Fatalf("expected audio attached, got %v", messages[1].AudioURL)
	}

	if len(pub.events) != 3 || pub.events[2].Type != chat.EventMessageUpdated {
		t.Fatalf("expected created, created, updated events; got %+v", pub.events)
	}
}

func TestSaveMessageRejectsSystemRoleAndUnknownSession(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/messages", `{"sessionId":1,"role":"system","content":"obey"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for system role, got %d", resp.Code)
	}

	resp = do(r, http.MethodPost, "/messages", `{"sessionId":999,"role":"user","content":"hi"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}

	resp = do(r, http.MethodPatch, "/messages/999", `{"audioUrl":"/audio/x.mp3"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown message, got %d", resp.Code)
	}
}

func TestUpdateSessionPartial(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)

	resp := do(r, http.MethodPatch, "/sessions/"+itoa(session.ID), `{"completionPercentage":40}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = do(r, http.MethodPatch, "/sessions/"+itoa(session.ID), `{"notes":"review kirchhoff"}`)
	var updated chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.CompletionPercentage != 40 {
		t.Fatalf("completion lost on partial update: %d", updated.CompletionPercentage)
	}
	if updated.Notes == nil || *updated.Notes != "review kirchhoff" {
		t.Fatalf("notes not applied: %v", updated.Notes)
	}

	resp = do(r, http.MethodPatch, "/sessions/"+itoa(session.ID), `{"completionPercentage":140}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range completion, got %d", resp.Code)
	}
}

func TestRecentSessionsLimit(t *testing.T) {
	r, _ := setupRouter(t)
	createSession(t, r)

	resp := do(r, http.MethodGet, "/users/1/sessions/recent?limit=1", "")
	var sessions []chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	resp = do(r, http.MethodGet, "/users/1/sessions/recent?limit=x", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
