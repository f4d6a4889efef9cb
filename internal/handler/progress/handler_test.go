package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

func setupRouter(t *testing.T) (*chi.Mux, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := store.Seed(context.Background(), st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := chi.NewRouter()
	New(st).RegisterRoutes(r)
	return r, st
}

func TestUpsertProgressKeepsOneRecordPerTopic(t *testing.T) {
	r, _ := setupRouter(t)

	for _, body := range []string{
		`{"userId":1,"subjectId":1,"topicId":1,"completionPercentage":20}`,
		`{"userId":1,"subjectId":1,"topicId":1,"completionPercentage":60,"metrics":{"questionsAsked":2}}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/progress", bytes.NewReader([]byte(body)))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/users/1/subjects/1/progress", nil))
	var records []progress.Progress
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var found []progress.Progress
	for _, rec := range records {
		if rec.TopicID == 1 {
			found = append(found, rec)
		}
	}
	if len(found) != 1 {
		t.Fatalf("expected a single record for the topic, got %d", len(found))
	}
	if found[0].CompletionPercentage != 60 {
		t.Fatalf("expected 60%%, got %d", found[0].CompletionPercentage)
	}
}

func TestUpsertProgressRejectsOutOfRange(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/progress", bytes.NewReader([]byte(`{"userId":1,"subjectId":1,"topicId":1,"completionPercentage":101}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHighlights(t *testing.T) {
	r, st := setupRouter(t)
	ctx := context.Background()

	msg, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: 1, Role: chat.RoleAssistant, Content: "Ohm's law: V = IR"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	payload, _ := json.Marshal(progress.NewHighlight{UserID: 1, SessionID: 1, MessageID: msg.ID, Content: msg.Content})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/highlights", bytes.NewReader(payload)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	payload, _ = json.Marshal(progress.NewHighlight{UserID: 1, SessionID: 1, MessageID: 999, Content: "x"})
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/highlights", bytes.NewReader(payload)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown message, got %d", resp.Code)
	}

	for _, path := range []string{"/users/1/highlights", "/sessions/1/highlights"} {
		resp = httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		var highlights []progress.Highlight
		if err := json.NewDecoder(resp.Body).Decode(&highlights); err != nil {
			t.Fatalf("%s decode: %v", path, err)
		}
		if len(highlights) != 1 {
			t.Fatalf("%s: expected 1 highlight, got %d", path, len(highlights))
		}
	}
}
