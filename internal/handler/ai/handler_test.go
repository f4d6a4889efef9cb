package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	aiService "github.com/zhouzirui/smart-tutor/backend/internal/service/ai"
	chatService "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

type echoModel struct {
	lastSystem string
}

func (m *echoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.lastSystem = input[0].Content
	return schema.AssistantMessage("Echo: "+input[len(input)-1].Content, nil), nil
}

func (m *echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func setup(t *testing.T, chatModel model.BaseChatModel) (*chi.Mux, *chatService.Service) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := store.Seed(ctx, st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	chatSvc := chatService.NewService(st, nil)

	var (
		aiSvc *aiService.Service
		err   error
	)
	if chatModel == nil {
		aiSvc, err = aiService.NewService(ctx, config.AIConfig{Provider: config.ProviderNone})
	} else {
		aiSvc, err = aiService.NewServiceWithModel(ctx, "fake", chatModel, config.AIConfig{HistoryLimit: 20})
	}
	if err != nil {
		t.Fatalf("ai service: %v", err)
	}

	r := chi.NewRouter()
	New(aiSvc, chatSvc).RegisterRoutes(r)
	return r, chatSvc
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatFallbackWithoutProvider(t *testing.T) {
	r, _ := setup(t, nil)

	resp := post(r, "/ai/chat", chat.ChatRequest{Messages: []chat.Turn{{Role: "user", Content: "Hi"}}})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var reply chat.ChatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Message.Content != aiService.FallbackReply || reply.Message.Role != chat.RoleAssistant {
		t.Fatalf("unexpected reply: %+v", reply.Message)
	}
	if reply.ID != nil {
		t.Fatalf("expected no id without sessionId, got %d", *reply.ID)
	}
}

func TestChatPersistsReplyForSession(t *testing.T) {
	fake := &echoModel{}
	r, chatSvc := setup(t, fake)
	sessionID := int64(2)

	resp := post(r, "/ai/chat", chat.ChatRequest{
		Messages:   []chat.Turn{{Role: "user", Content: "What is resistance?"}},
		SessionID:  &sessionID,
		IsQuestion: true,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var reply chat.ChatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.ID == nil {
		t.Fatal("expected the stored message id")
	}
	if reply.Message.Content != "Echo: What is resistance?" {
		t.Fatalf("unexpected content %q", reply.Message.Content)
	}

	transcript, err := chatSvc.LoadTranscript(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	last := transcript[len(transcript)-1]
	if last.ID != *reply.ID || last.Role != chat.RoleAssistant {
		t.Fatalf("stored message mismatch: %+v", last)
	}
	if !bytes.Contains([]byte(fake.lastSystem), []byte("Current Electricity")) {
		t.Fatalf("expected topic in system prompt, got %q", fake.lastSystem)
	}
}

func TestChatUnknownSession(t *testing.T) {
	r, _ := setup(t, &echoModel{})
	sessionID := int64(404)

	resp := post(r, "/ai/chat", chat.ChatRequest{
		Messages:  []chat.Turn{{Role: "user", Content: "Hi"}},
		SessionID: &sessionID,
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestChatValidation(t *testing.T) {
	r, _ := setup(t, &echoModel{})

	resp := post(r, "/ai/chat", map[string]any{"messages": []map[string]string{{"role": "tutor", "content": "x"}}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if _, ok := body.Fields["messages[0].role"]; !ok {
		t.Fatalf("expected messages[0].role error, got %v", body.Fields)
	}
}

func TestQuizRequiresProvider(t *testing.T) {
	r, _ := setup(t, nil)

	resp := post(r, "/ai/quiz", chat.QuizRequest{Subject: "Physics", Topic: "Optics"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestIntroductionWithProvider(t *testing.T) {
	r, _ := setup(t, &echoModel{})

	resp := post(r, "/ai/introduction", chat.IntroductionRequest{Subject: "Chemistry", Topic: "Solutions"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out chat.GeneratedContent
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Contains([]byte(out.Content), []byte("Solutions")) {
		t.Fatalf("expected topic in generated content, got %q", out.Content)
	}
}
