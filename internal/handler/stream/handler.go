package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	aiHandler "github.com/zhouzirui/smart-tutor/backend/internal/handler/ai"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	aiService "github.com/zhouzirui/smart-tutor/backend/internal/service/ai"
	chatService "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/validate"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	aiService *aiService.Service
	chatSvc   *chatService.Service
}

// New creates a new stream handler
func New(aiSvc *aiService.Service, chatSvc *chatService.Service) *Handler {
	return &Handler{
		aiService: aiSvc,
		chatSvc:   chatSvc,
	}
}

// RegisterRoutes 注册流式回复路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ai/chat/stream", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID int64  `json:"sessionId,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var payload chat.ChatRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	topic, err := aiHandler.ResolveTopic(ctx, h.chatSvc, payload.SessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Warn().Err(err).Msg("[stream] topic lookup failed, answering without topic context")
	}

	if err := h.HandleStreamRequest(ctx, w, flusher, payload, topic); err != nil {
		log.Error().Err(err).Str("provider", h.aiService.Provider()).Msg("[stream] request failed")
	}
}

// HandleStreamRequest writes the assistant reply as SSE events: start, delta*, message, end.
// Failures after the headers were sent are reported as an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, payload chat.ChatRequest, topic aiService.TopicContext) error {
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	var sessionID int64
	if payload.SessionID != nil {
		sessionID = *payload.SessionID
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	req := aiService.ReplyRequest{
		Turns:      payload.Messages,
		IsQuestion: payload.IsQuestion,
		Topic:      topic,
	}

	content, err := h.dispatchAIResponse(ctx, w, flusher, sessionID, req)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("AI generation failed: %v", err))
		return err
	}

	end := StreamResponse{Event: "end", SessionID: sessionID, Finished: true}
	if id, ok := aiHandler.SaveReply(ctx, h.chatSvc, payload.SessionID, content); ok {
		end.MessageID = id
	}
	utils.SendSSEChunk(w, flusher, end)

	log.Info().Int64("session_id", sessionID).Int("length", len(content)).Msg("[stream] completed response")
	return nil
}

// dispatchAIResponse streams chunk by chunk when enabled; otherwise sends the whole reply at once.
func (h *Handler) dispatchAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID int64, req aiService.ReplyRequest) (string, error) {
	if h.aiService.StreamingEnabled() {
		return h.streamAIResponse(ctx, w, flusher, sessionID, req)
	}

	turn, err := h.aiService.Reply(ctx, req)
	if err != nil {
		return "", err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   turn.Content,
	})
	return turn.Content, nil
}

func (h *Handler) streamAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID int64, req aiService.ReplyRequest) (string, error) {
	stream, err := h.aiService.StreamReply(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	if len(chunks) == 0 {
		return "", errors.New("empty stream")
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
	})

	return response.Content, nil
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}
