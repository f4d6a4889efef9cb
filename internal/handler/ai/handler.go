package ai

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	aiService "github.com/zhouzirui/smart-tutor/backend/internal/service/ai"
	chatService "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/validate"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// Handler AI辅导接口的HTTP处理器
type Handler struct {
	aiSvc   *aiService.Service
	chatSvc *chatService.Service
}

// New 创建AI处理器
func New(aiSvc *aiService.Service, chatSvc *chatService.Service) *Handler {
	return &Handler{aiSvc: aiSvc, chatSvc: chatSvc}
}

// RegisterRoutes 注册AI相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ai/chat", h.handleChat)
	r.Post("/ai/introduction", h.handleIntroduction)
	r.Post("/ai/quiz", h.handleQuiz)
}

// handleChat 生成下一条辅导回复；带 sessionId 时由服务端保存该回复并返回其 id
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chat.ChatRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	topic, err := ResolveTopic(r.Context(), h.chatSvc, payload.SessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Warn().Err(err).Msg("topic lookup failed, answering without topic context")
	}

	turn, err := h.aiSvc.Reply(r.Context(), aiService.ReplyRequest{
		Turns:      payload.Messages,
		IsQuestion: payload.IsQuestion,
		Topic:      topic,
	})
	if err != nil {
		log.Error().Err(err).Str("provider", h.aiSvc.Provider()).Msg("chat completion failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to get AI response")
		return
	}

	reply := chat.ChatReply{Message: turn}
	if id, ok := SaveReply(r.Context(), h.chatSvc, payload.SessionID, turn.Content); ok {
		reply.ID = &id
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

func (h *Handler) handleIntroduction(w http.ResponseWriter, r *http.Request) {
	var payload chat.IntroductionRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	content, err := h.aiSvc.TopicIntroduction(r.Context(), aiService.TopicContext{Subject: payload.Subject, Topic: payload.Topic})
	h.respondGenerated(w, content, err)
}

func (h *Handler) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var payload chat.QuizRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}
	if payload.Difficulty == "" {
		payload.Difficulty = "intermediate"
	}
	if payload.Count == 0 {
		payload.Count = 5
	}

	content, err := h.aiSvc.Quiz(r.Context(), aiService.TopicContext{Subject: payload.Subject, Topic: payload.Topic}, payload.Difficulty, payload.Count)
	h.respondGenerated(w, content, err)
}

func (h *Handler) respondGenerated(w http.ResponseWriter, content string, err error) {
	if err != nil {
		if errors.Is(err, aiService.ErrProviderUnavailable) {
			utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		log.Error().Err(err).Msg("content generation failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to generate content")
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.GeneratedContent{Content: content})
}

// ResolveTopic 根据会话查找学科与章节，用于丰富系统提示词。未指定会话时返回空上下文。
func ResolveTopic(ctx context.Context, chatSvc *chatService.Service, sessionID *int64) (aiService.TopicContext, error) {
	if sessionID == nil || chatSvc == nil {
		return aiService.TopicContext{}, nil
	}
	subject, topic, err := chatSvc.SessionTopic(ctx, *sessionID)
	if err != nil {
		return aiService.TopicContext{}, err
	}
	return aiService.TopicFromCatalog(subject, topic), nil
}

// SaveReply 保存助手回复。失败时只记录日志，客户端会自行创建该消息。
func SaveReply(ctx context.Context, chatSvc *chatService.Service, sessionID *int64, content string) (int64, bool) {
	if sessionID == nil || chatSvc == nil {
		return 0, false
	}
	msg, err := chatSvc.SaveMessage(ctx, chat.NewMessage{
		SessionID: *sessionID,
		Role:      chat.RoleAssistant,
		Content:   content,
	})
	if err != nil {
		log.Error().Err(err).Int64("session_id", *sessionID).Msg("failed to save assistant message")
		return 0, false
	}
	return msg.ID, true
}
