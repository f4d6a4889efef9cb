package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	chatService "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
	"github.com/zhouzirui/smart-tutor/backend/internal/validate"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{id}", h.handleGetSession)
	r.Patch("/sessions/{id}", h.handleUpdateSession)
	r.Get("/users/{userId}/sessions", h.handleListSessions)
	r.Get("/users/{userId}/sessions/recent", h.handleRecentSessions)

	r.Post("/messages", h.handleSaveMessage)
	r.Patch("/messages/{id}", h.handleAttachAudio)
	r.Get("/sessions/{sessionId}/messages", h.handleListMessages)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload chat.NewSession
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "user, subject or topic not found")
			return
		}
		respondServiceError(w, err, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleUpdateSession 部分更新会话（结束时间、时长、完成度、笔记）
func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch chat.SessionPatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(patch); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	session, err := h.chatSvc.UpdateSession(r.Context(), id, patch)
	if err != nil {
		respondServiceError(w, err, "failed to update session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.URLParamID(r, "userId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.chatSvc.ListSessions(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.URLParamID(r, "userId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := utils.QueryInt(r, "limit", store.DefaultRecentLimit)
	if err != nil || limit <= 0 {
		utils.RespondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	sessions, err := h.chatSvc.RecentSessions(r.Context(), userID, limit)
	if err != nil {
		respondServiceError(w, err, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

// handleSaveMessage 保存消息
func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload chat.NewMessage
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	msg, err := h.chatSvc.SaveMessage(r.Context(), payload)
	if err != nil {
		respondServiceError(w, err, "failed to save message")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

// handleAttachAudio 为已有消息挂载（或替换）语音地址，不会新建消息
func (h *Handler) handleAttachAudio(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch chat.AudioPatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.AttachAudio(r.Context(), id, patch.AudioURL)
	if err != nil {
		respondServiceError(w, err, "failed to update message")
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := utils.URLParamID(r, "sessionId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, "failed to list messages")
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func respondServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, chatService.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg(msg)
		utils.RespondError(w, http.StatusInternalServerError, msg)
	}
}
