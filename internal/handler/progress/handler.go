package progress

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
	"github.com/zhouzirui/smart-tutor/backend/internal/validate"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// Handler serves learning progress and bookmarked highlights.
type Handler struct {
	store store.Store
}

func New(st store.Store) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes 注册学习进度与重点标记路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users/{userId}/progress", h.handleListProgress)
	r.Get("/users/{userId}/subjects/{subjectId}/progress", h.handleSubjectProgress)
	r.Post("/progress", h.handleUpsertProgress)

	r.Post("/highlights", h.handleCreateHighlight)
	r.Get("/users/{userId}/highlights", h.handleUserHighlights)
	r.Get("/sessions/{sessionId}/highlights", h.handleSessionHighlights)
}

func (h *Handler) handleListProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.URLParamID(r, "userId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.store.ListProgress(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "failed to list progress")
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}

func (h *Handler) handleSubjectProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.URLParamID(r, "userId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	subjectID, err := utils.URLParamID(r, "subjectId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.store.ListSubjectProgress(r.Context(), userID, subjectID)
	if err != nil {
		h.fail(w, err, "failed to list progress")
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}

// handleUpsertProgress 按 (user, subject, topic) 新建或覆盖进度
func (h *Handler) handleUpsertProgress(w http.ResponseWriter, r *http.Request) {
	var payload progress.NewProgress
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	record, err := h.store.UpsertProgress(r.Context(), payload)
	if err != nil {
		h.fail(w, err, "failed to save progress")
		return
	}
	utils.RespondJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	var payload progress.NewHighlight
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	highlight, err := h.store.CreateHighlight(r.Context(), payload)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "message not found")
			return
		}
		h.fail(w, err, "failed to save highlight")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, highlight)
}

func (h *Handler) handleUserHighlights(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.URLParamID(r, "userId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	highlights, err := h.store.ListUserHighlights(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "failed to list highlights")
		return
	}
	utils.RespondJSON(w, http.StatusOK, highlights)
}

func (h *Handler) handleSessionHighlights(w http.ResponseWriter, r *http.Request) {
	sessionID, err := utils.URLParamID(r, "sessionId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	highlights, err := h.store.ListSessionHighlights(r.Context(), sessionID)
	if err != nil {
		h.fail(w, err, "failed to list highlights")
		return
	}
	utils.RespondJSON(w, http.StatusOK, highlights)
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Error().Err(err).Msg(msg)
	utils.RespondError(w, http.StatusInternalServerError, msg)
}
