package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
	"github.com/zhouzirui/smart-tutor/backend/internal/validate"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// Handler serves subjects and topics.
type Handler struct {
	store store.Store
}

func New(st store.Store) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes 注册课程目录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/subjects", h.handleListSubjects)
	r.Post("/subjects", h.handleCreateSubject)
	r.Get("/subjects/{id}", h.handleGetSubject)
	r.Get("/subjects/{subjectId}/topics", h.handleListTopics)
	r.Post("/topics", h.handleCreateTopic)
	r.Get("/topics/{id}", h.handleGetTopic)
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		h.fail(w, err, "failed to list subjects")
		return
	}
	utils.RespondJSON(w, http.StatusOK, subjects)
}

func (h *Handler) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var payload catalog.NewSubject
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	subject, err := h.store.CreateSubject(r.Context(), payload)
	if err != nil {
		h.fail(w, err, "failed to create subject")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, subject)
}

func (h *Handler) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject, err := h.store.GetSubject(r.Context(), id)
	if err != nil {
		h.fail(w, err, "failed to load subject")
		return
	}
	utils.RespondJSON(w, http.StatusOK, subject)
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	subjectID, err := utils.URLParamID(r, "subjectId")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	topics, err := h.store.ListTopics(r.Context(), subjectID)
	if err != nil {
		h.fail(w, err, "failed to list topics")
		return
	}
	utils.RespondJSON(w, http.StatusOK, topics)
}

func (h *Handler) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var payload catalog.NewTopic
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	topic, err := h.store.CreateTopic(r.Context(), payload)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "subject not found")
			return
		}
		h.fail(w, err, "failed to create topic")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, topic)
}

func (h *Handler) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	topic, err := h.store.GetTopic(r.Context(), id)
	if err != nil {
		h.fail(w, err, "failed to load topic")
		return
	}
	utils.RespondJSON(w, http.StatusOK, topic)
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg(msg)
		utils.RespondError(w, http.StatusInternalServerError, msg)
	}
}
