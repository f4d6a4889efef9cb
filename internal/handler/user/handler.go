package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
	userService "github.com/zhouzirui/smart-tutor/backend/internal/service/user"
	"github.com/zhouzirui/smart-tutor/backend/internal/validate"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// Handler 用户与登录的HTTP处理器
type Handler struct {
	users *userService.Service
}

// New 创建用户处理器
func New(users *userService.Service) *Handler {
	return &Handler{users: users}
}

// RegisterRoutes 注册用户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.handleRegister)
	r.Get("/users/{id}", h.handleGet)
	r.Post("/auth/login", h.handleLogin)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload user.NewUser
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	created, err := h.users.Register(r.Context(), payload)
	if err != nil {
		if errors.Is(err, userService.ErrUsernameTaken) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error().Err(err).Str("username", payload.Username).Msg("register user failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, userService.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	utils.RespondJSON(w, http.StatusOK, u)
}

// handleLogin 只校验用户名密码，不签发token
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload user.Credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(payload); err != nil {
		utils.RespondValidationError(w, err)
		return
	}

	u, err := h.users.Login(r.Context(), payload)
	if err != nil {
		if errors.Is(err, userService.ErrInvalidCredentials) {
			utils.RespondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		log.Error().Err(err).Msg("login failed")
		utils.RespondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, u)
}
