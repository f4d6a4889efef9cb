package speech

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/smart-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	SynthesizeSpeech(ctx context.Context, text string) (*speech.TTSResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
}

// New 创建语音处理器
func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ai/tts", h.handleSynthesize)
}

// handleSynthesize 文本转语音，返回音频地址。未配置语音服务时返回 success=false 而不是错误码。
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var payload chat.SpeechRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if h.speechSvc == nil {
		h.respondDisabled(w)
		return
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), payload.Text)
	if err != nil {
		switch {
		case errors.Is(err, speechsvc.ErrNotEnabled):
			h.respondDisabled(w)
		case errors.Is(err, speechsvc.ErrEmptyText):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Int("chars", len(payload.Text)).Msg("text to speech failed")
			utils.RespondError(w, http.StatusInternalServerError, "failed to convert text to speech")
		}
		return
	}

	url := resp.AudioURL
	utils.RespondJSON(w, http.StatusOK, chat.SpeechReply{Success: true, AudioURL: &url})
}

func (h *Handler) respondDisabled(w http.ResponseWriter) {
	utils.RespondJSON(w, http.StatusOK, chat.SpeechReply{
		Success: false,
		Message: "speech synthesis not configured",
	})
}
