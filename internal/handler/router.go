package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	aiHandler "github.com/zhouzirui/smart-tutor/backend/internal/handler/ai"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/events"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/health"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/speech"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/stream"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler/user"
	middlewarePkg "github.com/zhouzirui/smart-tutor/backend/internal/middleware"
	aiService "github.com/zhouzirui/smart-tutor/backend/internal/service/ai"
	chatService "github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	eventService "github.com/zhouzirui/smart-tutor/backend/internal/service/events"
	speechService "github.com/zhouzirui/smart-tutor/backend/internal/service/speech"
	userService "github.com/zhouzirui/smart-tutor/backend/internal/service/user"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

// Dependencies groups what the HTTP layer needs. SpeechSvc may be nil.
type Dependencies struct {
	Store     store.Store
	Hub       *eventService.Hub
	ChatSvc   *chatService.Service
	UserSvc   *userService.Service
	AISvc     *aiService.Service
	SpeechSvc *speechService.Service

	Logger         zerolog.Logger
	AllowedOrigins []string
	AudioURLPrefix string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewarePkg.Metrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	speechHandler := speech.New(nil)
	if deps.SpeechSvc != nil {
		speechHandler = speech.New(deps.SpeechSvc)
	}

	healthHandler := health.New(healthChecks(deps), map[string]any{
		"aiProvider":    deps.AISvc.Provider(),
		"aiStreaming":   deps.AISvc.StreamingEnabled(),
		"speechEnabled": deps.SpeechSvc != nil && deps.SpeechSvc.Enabled(),
	})
	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	if deps.SpeechSvc != nil {
		prefix := "/" + strings.Trim(deps.AudioURLPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(deps.SpeechSvc.AudioDir()))))
	}

	r.Route("/api", func(api chi.Router) {
		user.New(deps.UserSvc).RegisterRoutes(api)
		catalog.New(deps.Store).RegisterRoutes(api)
		chat.New(deps.ChatSvc).RegisterRoutes(api)
		progress.New(deps.Store).RegisterRoutes(api)

		aiHandler.New(deps.AISvc, deps.ChatSvc).RegisterRoutes(api)
		stream.New(deps.AISvc, deps.ChatSvc).RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)

		events.NewWebSocketHandler(deps.Hub, deps.ChatSvc).RegisterRoutes(api)
	})

	return r
}

func healthChecks(deps Dependencies) map[string]health.Pinger {
	checks := map[string]health.Pinger{
		"store":     deps.Store,
		"audio_dir": nil,
	}
	if deps.SpeechSvc != nil && deps.SpeechSvc.Enabled() {
		dir := deps.SpeechSvc.AudioDir()
		checks["audio_dir"] = health.PingFunc(func(context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		})
	}
	return checks
}
