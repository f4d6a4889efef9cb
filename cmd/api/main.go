package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
	"github.com/zhouzirui/smart-tutor/backend/internal/handler"
	"github.com/zhouzirui/smart-tutor/backend/internal/logging"
	speechModel "github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/smart-tutor/backend/internal/service/ai"
	"github.com/zhouzirui/smart-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/service/events"
	"github.com/zhouzirui/smart-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/smart-tutor/backend/internal/service/user"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer st.Close()

	hub := events.NewHub()
	defer hub.CloseAll()

	chatService := chat.NewService(st, hub)
	userService := user.NewService(st)

	aiService, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize AI service, answering with the fallback reply")
		aiService, _ = ai.NewService(ctx, config.AIConfig{Provider: config.ProviderNone})
	}
	if aiService.Available() {
		logger.Info().Str("provider", aiService.Provider()).Bool("stream", aiService.StreamingEnabled()).Msg("AI service initialized")
	} else {
		logger.Warn().Msg("no AI provider configured, /api/ai/chat answers with the fallback reply")
	}

	speechService, err := newSpeechService(cfg.Speech)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize speech service")
	}
	if speechService.Enabled() {
		logger.Info().Str("model", cfg.Speech.TTSModel).Str("voice", cfg.Speech.TTSVoice).Str("dir", speechService.AudioDir()).Msg("speech service initialized")
	} else {
		logger.Warn().Msg("speech credentials not configured, text to speech disabled")
	}

	router := handler.NewRouter(handler.Dependencies{
		Store:          st,
		Hub:            hub,
		ChatSvc:        chatService,
		UserSvc:        userService,
		AISvc:          aiService,
		SpeechSvc:      speechService,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AudioURLPrefix: cfg.Speech.AudioURLPrefix,
	})

	startServer(ctx, cfg.Server, router)
}

func newSpeechService(cfg config.SpeechConfig) (*speech.Service, error) {
	speechConfig := &speechModel.SpeechConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		TTSModel:       cfg.TTSModel,
		TTSVoice:       cfg.TTSVoice,
		TTSSpeed:       float64(cfg.TTSSpeed),
		MaxInput:       cfg.MaxInput,
		AudioDir:       cfg.AudioDir,
		AudioURLPrefix: cfg.AudioURLPrefix,
		Timeout:        int(cfg.Timeout / time.Second),
	}

	var synthesizer speech.Synthesizer
	if cfg.Enabled {
		synthesizer = speech.NewOpenAITTSClient(cfg.OpenAIClientConfig(), cfg.TTSModel)
	}
	return speech.NewService(speechConfig, synthesizer)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Smart Tutor backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
