package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/metrics"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
)

var (
	ErrEmptyText  = errors.New("text is required")
	ErrNotEnabled = errors.New("speech synthesis not configured")
)

// Service 语音合成核心业务逻辑
type Service struct {
	config      *speech.SpeechConfig
	synthesizer Synthesizer
	audio       *AudioStore
}

// NewService 创建语音服务实例。synthesizer 为 nil 时服务处于禁用状态。
func NewService(config *speech.SpeechConfig, synthesizer Synthesizer) (*Service, error) {
	audio, err := NewAudioStore(config.AudioDir, config.AudioURLPrefix)
	if err != nil {
		return nil, err
	}
	return &Service{config: config, synthesizer: synthesizer, audio: audio}, nil
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s.synthesizer != nil
}

// AudioDir is where clips are stored, for the static file server.
func (s *Service) AudioDir() string {
	return s.audio.Dir()
}

// SynthesizeSpeech converts text to a stored clip. Text longer than the provider limit is
// truncated to its first MaxInput characters.
func (s *Service) SynthesizeSpeech(ctx context.Context, text string) (*speech.TTSResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !s.Enabled() {
		metrics.SpeechSyntheses.WithLabelValues("disabled").Inc()
		return nil, ErrNotEnabled
	}

	limit := s.config.MaxInput
	if limit <= 0 || limit > speech.MaxInputChars {
		limit = speech.MaxInputChars
	}
	input := speech.TruncateInput(text, limit)
	truncated := len(input) < len(text)
	if truncated {
		metrics.SpeechTruncations.Inc()
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}

	req := speech.TTSRequest{
		Text:   input,
		Voice:  s.config.TTSVoice,
		Speed:  s.config.TTSSpeed,
		Format: "mp3",
	}

	start := time.Now()
	stream, err := s.synthesizer.Synthesize(ctx, req)
	if err != nil {
		metrics.SpeechSyntheses.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer stream.Close()

	name, url, size, err := s.audio.Save(stream, req.Format)
	if err != nil {
		metrics.SpeechSyntheses.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.SpeechSyntheses.WithLabelValues("ok").Inc()
	log.Info().Str("file", name).Int64("bytes", size).Int("chars", len([]rune(input))).Bool("truncated", truncated).Dur("took", time.Since(start)).Msg("speech synthesized")

	return &speech.TTSResponse{
		AudioURL:  url,
		FileName:  name,
		Size:      size,
		Format:    req.Format,
		Truncated: truncated,
		CreatedAt: time.Now().UTC(),
	}, nil
}
