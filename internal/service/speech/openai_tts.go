package speech

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
)

// Synthesizer turns text into an encoded audio stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.TTSRequest) (io.ReadCloser, error)
}

// OpenAITTSClient calls the OpenAI speech endpoint.
type OpenAITTSClient struct {
	client *openai.Client
	model  openai.SpeechModel
}

// NewOpenAITTSClient 创建 OpenAI 语音合成客户端
func NewOpenAITTSClient(cfg openai.ClientConfig, model string) *OpenAITTSClient {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAITTSClient{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
	}
}

// Synthesize requests speech for req.Text. The caller must close the returned stream.
func (c *OpenAITTSClient) Synthesize(ctx context.Context, req speech.TTSRequest) (io.ReadCloser, error) {
	format := openai.SpeechResponseFormatMp3
	if req.Format != "" {
		format = openai.SpeechResponseFormat(req.Format)
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.model,
		Input:          req.Text,
		Voice:          ResolveVoice(req.Voice, ""),
		ResponseFormat: format,
		Speed:          clampSpeed(req.Speed),
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	return resp, nil
}
