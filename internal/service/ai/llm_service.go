package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
	"github.com/zhouzirui/smart-tutor/backend/internal/metrics"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
)

// FallbackReply is returned as the assistant turn when no chat model is configured.
const FallbackReply = "I'm your AI tutor for CBSE Class 12. To enable my full capabilities, please provide an OpenAI API key in the environment variables."

var (
	ErrProviderUnavailable = errors.New("ai provider not configured")
	ErrStreamingDisabled   = errors.New("streaming disabled in configuration")
)

// ReplyRequest is one tutoring turn to answer.
type ReplyRequest struct {
	Turns      []chat.Turn
	IsQuestion bool
	Topic      TopicContext
}

// Service encapsulates AI-powered tutoring functionality
type Service struct {
	provider string
	cfg      config.AIConfig
	prompts  *PromptManager
	chain    compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the AI service for the configured provider. Without a usable provider the
// service still answers, with FallbackReply.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	provider := cfg.ResolveProvider()

	var chatModel model.BaseChatModel
	switch provider {
	case config.ProviderOpenAI:
		chatModel = newOpenAIChatModel(cfg)
	case config.ProviderArk:
		arkModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		chatModel = arkModel
	default:
		return &Service{provider: config.ProviderNone, cfg: cfg, prompts: NewPromptManager()}, nil
	}

	return NewServiceWithModel(ctx, provider, chatModel, cfg)
}

// NewServiceWithModel builds the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, provider string, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		provider: provider,
		cfg:      cfg,
		prompts:  NewPromptManager(),
		chain:    runnable,
	}, nil
}

// Available reports whether a real chat model backs the service.
func (s *Service) Available() bool {
	return s.chain != nil
}

// Provider names the active provider ("openai", "ark" or "none").
func (s *Service) Provider() string {
	return s.provider
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.Available() && s.cfg.StreamResponse
}

// Reply generates the next assistant turn.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (chat.Turn, error) {
	if !s.Available() {
		metrics.ChatCompletions.WithLabelValues(s.provider, "fallback").Inc()
		return chat.Turn{Role: chat.RoleAssistant, Content: FallbackReply}, nil
	}

	mode := ModeExplain
	if req.IsQuestion {
		mode = ModeQuestion
	}

	response, err := s.run(ctx, s.buildChainInput(mode, req.Topic, req.Turns))
	if err != nil {
		return chat.Turn{}, err
	}

	log.Info().Str("provider", s.provider).Str("mode", mode).Int("turns", len(req.Turns)).Int("length", len(response.Content)).Msg("generated tutor reply")
	return chat.Turn{Role: chat.RoleAssistant, Content: response.Content}, nil
}

// StreamReply streams the next assistant turn chunk by chunk.
func (s *Service) StreamReply(ctx context.Context, req ReplyRequest) (*schema.StreamReader[*schema.Message], error) {
	if !s.Available() {
		return nil, ErrProviderUnavailable
	}
	if !s.cfg.StreamResponse {
		return nil, ErrStreamingDisabled
	}

	mode := ModeExplain
	if req.IsQuestion {
		mode = ModeQuestion
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(mode, req.Topic, req.Turns))
	if err != nil {
		metrics.ChatCompletions.WithLabelValues(s.provider, "error").Inc()
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	metrics.ChatCompletions.WithLabelValues(s.provider, "ok").Inc()
	return stream, nil
}

// TopicIntroduction writes an introduction to the topic.
func (s *Service) TopicIntroduction(ctx context.Context, topic TopicContext) (string, error) {
	if !s.Available() {
		return "", ErrProviderUnavailable
	}
	turns := []chat.Turn{{Role: chat.RoleUser, Content: IntroductionRequest(topic)}}
	response, err := s.run(ctx, s.buildChainInput(ModeIntroduction, topic, turns))
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// Quiz writes count practice questions with answers.
func (s *Service) Quiz(ctx context.Context, topic TopicContext, difficulty string, count int) (string, error) {
	if !s.Available() {
		return "", ErrProviderUnavailable
	}
	turns := []chat.Turn{{Role: chat.RoleUser, Content: QuizRequest(topic, difficulty, count)}}
	response, err := s.run(ctx, s.buildChainInput(ModeQuiz, topic, turns))
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

func (s *Service) run(ctx context.Context, input map[string]any) (*schema.Message, error) {
	start := time.Now()
	response, err := s.chain.Invoke(ctx, input)
	metrics.ChatLatency.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChatCompletions.WithLabelValues(s.provider, "error").Inc()
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}
	metrics.ChatCompletions.WithLabelValues(s.provider, "ok").Inc()
	return response, nil
}

func (s *Service) buildChainInput(mode string, topic TopicContext, turns []chat.Turn) map[string]any {
	system, history := s.splitTurns(turns)
	systemPrompt := s.prompts.BuildSystemPrompt(mode, topic)
	if system != "" {
		systemPrompt += "\n\nAdditional instructions:\n" + system
	}
	return map[string]any{
		"system":  systemPrompt,
		"history": history,
	}
}

// splitTurns keeps the last HistoryLimit user/assistant turns. Client supplied system turns are
// folded into the system prompt instead of being replayed.
func (s *Service) splitTurns(turns []chat.Turn) (string, []*schema.Message) {
	var system []string
	conversation := make([]chat.Turn, 0, len(turns))
	for _, turn := range turns {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		if turn.Role == chat.RoleSystem {
			system = append(system, turn.Content)
			continue
		}
		conversation = append(conversation, turn)
	}

	limit := s.cfg.HistoryLimit
	if limit > 0 && len(conversation) > limit {
		conversation = conversation[len(conversation)-limit:]
	}

	history := make([]*schema.Message, 0, len(conversation))
	for _, turn := range conversation {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return strings.Join(system, "\n"), history
}
