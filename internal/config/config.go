package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/sashabaranov/go-openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Store  StoreConfig
	AI     AIConfig
	Speech SpeechConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Log: loadLogConfig(), Store: store, AI: ai, Speech: speech}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与跨域白名单。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level string
	Env   string
}

// IsDevelopment 开发环境下使用可读的控制台输出。
func (c LogConfig) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Env:   strings.ToLower(getEnvOrDefault("APP_ENV", "development")),
	}
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig 描述持久化后端。
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	Seed        bool
}

func loadStoreConfig() (StoreConfig, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = DriverMemory
		if databaseURL != "" {
			driver = DriverPostgres
		}
	}

	switch driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if databaseURL == "" {
			return StoreConfig{}, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	seed, err := parseBoolEnv("STORE_SEED", true)
	if err != nil {
		return StoreConfig{}, err
	}

	return StoreConfig{
		Driver:      driver,
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "./data/tutor.db"),
		DatabaseURL: databaseURL,
		Seed:        seed,
	}, nil
}

// AI providers.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
	ProviderNone   = "none"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	HistoryLimit   int
	StreamResponse bool
}

// Enabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// OpenAIEnabled 表示是否配置了 OpenAI 密钥。
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIKey != ""
}

// ResolveProvider 将 auto 解析为实际可用的提供方；都不可用时返回 ProviderNone。
func (c AIConfig) ResolveProvider() string {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIEnabled() {
			return ProviderOpenAI
		}
	case ProviderArk:
		if c.Enabled() {
			return ProviderArk
		}
	case ProviderAuto, "":
		if c.OpenAIEnabled() {
			return ProviderOpenAI
		}
		if c.Enabled() {
			return ProviderArk
		}
	}
	return ProviderNone
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// OpenAIClientConfig 构造 go-openai 客户端配置。
func (c AIConfig) OpenAIClientConfig() openai.ClientConfig {
	cfg := openai.DefaultConfig(c.OpenAIKey)
	if c.OpenAIBaseURL != "" {
		cfg.BaseURL = c.OpenAIBaseURL
	}
	return cfg
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderAuto))
	switch provider {
	case ProviderAuto, ProviderOpenAI, ProviderArk, ProviderNone:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value: %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		val := 0.7
		temperature = &val
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		val := 800
		maxTokens = &val
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	return AIConfig{
		Provider:       provider,
		OpenAIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:  strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", openai.GPT4o),
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		HistoryLimit:   historyLimit,
		StreamResponse: stream,
	}, nil
}

// SpeechConfig 描述语音合成相关配置
type SpeechConfig struct {
	APIKey         string
	BaseURL        string
	TTSModel       string
	TTSVoice       string
	TTSSpeed       float32
	MaxInput       int
	AudioDir       string
	AudioURLPrefix string
	Timeout        time.Duration
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0) // 默认1.0倍速
	if speed != nil {
		if *speed < 0.25 || *speed > 4.0 {
			return SpeechConfig{}, fmt.Errorf("invalid TTS_SPEED value %v: must be within [0.25, 4.0]", *speed)
		}
		ttsSpeed = *speed
	}

	maxInput := 4096
	if override, err := parseOptionalIntEnv("TTS_MAX_INPUT"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil && *override > 0 && *override < maxInput {
		maxInput = *override
	}

	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	baseURL := strings.TrimSpace(os.Getenv("SPEECH_BASE_URL"))

	// 如果没有专门的语音配置，尝试使用 OpenAI 配置
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if baseURL == "" {
			baseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
		}
	}

	return SpeechConfig{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		TTSModel:       getEnvOrDefault("TTS_MODEL", string(openai.TTSModel1)),
		TTSVoice:       getEnvOrDefault("TTS_VOICE", string(openai.VoiceAlloy)),
		TTSSpeed:       ttsSpeed,
		MaxInput:       maxInput,
		AudioDir:       getEnvOrDefault("AUDIO_DIR", "./public/audio"),
		AudioURLPrefix: strings.TrimRight(getEnvOrDefault("AUDIO_URL_PREFIX", "/audio"), "/"),
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		Enabled:        apiKey != "",
	}, nil
}

// OpenAIClientConfig 构造语音合成使用的 go-openai 客户端配置。
func (c SpeechConfig) OpenAIClientConfig() openai.ClientConfig {
	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	return cfg
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
