package speech

// SpeechConfig 语音合成配置
type SpeechConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`

	// TTS 配置
	TTSModel string  `json:"ttsModel"`
	TTSVoice string  `json:"ttsVoice"`
	TTSSpeed float64 `json:"ttsSpeed"`
	MaxInput int     `json:"maxInput"` // characters

	// 音频文件存放位置
	AudioDir       string `json:"audioDir"`
	AudioURLPrefix string `json:"audioUrlPrefix"`

	Timeout int `json:"timeout"` // seconds
}
