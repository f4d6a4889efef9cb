package speech

// MaxInputChars is the longest text the speech provider accepts.
const MaxInputChars = 4096

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`  // 0.25-4.0
	Format string  `json:"format"` // mp3
}

// TruncateInput keeps the first limit characters of text. Characters are runes, so a
// multi-byte character is never split.
func TruncateInput(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
