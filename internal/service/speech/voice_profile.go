package speech

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

var voiceWhitelist = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
}

// ResolveVoice maps a requested voice name onto a supported voice, falling back to fallback
// and finally to alloy.
func ResolveVoice(requested, fallback string) openai.SpeechVoice {
	for _, name := range []string{requested, fallback} {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if voice, ok := voiceWhitelist[normalized]; ok {
			return voice
		}
	}
	return openai.VoiceAlloy
}

// clampSpeed keeps the speed inside what the provider accepts.
func clampSpeed(speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	if speed < 0.25 {
		return 0.25
	}
	if speed > 4.0 {
		return 4.0
	}
	return speed
}
