package speech

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
)

type fakeSynthesizer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req speech.TTSRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.texts = append(f.texts, req.Text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("ID3-fake-mp3")), nil
}

func newTestService(t *testing.T, synth Synthesizer) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(&speech.SpeechConfig{AudioDir: dir, AudioURLPrefix: "/audio", MaxInput: speech.MaxInputChars}, synth)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc, dir
}

func TestSynthesizeSpeechStoresClip(t *testing.T) {
	fake := &fakeSynthesizer{}
	svc, dir := newTestService(t, fake)

	resp, err := svc.SynthesizeSpeech(context.Background(), "Coulomb's law describes the force between charges.")
	if err != nil {
		t.Fatalf("SynthesizeSpeech err: %v", err)
	}
	if !strings.HasPrefix(resp.AudioURL, "/audio/speech_") || !strings.HasSuffix(resp.AudioURL, ".mp3") {
		t.Fatalf("unexpected url: %s", resp.AudioURL)
	}

	data, err := os.ReadFile(filepath.Join(dir, resp.FileName))
	if err != nil {
		t.Fatalf("clip not written: %v", err)
	}
	if string(data) != "ID3-fake-mp3" {
		t.Fatalf("unexpected clip content: %q", data)
	}
	if resp.Truncated {
		t.Fatal("short text must not be truncated")
	}
}

func TestSynthesizeSpeechTruncatesLongInput(t *testing.T) {
	fake := &fakeSynthesizer{}
	svc, _ := newTestService(t, fake)

	long := strings.Repeat("é", speech.MaxInputChars+500)
	resp, err := svc.SynthesizeSpeech(context.Background(), long)
	if err != nil {
		t.Fatalf("SynthesizeSpeech err: %v", err)
	}
	if !resp.Truncated {
		t.Fatal("expected truncation flag")
	}

	sent := fake.texts[0]
	if n := utf8.RuneCountInString(sent); n != speech.MaxInputChars {
		t.Fatalf("provider received %d chars, want %d", n, speech.MaxInputChars)
	}
	if !strings.HasPrefix(long, sent) {
		t.Fatal("provider must receive the first characters of the text")
	}
}

func TestSynthesizeSpeechErrors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.SynthesizeSpeech(context.Background(), "  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := svc.SynthesizeSpeech(context.Background(), "hello"); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}

	failing, dir := newTestService(t, &fakeSynthesizer{err: errors.New("quota exceeded")})
	if _, err := failing.SynthesizeSpeech(context.Background(), "hello"); err == nil {
		t.Fatal("expected provider error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no file should be left behind, found %d", len(entries))
	}
}

func TestResolveVoice(t *testing.T) {
	if got := ResolveVoice("Nova", "alloy"); got != openai.VoiceNova {
		t.Fatalf("got %s", got)
	}
	if got := ResolveVoice("zh_female_x", "shimmer"); got != openai.VoiceShimmer {
		t.Fatalf("got %s", got)
	}
	if got := ResolveVoice("", ""); got != openai.VoiceAlloy {
		t.Fatalf("got %s", got)
	}
}
