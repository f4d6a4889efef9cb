package speech

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// AudioStore writes synthesized clips to a directory served under a URL prefix.
type AudioStore struct {
	dir    string
	prefix string
}

// NewAudioStore creates the directory if needed.
func NewAudioStore(dir, urlPrefix string) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &AudioStore{dir: dir, prefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir is the directory clips are written to.
func (s *AudioStore) Dir() string {
	return s.dir
}

// Save streams r into a new speech_<ulid>.<ext> file and returns its name, URL and size.
// Partially written files are removed on error.
func (s *AudioStore) Save(r io.Reader, ext string) (name, url string, size int64, err error) {
	if ext == "" {
		ext = "mp3"
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	name = fmt.Sprintf("speech_%s.%s", strings.ToLower(id.String()), ext)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("create audio file: %w", err)
	}

	size, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", "", 0, fmt.Errorf("write audio file: %w", err)
	}
	if size == 0 {
		_ = os.Remove(path)
		return "", "", 0, fmt.Errorf("write audio file: empty audio")
	}

	return name, s.prefix + "/" + name, size, nil
}
