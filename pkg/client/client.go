// Package client is a Go client for the tutor API. *Client satisfies session.Remote and
// session.EventSource.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
)

// ErrSpeechUnavailable is returned when the server has no speech provider.
var ErrSpeechUnavailable = errors.New("speech synthesis unavailable")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tutor api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the tutor API under BaseURL (for example http://localhost:8080).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client with a 60s timeout; chat completions can be slow.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ResolveURL turns a server-relative locator such as /audio/x.mp3 into an absolute URL.
func (c *Client) ResolveURL(locator string) string {
	if locator == "" {
		return ""
	}
	if u, err := url.Parse(locator); err == nil && u.IsAbs() {
		return locator
	}
	return c.BaseURL + "/" + strings.TrimLeft(locator, "/")
}

func (c *Client) GetSession(ctx context.Context, id int64) (chat.Session, error) {
	var out chat.Session
	err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+itoa(id), nil, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, in chat.NewSession) (chat.Session, error) {
	var out chat.Session
	err := c.doJSON(ctx, http.MethodPost, "/api/sessions", in, &out)
	return out, err
}

func (c *Client) UpdateSession(ctx context.Context, id int64, patch chat.SessionPatch) (chat.Session, error) {
	var out chat.Session
	err := c.doJSON(ctx, http.MethodPatch, "/api/sessions/"+itoa(id), patch, &out)
	return out, err
}

// RecentSessions returns the user's latest sessions, most recent first.
func (c *Client) RecentSessions(ctx context.Context, userID int64, limit int) ([]chat.Session, error) {
	var out []chat.Session
	path := fmt.Sprintf("/api/users/%d/sessions/recent?limit=%d", userID, limit)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, sessionID int64) ([]chat.Message, error) {
	var out []chat.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+itoa(sessionID)+"/messages", nil, &out)
	return out, err
}

func (c *Client) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	var out chat.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/messages", msg, &out)
	return out, err
}

func (c *Client) AttachAudio(ctx context.Context, messageID int64, audioURL string) (chat.Message, error) {
	var out chat.Message
	err := c.doJSON(ctx, http.MethodPatch, "/api/messages/"+itoa(messageID), chat.AudioPatch{AudioURL: &audioURL}, &out)
	return out, err
}

func (c *Client) SendChat(ctx context.Context, req chat.ChatRequest) (chat.ChatReply, error) {
	var out chat.ChatReply
	err := c.doJSON(ctx, http.MethodPost, "/api/ai/chat", req, &out)
	return out, err
}

// SynthesizeSpeech sends at most speech.MaxInputChars runes of text and returns the clip locator.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	req := chat.SpeechRequest{Text: speech.TruncateInput(text, speech.MaxInputChars)}

	var out chat.SpeechReply
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai/tts", req, &out); err != nil {
		return "", err
	}
	if !out.Success || out.AudioURL == nil || *out.AudioURL == "" {
		if out.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrSpeechUnavailable, out.Message)
		}
		return "", ErrSpeechUnavailable
	}
	return *out.AudioURL, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (user.User, error) {
	var out user.User
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", user.Credentials{Username: username, Password: password}, &out)
	return out, err
}

func (c *Client) ListSubjects(ctx context.Context) ([]catalog.Subject, error) {
	var out []catalog.Subject
	err := c.doJSON(ctx, http.MethodGet, "/api/subjects", nil, &out)
	return out, err
}

func (c *Client) ListTopics(ctx context.Context, subjectID int64) ([]catalog.Topic, error) {
	var out []catalog.Topic
	err := c.doJSON(ctx, http.MethodGet, "/api/subjects/"+itoa(subjectID)+"/topics", nil, &out)
	return out, err
}

// doJSON performs an HTTP request and decodes the JSON answer into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
