package session

import (
	"context"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
)

// Wire types shared with the tutor API.
type (
	ServerMessage = chat.Message
	SessionInfo   = chat.Session
	SessionPatch  = chat.SessionPatch
	NewMessage    = chat.NewMessage
	ChatRequest   = chat.ChatRequest
	ChatReply     = chat.ChatReply
	Turn          = chat.Turn
	Event         = chat.Event
)

const (
	EventMessageCreated = chat.EventMessageCreated
	EventMessageUpdated = chat.EventMessageUpdated
	EventSessionUpdated = chat.EventSessionUpdated
)

// Remote is the tutoring backend a Session talks to. pkg/client provides the HTTP implementation.
type Remote interface {
	GetSession(ctx context.Context, id int64) (SessionInfo, error)
	UpdateSession(ctx context.Context, id int64, patch SessionPatch) (SessionInfo, error)
	ListMessages(ctx context.Context, sessionID int64) ([]ServerMessage, error)
	CreateMessage(ctx context.Context, msg NewMessage) (ServerMessage, error)
	// AttachAudio sets the audio locator of an already persisted message.
	AttachAudio(ctx context.Context, messageID int64, audioURL string) (ServerMessage, error)
	SendChat(ctx context.Context, req ChatRequest) (ChatReply, error)
	// SynthesizeSpeech returns the locator of a clip for text.
	SynthesizeSpeech(ctx context.Context, text string) (string, error)
}

// EventSource is implemented by remotes that push session changes.
type EventSource interface {
	Subscribe(ctx context.Context, sessionID int64) (<-chan Event, error)
}
