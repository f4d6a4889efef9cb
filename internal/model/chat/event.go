package chat

import "time"

// Event types pushed to session subscribers.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventSessionUpdated = "session.updated"
)

// Event notifies subscribers that server-side session state changed.
type Event struct {
	Type      string    `json:"type"`
	SessionID int64     `json:"sessionId"`
	MessageID int64     `json:"messageId,omitempty"`
	At        time.Time `json:"at"`
}
