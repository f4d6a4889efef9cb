package chat

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message persists one turn of the conversation between student and tutor.
type Message struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"sessionId"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	AudioURL      *string   `json:"audioUrl"`
	AttachmentURL *string   `json:"attachmentUrl"`
}

// NewMessage is the payload for persisting a turn. System turns are never accepted from clients.
type NewMessage struct {
	SessionID     int64   `json:"sessionId" validate:"required,gt=0"`
	Role          string  `json:"role" validate:"required,oneof=user assistant"`
	Content       string  `json:"content" validate:"required,notblank"`
	AudioURL      *string `json:"audioUrl,omitempty"`
	AttachmentURL *string `json:"attachmentUrl,omitempty"`
	// Timestamp lets a client store a turn it failed to save earlier at its original place.
	// Times in the future are replaced by the server's clock.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// AudioPatch attaches (or clears, when nil) the synthesized clip of a message.
type AudioPatch struct {
	AudioURL *string `json:"audioUrl"`
}
