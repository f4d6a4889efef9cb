package session

import (
	"time"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
)

// Status tracks whether a turn reached the server.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Roles, as stored by the server.
const (
	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant
	RoleSystem    = chat.RoleSystem
)

// ChatTurn is one message of the tutoring conversation as seen by the client.
type ChatTurn struct {
	ID          int64
	Provisional bool // ID is local; the server has not acknowledged the turn
	Role        string
	Content     string
	Timestamp   time.Time
	AudioURL    string
	Status      Status
	Question    bool // sent with the raised-hand prompt

	// IsPlaying is derived on read from the playback state.
	IsPlaying bool
}

// HasAudio reports whether a synthesized clip is attached.
func (t ChatTurn) HasAudio() bool {
	return t.AudioURL != ""
}

func turnFromMessage(m chat.Message) ChatTurn {
	turn := ChatTurn{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Status:    StatusSent,
	}
	if m.AudioURL != nil {
		turn.AudioURL = *m.AudioURL
	}
	return turn
}
