package progress

import (
	"encoding/json"
	"time"
)

// Progress tracks how far a student got through a topic. It is unique per (user, subject, topic).
type Progress struct {
	ID                   int64           `json:"id"`
	UserID               int64           `json:"userId"`
	SubjectID            int64           `json:"subjectId"`
	TopicID              int64           `json:"topicId"`
	CompletionPercentage int             `json:"completionPercentage"`
	LastStudied          time.Time       `json:"lastStudied"`
	Metrics              json.RawMessage `json:"metrics"`
}

// NewProgress is the upsert payload.
type NewProgress struct {
	UserID               int64           `json:"userId" validate:"required,gt=0"`
	SubjectID            int64           `json:"subjectId" validate:"required,gt=0"`
	TopicID              int64           `json:"topicId" validate:"required,gt=0"`
	CompletionPercentage int             `json:"completionPercentage" validate:"gte=0,lte=100"`
	Metrics              json.RawMessage `json:"metrics,omitempty"`
}

// Highlight is a tutor message the student bookmarked.
type Highlight struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	SessionID int64     `json:"sessionId"`
	MessageID int64     `json:"messageId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHighlight is the payload for bookmarking a message.
type NewHighlight struct {
	UserID    int64  `json:"userId" validate:"required,gt=0"`
	SessionID int64  `json:"sessionId" validate:"required,gt=0"`
	MessageID int64  `json:"messageId" validate:"required,gt=0"`
	Content   string `json:"content" validate:"required,notblank"`
}
