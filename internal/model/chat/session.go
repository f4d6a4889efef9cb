package chat

import "time"

// Session captures one tutoring session of a student on a topic.
type Session struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"userId"`
	SubjectID            int64      `json:"subjectId"`
	TopicID              int64      `json:"topicId"`
	StartTime            time.Time  `json:"startTime"`
	EndTime              *time.Time `json:"endTime"`
	Duration             *int       `json:"duration"` // seconds
	CompletionPercentage int        `json:"completionPercentage"`
	Notes                *string    `json:"notes"`
}

// NewSession is the payload accepted when a session is started.
type NewSession struct {
	UserID    int64 `json:"userId" validate:"required,gt=0"`
	SubjectID int64 `json:"subjectId" validate:"required,gt=0"`
	TopicID   int64 `json:"topicId" validate:"required,gt=0"`
}

// SessionPatch carries the mutable session fields. Nil fields are left untouched.
type SessionPatch struct {
	EndTime              *time.Time `json:"endTime,omitempty"`
	Duration             *int       `json:"duration,omitempty" validate:"omitempty,gte=0"`
	CompletionPercentage *int       `json:"completionPercentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	Notes                *string    `json:"notes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.EndTime == nil && p.Duration == nil && p.CompletionPercentage == nil && p.Notes == nil
}

// Apply returns a copy of s with the patch merged in.
func (p SessionPatch) Apply(s Session) Session {
	if p.EndTime != nil {
		t := *p.EndTime
		s.EndTime = &t
	}
	if p.Duration != nil {
		d := *p.Duration
		s.Duration = &d
	}
	if p.CompletionPercentage != nil {
		s.CompletionPercentage = *p.CompletionPercentage
	}
	if p.Notes != nil {
		n := *p.Notes
		s.Notes = &n
	}
	return s
}
