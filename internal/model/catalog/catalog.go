package catalog

// Subject is a course of the syllabus, e.g. Physics (CBSE Class 12).
type Subject struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Icon        string  `json:"icon"`
	Description *string `json:"description"`
	Syllabus    string  `json:"syllabus"`
}

// NewSubject is the payload for adding a subject.
type NewSubject struct {
	Name        string  `json:"name" validate:"required,notblank"`
	Icon        string  `json:"icon" validate:"required"`
	Description *string `json:"description,omitempty"`
	Syllabus    string  `json:"syllabus" validate:"required"`
}

// Topic is a chapter of a subject.
type Topic struct {
	ID                int64   `json:"id"`
	SubjectID         int64   `json:"subjectId"`
	Name              string  `json:"name"`
	Description       *string `json:"description"`
	EstimatedDuration *int    `json:"estimatedDuration"` // minutes
}

// NewTopic is the payload for adding a topic.
type NewTopic struct {
	SubjectID         int64   `json:"subjectId" validate:"required,gt=0"`
	Name              string  `json:"name" validate:"required,notblank"`
	Description       *string `json:"description,omitempty"`
	EstimatedDuration *int    `json:"estimatedDuration,omitempty" validate:"omitempty,gt=0"`
}
