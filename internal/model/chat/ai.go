package chat

// Turn is the role/content pair exchanged with the chat model.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// ChatRequest asks the tutor model for the next assistant turn.
type ChatRequest struct {
	Messages   []Turn `json:"messages" validate:"required,dive"`
	SessionID  *int64 `json:"sessionId,omitempty"`
	UserID     *int64 `json:"userId,omitempty"`
	IsQuestion bool   `json:"isQuestion"`
}

// ChatReply carries the assistant turn and, when the server already stored it, its id.
type ChatReply struct {
	Message Turn   `json:"message"`
	ID      *int64 `json:"id,omitempty"`
}

// SpeechRequest asks for a synthesized clip of the text.
type SpeechRequest struct {
	Text string `json:"text" validate:"required"`
}

// SpeechReply points at the synthesized clip.
type SpeechReply struct {
	Success  bool    `json:"success"`
	AudioURL *string `json:"audioUrl"`
	Message  string  `json:"message,omitempty"`
}

// IntroductionRequest asks for an overview of a topic.
type IntroductionRequest struct {
	Subject string `json:"subject" validate:"required,notblank"`
	Topic   string `json:"topic" validate:"required,notblank"`
}

// QuizRequest asks for practice questions on a topic. Difficulty defaults to intermediate and
// Count to 5.
type QuizRequest struct {
	Subject    string `json:"subject" validate:"required,notblank"`
	Topic      string `json:"topic" validate:"required,notblank"`
	Difficulty string `json:"difficulty,omitempty" validate:"omitempty,oneof=basic intermediate advanced"`
	Count      int    `json:"numberOfQuestions,omitempty" validate:"omitempty,gte=1,lte=20"`
}

// GeneratedContent wraps free-form model output.
type GeneratedContent struct {
	Content string `json:"content"`
}
