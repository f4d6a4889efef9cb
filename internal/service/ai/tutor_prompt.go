package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
)

// Prompt modes.
const (
	ModeExplain      = "explain"
	ModeQuestion     = "question"
	ModeIntroduction = "introduction"
	ModeQuiz         = "quiz"
)

// PromptTemplate defines the structure for tutor prompts
type PromptTemplate struct {
	SystemPrompt string
	Hints        []string
	Rules        []string
}

// TopicContext names what the student is studying. Empty fields are omitted from prompts.
type TopicContext struct {
	Subject  string
	Topic    string
	Syllabus string
}

// TopicFromCatalog builds the prompt context of a stored subject and topic.
func TopicFromCatalog(subject catalog.Subject, topic catalog.Topic) TopicContext {
	return TopicContext{Subject: subject.Name, Topic: topic.Name, Syllabus: subject.Syllabus}
}

func (c TopicContext) syllabus() string {
	if c.Syllabus == "" {
		return "CBSE Class 12"
	}
	if strings.HasPrefix(c.Syllabus, "CBSE ") && !strings.Contains(c.Syllabus, "Class") {
		return "CBSE Class " + strings.TrimPrefix(c.Syllabus, "CBSE ")
	}
	return c.Syllabus
}

// PromptManager manages prompt templates for the tutoring modes
type PromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPromptManager creates a new prompt manager with default templates
func NewPromptManager() *PromptManager {
	manager := &PromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// BuildSystemPrompt creates the system prompt for a mode, enriched with the topic when known.
// Unknown modes fall back to the explanation prompt.
func (pm *PromptManager) BuildSystemPrompt(mode string, topic TopicContext) string {
	template, ok := pm.templates[mode]
	if !ok {
		template = pm.templates[ModeExplain]
	}

	var b strings.Builder
	b.WriteString(strings.ReplaceAll(template.SystemPrompt, "{syllabus}", topic.syllabus()))

	if topic.Subject != "" || topic.Topic != "" {
		b.WriteString("\n\nCurrent lesson:")
		if topic.Subject != "" {
			fmt.Fprintf(&b, "\n- Subject: %s", topic.Subject)
		}
		if topic.Topic != "" {
			fmt.Fprintf(&b, "\n- Topic: %s", topic.Topic)
		}
	}

	if len(template.Hints) > 0 {
		b.WriteString("\n\nTeaching style:\n- ")
		b.WriteString(strings.Join(template.Hints, "\n- "))
	}
	if len(template.Rules) > 0 {
		b.WriteString("\n\nRules:\n- ")
		b.WriteString(strings.Join(template.Rules, "\n- "))
	}
	return b.String()
}

// IntroductionRequest builds the user turn asking for a topic introduction.
func IntroductionRequest(topic TopicContext) string {
	return fmt.Sprintf("Please provide an introduction to the %s topic from the %s subject in the %s curriculum. Include key concepts, definitions, and the significance of this topic.",
		topic.Topic, topic.Subject, topic.syllabus())
}

// QuizRequest builds the user turn asking for practice questions.
func QuizRequest(topic TopicContext, difficulty string, count int) string {
	return fmt.Sprintf("Create %d %s level questions about %s in %s for %s students. Include answers and explanations for each question.",
		count, difficulty, topic.Topic, topic.Subject, topic.syllabus())
}

// loadDefaultTemplates loads the default prompt templates for each mode
func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates[ModeExplain] = &PromptTemplate{
		SystemPrompt: "You are a helpful AI tutor for {syllabus} students. Explain concepts in a clear, engaging way using simple language and relevant examples. Break down complex topics into smaller parts. Use a friendly, encouraging tone.",
		Hints: []string{
			"Keep answers short enough to be read aloud",
			"End with a quick check-for-understanding question when it helps",
		},
	}

	pm.templates[ModeQuestion] = &PromptTemplate{
		SystemPrompt: "You are a helpful AI tutor for {syllabus} students. A student has raised their hand to ask a question. Give a clear, concise, and accurate answer to help them understand the concept. Be friendly and encouraging.",
		Rules: []string{
			"Provide step-by-step explanations when needed",
			"If the question is unclear, ask for clarification",
			"If the question is outside the lesson, say so and suggest related topics you can help with",
		},
	}

	pm.templates[ModeIntroduction] = &PromptTemplate{
		SystemPrompt: "You are an expert AI tutor for {syllabus} students. Provide comprehensive, accurate, and engaging educational content. Break down complex concepts into understandable parts. Include relevant formulas, diagrams, and real-world examples.",
		Rules: []string{
			"Follow the curriculum structure",
			"Address common misconceptions",
		},
	}

	pm.templates[ModeQuiz] = &PromptTemplate{
		SystemPrompt: "You are an expert question creator for the {syllabus} curriculum. Generate challenging but fair questions that test understanding of key concepts. Include a mix of conceptual and application-based questions.",
	}
}
