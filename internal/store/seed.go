package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
)

// DemoUsername identifies the seeded demo account.
const DemoUsername = "demo_student"

// Seed loads the demo student, the CBSE 12 catalog and a couple of finished sessions.
// It does nothing when the demo student already exists.
func Seed(ctx context.Context, st Store) error {
	if _, err := st.GetUserByUsername(ctx, DemoUsername); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("seed: %w", err)
	}

	demo := user.User{
		Username: DemoUsername,
		Name:     "Priya Sharma",
		Grade:    strPtr("12"),
		Section:  strPtr("Science"),
	}
	if err := demo.SetPassword("password123"); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	u, err := st.CreateUser(ctx, demo)
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	subjects := []catalog.NewSubject{
		{Name: "Physics", Icon: "flask", Description: strPtr("Study of matter, energy, and the interaction between them"), Syllabus: "CBSE 12"},
		{Name: "Chemistry", Icon: "vial", Description: strPtr("Study of substances, their properties, structure, and transformations"), Syllabus: "CBSE 12"},
		{Name: "Mathematics", Icon: "calculator", Description: strPtr("Study of numbers, quantities, and shapes"), Syllabus: "CBSE 12"},
		{Name: "Biology", Icon: "dna", Description: strPtr("Study of living organisms and their interactions"), Syllabus: "CBSE 12"},
		{Name: "English", Icon: "book", Description: strPtr("Study of language and literature"), Syllabus: "CBSE 12"},
	}
	ids := make(map[string]int64, len(subjects))
	for _, in := range subjects {
		subj, err := st.CreateSubject(ctx, in)
		if err != nil {
			return fmt.Errorf("seed subject %s: %w", in.Name, err)
		}
		ids[subj.Name] = subj.ID
	}

	physics, chemistry := ids["Physics"], ids["Chemistry"]
	topics := []catalog.NewTopic{
		{SubjectID: physics, Name: "Electrostatics", Description: strPtr("Study of electric charges at rest"), EstimatedDuration: intPtr(45)},
		{SubjectID: physics, Name: "Current Electricity", Description: strPtr("Study of electric charges in motion"), EstimatedDuration: intPtr(60)},
		{SubjectID: physics, Name: "Magnetic Effects", Description: strPtr("Study of magnetic fields and their effects"), EstimatedDuration: intPtr(45)},
		{SubjectID: chemistry, Name: "Solid State", Description: strPtr("Study of solid crystalline forms"), EstimatedDuration: intPtr(40)},
		{SubjectID: chemistry, Name: "Solutions", Description: strPtr("Study of homogeneous mixtures"), EstimatedDuration: intPtr(45)},
		{SubjectID: chemistry, Name: "Electrochemistry", Description: strPtr("Study of electricity and chemical reactions"), EstimatedDuration: intPtr(50)},
		{SubjectID: chemistry, Name: "Chemical Kinetics", Description: strPtr("Study of rates of chemical reactions"), EstimatedDuration: intPtr(55)},
	}
	topicIDs := make(map[string]int64, len(topics))
	for _, in := range topics {
		topic, err := st.CreateTopic(ctx, in)
		if err != nil {
			return fmt.Errorf("seed topic %s: %w", in.Name, err)
		}
		topicIDs[topic.Name] = topic.ID
	}

	currentElectricity, solutions := topicIDs["Current Electricity"], topicIDs["Solutions"]
	records := []progress.NewProgress{
		{UserID: u.ID, SubjectID: physics, TopicID: currentElectricity, CompletionPercentage: 100,
			Metrics: []byte(`{"questionsAsked":5,"timeSpent":35,"engagementScore":85}`)},
		{UserID: u.ID, SubjectID: chemistry, TopicID: solutions, CompletionPercentage: 75,
			Metrics: []byte(`{"questionsAsked":3,"timeSpent":25,"engagementScore":80}`)},
	}
	for _, in := range records {
		if _, err := st.UpsertProgress(ctx, in); err != nil {
			return fmt.Errorf("seed progress: %w", err)
		}
	}

	sessions := []struct {
		in    chat.NewSession
		patch chat.SessionPatch
	}{
		{
			in:    chat.NewSession{UserID: u.ID, SubjectID: chemistry, TopicID: solutions},
			patch: chat.SessionPatch{Duration: intPtr(35 * 60), CompletionPercentage: intPtr(75), Notes: strPtr("Notes about Solutions - Colligative Properties")},
		},
		{
			in:    chat.NewSession{UserID: u.ID, SubjectID: physics, TopicID: currentElectricity},
			patch: chat.SessionPatch{Duration: intPtr(45 * 60), CompletionPercentage: intPtr(100), Notes: strPtr("Notes about Current Electricity - Ohm's Law")},
		},
	}
	for _, item := range sessions {
		session, err := st.CreateSession(ctx, item.in)
		if err != nil {
			return fmt.Errorf("seed session: %w", err)
		}
		if _, err := st.UpdateSession(ctx, session.ID, item.patch); err != nil {
			return fmt.Errorf("seed session: %w", err)
		}
	}

	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
