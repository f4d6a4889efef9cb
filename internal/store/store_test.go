package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "tutor.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore err: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := Seed(ctx, st); err != nil {
				t.Fatalf("Seed err: %v", err)
			}
			if err := Seed(ctx, st); err != nil {
				t.Fatalf("second Seed err: %v", err)
			}

			subjects, err := st.ListSubjects(ctx)
			if err != nil {
				t.Fatalf("ListSubjects err: %v", err)
			}
			if len(subjects) != 5 {
				t.Fatalf("expected 5 subjects, got %d", len(subjects))
			}

			u, err := st.GetUserByUsername(ctx, DemoUsername)
			if err != nil {
				t.Fatalf("GetUserByUsername err: %v", err)
			}
			if err := u.CheckPassword("password123"); err != nil {
				t.Fatalf("demo password mismatch: %v", err)
			}

			recent, err := st.RecentSessions(ctx, u.ID, 0)
			if err != nil {
				t.Fatalf("RecentSessions err: %v", err)
			}
			if len(recent) != 2 {
				t.Fatalf("expected 2 sessions, got %d", len(recent))
			}
			if recent[0].ID < recent[1].ID {
				t.Fatalf("expected most recent first, got ids %d,%d", recent[0].ID, recent[1].ID)
			}
		})
	}
}

func TestMessagesAscendingAndAudioPatch(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := st.CreateSession(ctx, chat.NewSession{UserID: 1, SubjectID: 1, TopicID: 1})
			if err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}

			first, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: session.ID, Role: chat.RoleUser, Content: "What is Ohm's law?"})
			if err != nil {
				t.Fatalf("CreateMessage err: %v", err)
			}
			second, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: session.ID, Role: chat.RoleAssistant, Content: "V = IR"})
			if err != nil {
				t.Fatalf("CreateMessage err: %v", err)
			}

			url := "/audio/speech_1.mp3"
			patched, err := st.SetMessageAudio(ctx, second.ID, &url)
			if err != nil {
				t.Fatalf("SetMessageAudio err: %v", err)
			}
			if patched.AudioURL == nil || *patched.AudioURL != url {
				t.Fatalf("audio url not stored: %+v", patched)
			}

			msgs, err := st.ListMessages(ctx, session.ID)
			if err != nil {
				t.Fatalf("ListMessages err: %v", err)
			}
			if len(msgs) != 2 || msgs[0].ID != first.ID || msgs[1].ID != second.ID {
				t.Fatalf("unexpected order: %+v", msgs)
			}
			if msgs[0].AudioURL != nil {
				t.Fatal("user turn must not carry audio")
			}
		})
	}
}

func TestMessageKeepsClientTimestamp(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := st.CreateSession(ctx, chat.NewSession{UserID: 1, SubjectID: 1, TopicID: 1})
			if err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}

			asked := time.Now().UTC().Add(-time.Hour)
			question, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: session.ID, Role: chat.RoleUser, Content: "Hi", Timestamp: &asked})
			if err != nil {
				t.Fatalf("CreateMessage err: %v", err)
			}
			next, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: session.ID, Role: chat.RoleUser, Content: "Next"})
			if err != nil {
				t.Fatalf("CreateMessage err: %v", err)
			}
			answered := asked.Add(time.Minute)
			late, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: session.ID, Role: chat.RoleAssistant, Content: "Echo: Hi", Timestamp: &answered})
			if err != nil {
				t.Fatalf("CreateMessage err: %v", err)
			}
			future := time.Now().Add(24 * time.Hour)
			clamped, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: session.ID, Role: chat.RoleAssistant, Content: "later", Timestamp: &future})
			if err != nil {
				t.Fatalf("CreateMessage err: %v", err)
			}
			if clamped.Timestamp.After(time.Now().Add(time.Minute)) {
				t.Fatalf("future timestamp should be replaced, got %v", clamped.Timestamp)
			}

			msgs, err := st.ListMessages(ctx, session.ID)
			if err != nil {
				t.Fatalf("ListMessages err: %v", err)
			}
			want := []int64{question.ID, late.ID, next.ID, clamped.ID}
			if len(msgs) != len(want) {
				t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
			}
			for i, id := range want {
				if msgs[i].ID != id {
					t.Fatalf("position %d: expected message %d, got %d", i, id, msgs[i].ID)
				}
			}
		})
	}
}

func TestNotFoundAndConflict(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := st.CreateMessage(ctx, chat.NewMessage{SessionID: 999, Role: chat.RoleUser, Content: "hi"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := st.SetMessageAudio(ctx, 999, nil); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := st.UpdateSession(ctx, 999, chat.SessionPatch{}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := st.CreateTopic(ctx, catalog.NewTopic{SubjectID: 42, Name: "Optics"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if _, err := st.CreateUser(ctx, user.User{Username: "asha", Name: "Asha"}); err != nil {
				t.Fatalf("CreateUser err: %v", err)
			}
			if _, err := st.CreateUser(ctx, user.User{Username: "asha", Name: "Asha Again"}); !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestUpdateSessionPartial(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := st.CreateSession(ctx, chat.NewSession{UserID: 7, SubjectID: 1, TopicID: 2})
			if err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}

			notes := "Kirchhoff's rules"
			if _, err := st.UpdateSession(ctx, session.ID, chat.SessionPatch{Notes: &notes}); err != nil {
				t.Fatalf("UpdateSession err: %v", err)
			}
			pct := 40
			end := time.Now().UTC().Truncate(time.Second)
			got, err := st.UpdateSession(ctx, session.ID, chat.SessionPatch{CompletionPercentage: &pct, EndTime: &end})
			if err != nil {
				t.Fatalf("UpdateSession err: %v", err)
			}
			if got.Notes == nil || *got.Notes != notes {
				t.Fatalf("notes lost: %+v", got)
			}
			if got.CompletionPercentage != 40 {
				t.Fatalf("completion = %d", got.CompletionPercentage)
			}
			if got.EndTime == nil || !got.EndTime.Equal(end) {
				t.Fatalf("end time = %v want %v", got.EndTime, end)
			}
		})
	}
}

func TestUpsertProgress(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := st.UpsertProgress(ctx, progress.NewProgress{UserID: 1, SubjectID: 2, TopicID: 3, CompletionPercentage: 10, Metrics: []byte(`{"questionsAsked":1}`)})
			if err != nil {
				t.Fatalf("UpsertProgress err: %v", err)
			}
			second, err := st.UpsertProgress(ctx, progress.NewProgress{UserID: 1, SubjectID: 2, TopicID: 3, CompletionPercentage: 60})
			if err != nil {
				t.Fatalf("UpsertProgress err: %v", err)
			}
			if first.ID != second.ID {
				t.Fatalf("expected same record, got %d and %d", first.ID, second.ID)
			}
			if second.CompletionPercentage != 60 {
				t.Fatalf("completion = %d", second.CompletionPercentage)
			}
			if string(second.Metrics) != `{"questionsAsked":1}` {
				t.Fatalf("metrics should be kept, got %s", second.Metrics)
			}

			all, err := st.ListSubjectProgress(ctx, 1, 2)
			if err != nil {
				t.Fatalf("ListSubjectProgress err: %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("expected 1 record, got %d", len(all))
			}
		})
	}
}

func TestRebind(t *testing.T) {
	got := rebind("UPDATE messages SET audio_url = ? WHERE id = ?")
	if got != "UPDATE messages SET audio_url = $1 WHERE id = $2" {
		t.Fatalf("rebind = %q", got)
	}
}

func TestOpenMemorySeeds(t *testing.T) {
	st, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverMemory, Seed: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if _, err := st.GetUserByUsername(context.Background(), DemoUsername); err != nil {
		t.Fatalf("expected seeded demo user: %v", err)
	}
}
