package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// DefaultRecentLimit is used when callers ask for recent sessions without a limit.
const DefaultRecentLimit = 5

// Store persists every tutoring entity. Implementations must be safe for concurrent use.
type Store interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)

	ListSubjects(ctx context.Context) ([]catalog.Subject, error)
	GetSubject(ctx context.Context, id int64) (catalog.Subject, error)
	CreateSubject(ctx context.Context, in catalog.NewSubject) (catalog.Subject, error)
	ListTopics(ctx context.Context, subjectID int64) ([]catalog.Topic, error)
	GetTopic(ctx context.Context, id int64) (catalog.Topic, error)
	CreateTopic(ctx context.Context, in catalog.NewTopic) (catalog.Topic, error)

	CreateSession(ctx context.Context, in chat.NewSession) (chat.Session, error)
	GetSession(ctx context.Context, id int64) (chat.Session, error)
	UpdateSession(ctx context.Context, id int64, patch chat.SessionPatch) (chat.Session, error)
	ListSessions(ctx context.Context, userID int64) ([]chat.Session, error)
	RecentSessions(ctx context.Context, userID int64, limit int) ([]chat.Session, error)

	CreateMessage(ctx context.Context, in chat.NewMessage) (chat.Message, error)
	GetMessage(ctx context.Context, id int64) (chat.Message, error)
	SetMessageAudio(ctx context.Context, id int64, audioURL *string) (chat.Message, error)
	ListMessages(ctx context.Context, sessionID int64) ([]chat.Message, error)

	ListProgress(ctx context.Context, userID int64) ([]progress.Progress, error)
	ListSubjectProgress(ctx context.Context, userID, subjectID int64) ([]progress.Progress, error)
	UpsertProgress(ctx context.Context, in progress.NewProgress) (progress.Progress, error)

	CreateHighlight(ctx context.Context, in progress.NewHighlight) (progress.Highlight, error)
	ListUserHighlights(ctx context.Context, userID int64) ([]progress.Highlight, error)
	ListSessionHighlights(ctx context.Context, sessionID int64) ([]progress.Highlight, error)

	Ping(ctx context.Context) error
	Close() error
}

// sortMessages orders messages oldest first; equal timestamps keep insertion (id) order.
func sortMessages(msgs []chat.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// messageTime is the stored time of a new message: the client's time when it is not in the
// future, the server's otherwise.
func messageTime(in chat.NewMessage, now time.Time) time.Time {
	if in.Timestamp == nil || in.Timestamp.IsZero() || in.Timestamp.After(now) {
		return now
	}
	return in.Timestamp.In(now.Location())
}

// sortRecent orders sessions most recent first.
func sortRecent(sessions []chat.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

func defaultMetrics(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
