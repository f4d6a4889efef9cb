package store

import (
	"context"
	"time"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
)

// rowScanner is satisfied by both *sql.Row(s) and pgx.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

type rowIterator interface {
	rowScanner
	Next() bool
	Err() error
	Close()
}

// conn hides the driver differences between database/sql and pgxpool. Queries are written
// with '?' placeholders and rebound by the driver adapter.
type conn interface {
	queryRow(ctx context.Context, query string, args ...any) rowScanner
	query(ctx context.Context, query string, args ...any) (rowIterator, error)
	exec(ctx context.Context, query string, args ...any) (int64, error)
	// insert runs an INSERT and returns the generated id.
	insert(ctx context.Context, query string, args ...any) (int64, error)
	// translate maps driver errors to ErrNotFound / ErrConflict.
	translate(err error) error
	ping(ctx context.Context) error
	close() error
}

// sqlStore implements Store on top of a relational database.
type sqlStore struct {
	db  conn
	now func() time.Time
}

const (
	userColumns      = "id, username, password, name, grade, section, created_at"
	subjectColumns   = "id, name, icon, description, syllabus"
	topicColumns     = "id, subject_id, name, description, estimated_duration"
	sessionColumns   = "id, user_id, subject_id, topic_id, start_time, end_time, duration, completion_percentage, notes"
	messageColumns   = "id, session_id, role, content, timestamp, audio_url, attachment_url"
	progressColumns  = "id, user_id, subject_id, topic_id, completion_percentage, last_studied, metrics"
	highlightColumns = "id, user_id, session_id, message_id, content, timestamp"
)

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	var hash string
	err := row.Scan(&u.ID, &u.Username, &hash, &u.Name, &u.Grade, &u.Section, &u.CreatedAt)
	u.PasswordHash = []byte(hash)
	return u, err
}

func scanSubject(row rowScanner) (catalog.Subject, error) {
	var s catalog.Subject
	err := row.Scan(&s.ID, &s.Name, &s.Icon, &s.Description, &s.Syllabus)
	return s, err
}

func scanTopic(row rowScanner) (catalog.Topic, error) {
	var t catalog.Topic
	err := row.Scan(&t.ID, &t.SubjectID, &t.Name, &t.Description, &t.EstimatedDuration)
	return t, err
}

func scanSession(row rowScanner) (chat.Session, error) {
	var s chat.Session
	err := row.Scan(&s.ID, &s.UserID, &s.SubjectID, &s.TopicID, &s.StartTime, &s.EndTime, &s.Duration, &s.CompletionPercentage, &s.Notes)
	return s, err
}

func scanMessage(row rowScanner) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp, &m.AudioURL, &m.AttachmentURL)
	return m, err
}

func scanProgress(row rowScanner) (progress.Progress, error) {
	var p progress.Progress
	var metrics []byte
	err := row.Scan(&p.ID, &p.UserID, &p.SubjectID, &p.TopicID, &p.CompletionPercentage, &p.LastStudied, &metrics)
	p.Metrics = defaultMetrics(metrics)
	return p, err
}

func scanHighlight(row rowScanner) (progress.Highlight, error) {
	var h progress.Highlight
	err := row.Scan(&h.ID, &h.UserID, &h.SessionID, &h.MessageID, &h.Content, &h.Timestamp)
	return h, err
}

// one runs a single-row query and translates driver errors.
func one[T any](s *sqlStore, ctx context.Context, scan func(rowScanner) (T, error), query string, args ...any) (T, error) {
	v, err := scan(s.db.queryRow(ctx, query, args...))
	if err != nil {
		var zero T
		return zero, s.db.translate(err)
	}
	return v, nil
}

// many runs a multi-row query and collects every row.
func many[T any](s *sqlStore, ctx context.Context, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, s.db.translate(err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, s.db.translate(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.db.translate(err)
	}
	return out, nil
}

func (s *sqlStore) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	id, err := s.db.insert(ctx, `
		INSERT INTO users (username, password, name, grade, section, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, string(u.PasswordHash), u.Name, u.Grade, u.Section, s.now())
	if err != nil {
		return user.User{}, s.db.translate(err)
	}
	return s.GetUser(ctx, id)
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (user.User, error) {
	return one(s, ctx, scanUser, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *sqlStore) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return one(s, ctx, scanUser, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *sqlStore) ListSubjects(ctx context.Context) ([]catalog.Subject, error) {
	return many(s, ctx, scanSubject, `SELECT `+subjectColumns+` FROM subjects ORDER BY id`)
}

func (s *sqlStore) GetSubject(ctx context.Context, id int64) (catalog.Subject, error) {
	return one(s, ctx, scanSubject, `SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id)
}

func (s *sqlStore) CreateSubject(ctx context.Context, in catalog.NewSubject) (catalog.Subject, error) {
	id, err := s.db.insert(ctx, `
		INSERT INTO subjects (name, icon, description, syllabus)
		VALUES (?, ?, ?, ?)`,
		in.Name, in.Icon, in.Description, in.Syllabus)
	if err != nil {
		return catalog.Subject{}, s.db.translate(err)
	}
	return s.GetSubject(ctx, id)
}

func (s *sqlStore) ListTopics(ctx context.Context, subjectID int64) ([]catalog.Topic, error) {
	return many(s, ctx, scanTopic, `SELECT `+topicColumns+` FROM topics WHERE subject_id = ? ORDER BY id`, subjectID)
}

func (s *sqlStore) GetTopic(ctx context.Context, id int64) (catalog.Topic, error) {
	return one(s, ctx, scanTopic, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
}

func (s *sqlStore) CreateTopic(ctx context.Context, in catalog.NewTopic) (catalog.Topic, error) {
	if _, err := s.GetSubject(ctx, in.SubjectID); err != nil {
		return catalog.Topic{}, err
	}
	id, err := s.db.insert(ctx, `
		INSERT INTO topics (subject_id, name, description, estimated_duration)
		VALUES (?, ?, ?, ?)`,
		in.SubjectID, in.Name, in.Description, in.EstimatedDuration)
	if err != nil {
		return catalog.Topic{}, s.db.translate(err)
	}
	return s.GetTopic(ctx, id)
}

func (s *sqlStore) CreateSession(ctx context.Context, in chat.NewSession) (chat.Session, error) {
	id, err := s.db.insert(ctx, `
		INSERT INTO sessions (user_id, subject_id, topic_id, start_time, completion_percentage)
		VALUES (?, ?, ?, ?, 0)`,
		in.UserID, in.SubjectID, in.TopicID, s.now())
	if err != nil {
		return chat.Session{}, s.db.translate(err)
	}
	return s.GetSession(ctx, id)
}

func (s *sqlStore) GetSession(ctx context.Context, id int64) (chat.Session, error) {
	return one(s, ctx, scanSession, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
}

func (s *sqlStore) UpdateSession(ctx context.Context, id int64, patch chat.SessionPatch) (chat.Session, error) {
	current, err := s.GetSession(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}
	if patch.Empty() {
		return current, nil
	}

	next := patch.Apply(current)
	if _, err := s.db.exec(ctx, `
		UPDATE sessions SET end_time = ?, duration = ?, completion_percentage = ?, notes = ?
		WHERE id = ?`,
		next.EndTime, next.Duration, next.CompletionPercentage, next.Notes, id); err != nil {
		return chat.Session{}, s.db.translate(err)
	}
	return s.GetSession(ctx, id)
}

func (s *sqlStore) ListSessions(ctx context.Context, userID int64) ([]chat.Session, error) {
	return many(s, ctx, scanSession, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY id`, userID)
}

func (s *sqlStore) RecentSessions(ctx context.Context, userID int64, limit int) ([]chat.Session, error) {
	return many(s, ctx, scanSession, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?`,
		userID, recentLimit(limit))
}

func (s *sqlStore) CreateMessage(ctx context.Context, in chat.NewMessage) (chat.Message, error) {
	if _, err := s.GetSession(ctx, in.SessionID); err != nil {
		return chat.Message{}, err
	}
	id, err := s.db.insert(ctx, `
		INSERT INTO messages (session_id, role, content, timestamp, audio_url, attachment_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.SessionID, in.Role, in.Content, messageTime(in, s.now()), in.AudioURL, in.AttachmentURL)
	if err != nil {
		return chat.Message{}, s.db.translate(err)
	}
	return s.GetMessage(ctx, id)
}

func (s *sqlStore) GetMessage(ctx context.Context, id int64) (chat.Message, error) {
	return one(s, ctx, scanMessage, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
}

func (s *sqlStore) SetMessageAudio(ctx context.Context, id int64, audioURL *string) (chat.Message, error) {
	affected, err := s.db.exec(ctx, `UPDATE messages SET audio_url = ? WHERE id = ?`, audioURL, id)
	if err != nil {
		return chat.Message{}, s.db.translate(err)
	}
	if affected == 0 {
		return chat.Message{}, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

func (s *sqlStore) ListMessages(ctx context.Context, sessionID int64) ([]chat.Message, error) {
	msgs, err := many(s, ctx, scanMessage, `SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY timestamp, id`, sessionID)
	if err != nil {
		return nil, err
	}
	// sqlite compares timestamps as text
	sortMessages(msgs)
	return msgs, nil
}

func (s *sqlStore) ListProgress(ctx context.Context, userID int64) ([]progress.Progress, error) {
	return many(s, ctx, scanProgress, `SELECT `+progressColumns+` FROM progress WHERE user_id = ? ORDER BY id`, userID)
}

func (s *sqlStore) ListSubjectProgress(ctx context.Context, userID, subjectID int64) ([]progress.Progress, error) {
	return many(s, ctx, scanProgress, `SELECT `+progressColumns+` FROM progress WHERE user_id = ? AND subject_id = ? ORDER BY id`, userID, subjectID)
}

func (s *sqlStore) UpsertProgress(ctx context.Context, in progress.NewProgress) (progress.Progress, error) {
	replaceMetrics := len(in.Metrics) > 0
	if _, err := s.db.exec(ctx, `
		INSERT INTO progress (user_id, subject_id, topic_id, completion_percentage, last_studied, metrics)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, subject_id, topic_id) DO UPDATE SET
			completion_percentage = excluded.completion_percentage,
			last_studied = excluded.last_studied,
			metrics = CASE WHEN ? THEN excluded.metrics ELSE progress.metrics END`,
		in.UserID, in.SubjectID, in.TopicID, in.CompletionPercentage, s.now(), string(defaultMetrics(in.Metrics)), replaceMetrics); err != nil {
		return progress.Progress{}, s.db.translate(err)
	}
	return one(s, ctx, scanProgress, `
		SELECT `+progressColumns+` FROM progress
		WHERE user_id = ? AND subject_id = ? AND topic_id = ?`,
		in.UserID, in.SubjectID, in.TopicID)
}

func (s *sqlStore) CreateHighlight(ctx context.Context, in progress.NewHighlight) (progress.Highlight, error) {
	if _, err := s.GetMessage(ctx, in.MessageID); err != nil {
		return progress.Highlight{}, err
	}
	id, err := s.db.insert(ctx, `
		INSERT INTO highlights (user_id, session_id, message_id, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		in.UserID, in.SessionID, in.MessageID, in.Content, s.now())
	if err != nil {
		return progress.Highlight{}, s.db.translate(err)
	}
	return s.getHighlight(ctx, id)
}

func (s *sqlStore) ListUserHighlights(ctx context.Context, userID int64) ([]progress.Highlight, error) {
	return many(s, ctx, scanHighlight, `SELECT `+highlightColumns+` FROM highlights WHERE user_id = ? ORDER BY id`, userID)
}

func (s *sqlStore) ListSessionHighlights(ctx context.Context, sessionID int64) ([]progress.Highlight, error) {
	return many(s, ctx, scanHighlight, `SELECT `+highlightColumns+` FROM highlights WHERE session_id = ? ORDER BY id`, sessionID)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.ping(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.close()
}

// getHighlight backs CreateHighlight.
func (s *sqlStore) getHighlight(ctx context.Context, id int64) (progress.Highlight, error) {
	return one(s, ctx, scanHighlight, `SELECT `+highlightColumns+` FROM highlights WHERE id = ?`, id)
}
