package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/progress"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/user"
)

// MemoryStore keeps everything in process memory. Data is lost on restart.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	users      map[int64]user.User
	subjects   map[int64]catalog.Subject
	topics     map[int64]catalog.Topic
	sessions   map[int64]chat.Session
	messages   map[int64]chat.Message
	progresses map[int64]progress.Progress
	highlights map[int64]progress.Highlight

	// last issued primary key per table
	pk map[string]int64
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        func() time.Time { return time.Now().UTC() },
		users:      make(map[int64]user.User),
		subjects:   make(map[int64]catalog.Subject),
		topics:     make(map[int64]catalog.Topic),
		sessions:   make(map[int64]chat.Session),
		messages:   make(map[int64]chat.Message),
		progresses: make(map[int64]progress.Progress),
		highlights: make(map[int64]progress.Highlight),
		pk:         make(map[string]int64),
	}
}

func (s *MemoryStore) nextID(table string) int64 {
	s.pk[table]++
	return s.pk[table]
}

func (s *MemoryStore) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return user.User{}, ErrConflict
		}
	}

	u.ID = s.nextID("users")
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, ErrNotFound
}

func (s *MemoryStore) ListSubjects(_ context.Context) ([]catalog.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Subject, 0, len(s.subjects))
	for _, subj := range s.subjects {
		out = append(out, subj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetSubject(_ context.Context, id int64) (catalog.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[id]
	if !ok {
		return catalog.Subject{}, ErrNotFound
	}
	return subj, nil
}

func (s *MemoryStore) CreateSubject(_ context.Context, in catalog.NewSubject) (catalog.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj := catalog.Subject{
		ID:          s.nextID("subjects"),
		Name:        in.Name,
		Icon:        in.Icon,
		Description: in.Description,
		Syllabus:    in.Syllabus,
	}
	s.subjects[subj.ID] = subj
	return subj, nil
}

func (s *MemoryStore) ListTopics(_ context.Context, subjectID int64) ([]catalog.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Topic, 0)
	for _, topic := range s.topics {
		if topic.SubjectID == subjectID {
			out = append(out, topic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetTopic(_ context.Context, id int64) (catalog.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic, ok := s.topics[id]
	if !ok {
		return catalog.Topic{}, ErrNotFound
	}
	return topic, nil
}

func (s *MemoryStore) CreateTopic(_ context.Context, in catalog.NewTopic) (catalog.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[in.SubjectID]; !ok {
		return catalog.Topic{}, ErrNotFound
	}
	topic := catalog.Topic{
		ID:                s.nextID("topics"),
		SubjectID:         in.SubjectID,
		Name:              in.Name,
		Description:       in.Description,
		EstimatedDuration: in.EstimatedDuration,
	}
	s.topics[topic.ID] = topic
	return topic, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, in chat.NewSession) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := chat.Session{
		ID:        s.nextID("sessions"),
		UserID:    in.UserID,
		SubjectID: in.SubjectID,
		TopicID:   in.TopicID,
		StartTime: s.now(),
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id int64) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, id int64, patch chat.SessionPatch) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrNotFound
	}
	session = patch.Apply(session)
	s.sessions[id] = session
	return session, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID int64) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.userSessions(userID)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) RecentSessions(_ context.Context, userID int64, limit int) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.userSessions(userID)
	sortRecent(out)
	if n := recentLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) userSessions(userID int64) []chat.Session {
	out := make([]chat.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	return out
}

func (s *MemoryStore) CreateMessage(_ context.Context, in chat.NewMessage) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[in.SessionID]; !ok {
		return chat.Message{}, ErrNotFound
	}
	msg := chat.Message{
		ID:            s.nextID("messages"),
		SessionID:     in.SessionID,
		Role:          in.Role,
		Content:       in.Content,
		Timestamp:     messageTime(in, s.now()),
		AudioURL:      in.AudioURL,
		AttachmentURL: in.AttachmentURL,
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id int64) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return chat.Message{}, ErrNotFound
	}
	return msg, nil
}

func (s *MemoryStore) SetMessageAudio(_ context.Context, id int64, audioURL *string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return chat.Message{}, ErrNotFound
	}
	msg.AudioURL = audioURL
	s.messages[id] = msg
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, 0)
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *MemoryStore) ListProgress(_ context.Context, userID int64) ([]progress.Progress, error) {
	return s.filterProgress(func(p progress.Progress) bool { return p.UserID == userID }), nil
}

func (s *MemoryStore) ListSubjectProgress(_ context.Context, userID, subjectID int64) ([]progress.Progress, error) {
	return s.filterProgress(func(p progress.Progress) bool {
		return p.UserID == userID && p.SubjectID == subjectID
	}), nil
}

func (s *MemoryStore) filterProgress(keep func(progress.Progress) bool) []progress.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]progress.Progress, 0)
	for _, p := range s.progresses {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) UpsertProgress(_ context.Context, in progress.NewProgress) (progress.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.progresses {
		if existing.UserID == in.UserID && existing.SubjectID == in.SubjectID && existing.TopicID == in.TopicID {
			existing.CompletionPercentage = in.CompletionPercentage
			if len(in.Metrics) > 0 {
				existing.Metrics = append(json.RawMessage(nil), in.Metrics...)
			}
			existing.LastStudied = s.now()
			s.progresses[id] = existing
			return existing, nil
		}
	}

	p := progress.Progress{
		ID:                   s.nextID("progress"),
		UserID:               in.UserID,
		SubjectID:            in.SubjectID,
		TopicID:              in.TopicID,
		CompletionPercentage: in.CompletionPercentage,
		LastStudied:          s.now(),
		Metrics:              append(json.RawMessage(nil), defaultMetrics(in.Metrics)...),
	}
	s.progresses[p.ID] = p
	return p, nil
}

func (s *MemoryStore) CreateHighlight(_ context.Context, in progress.NewHighlight) (progress.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[in.MessageID]; !ok {
		return progress.Highlight{}, ErrNotFound
	}
	h := progress.Highlight{
		ID:        s.nextID("highlights"),
		UserID:    in.UserID,
		SessionID: in.SessionID,
		MessageID: in.MessageID,
		Content:   in.Content,
		Timestamp: s.now(),
	}
	s.highlights[h.ID] = h
	return h, nil
}

func (s *MemoryStore) ListUserHighlights(_ context.Context, userID int64) ([]progress.Highlight, error) {
	return s.filterHighlights(func(h progress.Highlight) bool { return h.UserID == userID }), nil
}

func (s *MemoryStore) ListSessionHighlights(_ context.Context, sessionID int64) ([]progress.Highlight, error) {
	return s.filterHighlights(func(h progress.Highlight) bool { return h.SessionID == sessionID }), nil
}

func (s *MemoryStore) filterHighlights(keep func(progress.Highlight) bool) []progress.Highlight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]progress.Highlight, 0)
	for _, h := range s.highlights {
		if keep(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
