package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/metrics"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/catalog"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

// Publisher receives session change notifications.
type Publisher interface {
	Publish(evt chat.Event)
}

// Service manages tutoring sessions and their transcripts.
type Service struct {
	store  store.Store
	events Publisher
	now    func() time.Time
}

// NewService wires the chat service to its store. events may be nil.
func NewService(st store.Store, events Publisher) *Service {
	return &Service{
		store:  st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession starts a new tutoring session.
func (s *Service) CreateSession(ctx context.Context, in chat.NewSession) (chat.Session, error) {
	session, err := s.store.CreateSession(ctx, in)
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	log.Info().Int64("session_id", session.ID).Int64("user_id", in.UserID).Int64("topic_id", in.TopicID).Msg("session started")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, id int64) (chat.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return chat.Session{}, s.translate(err, ErrSessionNotFound)
	}
	return session, nil
}

// UpdateSession applies a partial update and notifies subscribers.
func (s *Service) UpdateSession(ctx context.Context, id int64, patch chat.SessionPatch) (chat.Session, error) {
	session, err := s.store.UpdateSession(ctx, id, patch)
	if err != nil {
		return chat.Session{}, s.translate(err, ErrSessionNotFound)
	}
	s.publish(chat.EventSessionUpdated, session.ID, 0)
	return session, nil
}

// ListSessions returns every session of a user.
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]chat.Session, error) {
	return s.store.ListSessions(ctx, userID)
}

// RecentSessions returns the newest sessions of a user, newest first.
func (s *Service) RecentSessions(ctx context.Context, userID int64, limit int) ([]chat.Session, error) {
	return s.store.RecentSessions(ctx, userID, limit)
}

// SaveMessage appends a message to the session transcript.
func (s *Service) SaveMessage(ctx context.Context, in chat.NewMessage) (chat.Message, error) {
	msg, err := s.store.CreateMessage(ctx, in)
	if err != nil {
		return chat.Message{}, s.translate(err, ErrSessionNotFound)
	}
	metrics.MessagesStored.WithLabelValues(msg.Role).Inc()
	s.publish(chat.EventMessageCreated, msg.SessionID, msg.ID)
	return msg, nil
}

// AttachAudio sets (or clears) the audio clip of an existing message.
func (s *Service) AttachAudio(ctx context.Context, messageID int64, audioURL *string) (chat.Message, error) {
	msg, err := s.store.SetMessageAudio(ctx, messageID, audioURL)
	if err != nil {
		return chat.Message{}, s.translate(err, ErrMessageNotFound)
	}
	s.publish(chat.EventMessageUpdated, msg.SessionID, msg.ID)
	return msg, nil
}

// LoadTranscript returns stored messages for the session, oldest first.
func (s *Service) LoadTranscript(ctx context.Context, sessionID int64) ([]chat.Message, error) {
	return s.store.ListMessages(ctx, sessionID)
}

// SessionTopic resolves the subject and topic a session is about.
func (s *Service) SessionTopic(ctx context.Context, sessionID int64) (catalog.Subject, catalog.Topic, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return catalog.Subject{}, catalog.Topic{}, err
	}
	subject, err := s.store.GetSubject(ctx, session.SubjectID)
	if err != nil {
		return catalog.Subject{}, catalog.Topic{}, fmt.Errorf("load subject %d: %w", session.SubjectID, err)
	}
	topic, err := s.store.GetTopic(ctx, session.TopicID)
	if err != nil {
		return catalog.Subject{}, catalog.Topic{}, fmt.Errorf("load topic %d: %w", session.TopicID, err)
	}
	return subject, topic, nil
}

func (s *Service) publish(kind string, sessionID, messageID int64) {
	if s.events == nil {
		return
	}
	s.events.Publish(chat.Event{Type: kind, SessionID: sessionID, MessageID: messageID, At: s.now()})
}

func (s *Service) translate(err, notFound error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return err
}
