package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrTurnNotFound       = errors.New("turn not found")
	ErrNotRetryable       = errors.New("only failed user turns can be retried")
	ErrEventsUnsupported  = errors.New("remote does not push session events")
	errAssistantNotStored = errors.New("assistant reply was not stored")
)

// Option configures a Session.
type Option func(*Session)

// WithPlayer sets the audio player. Without one, playback requests fail with ErrNoPlayer.
func WithPlayer(p Player) Option {
	return func(s *Session) { s.player = p }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithClock overrides the time source used for provisional ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithImmersive sets the initial immersive flag.
func WithImmersive(on bool) Option {
	return func(s *Session) { s.immersive.Store(on) }
}

// Session is the client-side state of one tutoring session: its transcript, its audio
// playback and the submissions in flight. Close releases all of it.
type Session struct {
	id     int64
	remote Remote
	store  *MessageStore
	coord  *Coordinator
	player Player
	logger zerolog.Logger
	now    func() time.Time

	immersive atomic.Bool
	inflight  atomic.Int64

	mu        sync.Mutex
	info      SessionInfo
	lastLocal int64
	failed    map[int64]struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open loads the session and its messages from remote.
func Open(ctx context.Context, remote Remote, sessionID int64, opts ...Option) (*Session, error) {
	s := &Session{
		id:     sessionID,
		remote: remote,
		store:  NewMessageStore(),
		logger: zerolog.Nop(),
		now:    time.Now,
		failed: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Int64("session_id", sessionID).Logger()

	info, err := remote.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	messages, err := remote.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages of session %d: %w", sessionID, err)
	}
	s.info = info
	s.store.ReplaceAll(turnsFromMessages(messages))

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.coord = NewCoordinator(s.player, s.store, s.logger)
	return s, nil
}

func (s *Session) ID() int64 { return s.id }

// Info returns the last known session metadata.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Messages returns the transcript.
func (s *Session) Messages() []ChatTurn {
	return s.store.Snapshot()
}

// Pending is the number of submissions that have not finished.
func (s *Session) Pending() int {
	return int(s.inflight.Load())
}

func (s *Session) SetImmersive(on bool) { s.immersive.Store(on) }

func (s *Session) Immersive() bool { return s.immersive.Load() }

func (s *Session) PlaybackState() (PlaybackState, int64) {
	return s.coord.State()
}

// Submit sends text as the student's next turn with the explanatory prompt (isQuestion=false).
// It returns nil when text is blank. The turn is in the transcript when Submit returns.
func (s *Session) Submit(ctx context.Context, text string) *Submission {
	return s.submit(ctx, text, false)
}

// RaiseHand is Submit with the raised-hand question prompt (isQuestion=true).
func (s *Session) RaiseHand(ctx context.Context, text string) *Submission {
	return s.submit(ctx, text, true)
}

func (s *Session) submit(ctx context.Context, text string, question bool) *Submission {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return finished(ChatTurn{}, ErrClosed)
	}
	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastLocal {
		id = s.lastLocal + 1
	}
	s.lastLocal = id
	turn := ChatTurn{
		ID:          id,
		Provisional: true,
		Role:        RoleUser,
		Content:     content,
		Timestamp:   now,
		Status:      StatusPending,
		Question:    question,
	}
	s.store.Append(turn)
	sub := s.launchLocked(ctx, func(ctx context.Context) (ChatTurn, error) {
		return s.run(ctx, turn)
	})
	s.mu.Unlock()

	return sub
}

// Retry resumes a failed turn. A failed user turn goes through the whole pipeline again;
// a failed assistant turn is only stored again, with its content, audio and timestamp.
func (s *Session) Retry(ctx context.Context, turnID int64) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	turn, ok := s.store.Get(turnID)
	if !ok {
		return nil, ErrTurnNotFound
	}
	if turn.Status != StatusFailed || (turn.Role != RoleUser && turn.Role != RoleAssistant) {
		return nil, ErrNotRetryable
	}
	delete(s.failed, turnID)
	s.store.Update(turnID, func(t *ChatTurn) { t.Status = StatusPending })
	turn.Status = StatusPending

	if turn.Role == RoleAssistant {
		return s.launchLocked(ctx, func(ctx context.Context) (ChatTurn, error) {
			return s.resave(ctx, turn)
		}), nil
	}
	return s.launchLocked(ctx, func(ctx context.Context) (ChatTurn, error) {
		return s.run(ctx, turn)
	}), nil
}

// launchLocked runs fn on its own goroutine. s.mu must be held.
func (s *Session) launchLocked(ctx context.Context, fn func(context.Context) (ChatTurn, error)) *Submission {
	sub := &Submission{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	s.inflight.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(sub.done)
		defer s.inflight.Add(-1)
		defer cancel()
		defer stop()

		sub.reply, sub.err = fn(ctx)
	}()
	return sub
}

// run drives one user turn to an assistant reply.
func (s *Session) run(ctx context.Context, turn ChatTurn) (ChatTurn, error) {
	log := s.logger.With().Int64("turn_id", turn.ID).Logger()

	if turn.Provisional {
		msg, err := s.remote.CreateMessage(ctx, NewMessage{
			SessionID: s.id,
			Role:      RoleUser,
			Content:   turn.Content,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to persist user turn")
			s.markFailed(turn.ID)
			return ChatTurn{}, fmt.Errorf("persist user turn: %w", err)
		}
		s.store.Confirm(turn.ID, msg.ID, func(t *ChatTurn) {
			t.Status = StatusSent
			t.Timestamp = msg.Timestamp
		})
		turn.ID = msg.ID
		turn.Timestamp = msg.Timestamp
		log = s.logger.With().Int64("turn_id", turn.ID).Logger()
	} else {
		s.store.Update(turn.ID, func(t *ChatTurn) { t.Status = StatusSent })
	}

	reply, err := s.remote.SendChat(ctx, s.chatRequest(turn))
	if err != nil {
		log.Error().Err(err).Msg("chat request failed")
		s.markFailed(turn.ID)
		return ChatTurn{}, fmt.Errorf("send chat: %w", err)
	}
	content := reply.Message.Content

	audio, err := s.remote.SynthesizeSpeech(ctx, content)
	if err != nil {
		log.Warn().Err(err).Msg("speech synthesis failed, continuing without audio")
		audio = ""
	}

	assistant := ChatTurn{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: s.now(),
		AudioURL:  audio,
		Status:    StatusSent,
	}
	if reply.ID != nil {
		assistant.ID = *reply.ID
		if audio != "" {
			if _, err := s.remote.AttachAudio(ctx, assistant.ID, audio); err != nil {
				log.Error().Err(err).Int64("message_id", assistant.ID).Msg("failed to attach audio")
				assistant.AudioURL = ""
			}
		}
	} else {
		msg := NewMessage{SessionID: s.id, Role: RoleAssistant, Content: content}
		if audio != "" {
			msg.AudioURL = &audio
		}
		stored, err := s.remote.CreateMessage(ctx, msg)
		if err != nil {
			log.Error().Err(err).Msg("failed to persist assistant turn")
			// 时间戳不早于提问，重新保存时服务端才能按原顺序排列
			if !assistant.Timestamp.After(turn.Timestamp) {
				assistant.Timestamp = turn.Timestamp.Add(time.Millisecond)
			}
			assistant.ID = s.nextLocalID()
			assistant.Provisional = true
			assistant.Status = StatusFailed
			s.store.Append(assistant)
			s.markFailed(assistant.ID)
			return assistant, fmt.Errorf("%w: %w", errAssistantNotStored, err)
		}
		assistant.ID = stored.ID
		assistant.Timestamp = stored.Timestamp
	}

	if err := s.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after reply failed")
		if _, ok := s.store.Get(assistant.ID); !ok {
			s.store.Append(assistant)
		}
	}
	if stored, ok := s.store.Get(assistant.ID); ok {
		assistant = stored
	}

	if s.Immersive() && assistant.HasAudio() {
		// the clip outlives the submission; only Pause, Close or a newer Play stop it
		if err := s.coord.Play(context.WithoutCancel(ctx), assistant.ID, assistant.AudioURL); err != nil {
			log.Warn().Err(err).Msg("autoplay failed")
		}
	}
	return assistant, nil
}

// resave stores a failed assistant turn again, keeping its place in the conversation.
func (s *Session) resave(ctx context.Context, turn ChatTurn) (ChatTurn, error) {
	log := s.logger.With().Int64("turn_id", turn.ID).Logger()

	at := turn.Timestamp
	msg := NewMessage{SessionID: s.id, Role: RoleAssistant, Content: turn.Content, Timestamp: &at}
	if turn.HasAudio() {
		audio := turn.AudioURL
		msg.AudioURL = &audio
	}
	stored, err := s.remote.CreateMessage(ctx, msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist assistant turn")
		s.markFailed(turn.ID)
		turn.Status = StatusFailed
		return turn, fmt.Errorf("%w: %w", errAssistantNotStored, err)
	}

	s.store.Confirm(turn.ID, stored.ID, func(t *ChatTurn) {
		t.Status = StatusSent
		t.Timestamp = stored.Timestamp
	})
	if err := s.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after resave failed")
	}
	if got, ok := s.store.Get(stored.ID); ok {
		return got, nil
	}
	turn.ID, turn.Provisional, turn.Status = stored.ID, false, StatusSent
	return turn, nil
}

// chatRequest carries the transcript up to and including turn. Failed user turns are left
// out; failed assistant turns stay, the student has already read them.
func (s *Session) chatRequest(turn ChatTurn) ChatRequest {
	var history []Turn
	for _, t := range s.store.Snapshot() {
		if t.Status != StatusFailed || t.Role == RoleAssistant {
			history = append(history, Turn{Role: t.Role, Content: t.Content})
		}
		if t.ID == turn.ID {
			break
		}
	}

	req := ChatRequest{Messages: history, IsQuestion: turn.Question}
	id := s.id
	req.SessionID = &id
	if uid := s.Info().UserID; uid > 0 {
		req.UserID = &uid
	}
	return req
}

func (s *Session) nextLocalID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixMilli()
	if id <= s.lastLocal {
		id = s.lastLocal + 1
	}
	s.lastLocal = id
	return id
}

func (s *Session) markFailed(id int64) {
	s.mu.Lock()
	s.failed[id] = struct{}{}
	s.mu.Unlock()
	s.store.Update(id, func(t *ChatTurn) { t.Status = StatusFailed })
}

// Refresh reloads the transcript from the server. Turns the server has not acknowledged stay
// at the end, and failed turns keep their status.
func (s *Session) Refresh(ctx context.Context) error {
	messages, err := s.remote.ListMessages(ctx, s.id)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Merge(turnsFromMessages(messages))
	for id := range s.failed {
		s.store.Update(id, func(t *ChatTurn) { t.Status = StatusFailed })
	}
	return nil
}

// Play voices the given turn, stopping whatever was playing.
func (s *Session) Play(ctx context.Context, turnID int64) error {
	turn, ok := s.store.Get(turnID)
	if !ok {
		return ErrTurnNotFound
	}
	return s.coord.Play(ctx, turn.ID, turn.AudioURL)
}

// Pause stops playback. It is a no-op when nothing plays.
func (s *Session) Pause() {
	s.coord.Pause()
}

// UpdateSession patches the session metadata on the server.
func (s *Session) UpdateSession(ctx context.Context, patch SessionPatch) (SessionInfo, error) {
	info, err := s.remote.UpdateSession(ctx, s.id, patch)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("update session: %w", err)
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	return info, nil
}

// Watch follows server-pushed events until ctx ends, the session closes or the feed drops.
func (s *Session) Watch(ctx context.Context) error {
	source, ok := s.remote.(EventSource)
	if !ok {
		return ErrEventsUnsupported
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	events, err := source.Subscribe(ctx, s.id)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventMessageCreated, EventMessageUpdated:
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Str("event", ev.Type).Msg("refresh on event failed")
		}
	case EventSessionUpdated:
		info, err := s.remote.GetSession(ctx, s.id)
		if err != nil {
			s.logger.Warn().Err(err).Msg("reload session failed")
			return
		}
		s.mu.Lock()
		s.info = info
		s.mu.Unlock()
	}
}

// Close cancels in-flight submissions, waits for them and stops playback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.coord.Close()
}

// Submission is a turn being processed.
type Submission struct {
	done  chan struct{}
	reply ChatTurn
	err   error
}

func finished(reply ChatTurn, err error) *Submission {
	sub := &Submission{done: make(chan struct{}), reply: reply, err: err}
	close(sub.done)
	return sub
}

// Done is closed when the submission finished.
func (sub *Submission) Done() <-chan struct{} {
	return sub.done
}

// Wait returns the assistant turn or the error that ended the submission.
// A nil Submission (blank input) returns immediately.
func (sub *Submission) Wait(ctx context.Context) (ChatTurn, error) {
	if sub == nil {
		return ChatTurn{}, nil
	}
	select {
	case <-sub.done:
		return sub.reply, sub.err
	case <-ctx.Done():
		return ChatTurn{}, ctx.Err()
	}
}

func turnsFromMessages(messages []ServerMessage) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, turnFromMessage(m))
	}
	return turns
}
