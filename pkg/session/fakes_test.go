package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeRemote struct {
	mu       sync.Mutex
	info     SessionInfo
	messages []ServerMessage
	nextID   int64

	creates []NewMessage
	patches map[int64]string
	chats   []ChatRequest
	speech  []string

	chatFn    func(ChatRequest) (ChatReply, error)
	speechErr error
	audioURL  string
	createErr func(NewMessage) error
	listErr   error
	events    chan Event
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		info:     SessionInfo{ID: 7, UserID: 3, SubjectID: 1, TopicID: 2},
		nextID:   100,
		patches:  make(map[int64]string),
		audioURL: "/audio/x.mp3",
		chatFn: func(req ChatRequest) (ChatReply, error) {
			last := req.Messages[len(req.Messages)-1]
			return ChatReply{Message: Turn{Role: RoleAssistant, Content: "Echo: " + last.Content}}, nil
		},
	}
}

func (f *fakeRemote) GetSession(_ context.Context, id int64) (SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.info.ID {
		return SessionInfo{}, errors.New("session not found")
	}
	return f.info, nil
}

func (f *fakeRemote) UpdateSession(_ context.Context, _ int64, patch SessionPatch) (SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = patch.Apply(f.info)
	return f.info, nil
}

func (f *fakeRemote) ListMessages(context.Context, int64) ([]ServerMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := append([]ServerMessage(nil), f.messages...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (f *fakeRemote) CreateMessage(_ context.Context, msg NewMessage) (ServerMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if err := f.createErr(msg); err != nil {
			return ServerMessage{}, err
		}
	}
	f.creates = append(f.creates, msg)
	m := f.storeLocked(msg.Role, msg.Content, msg.AudioURL)
	if msg.Timestamp != nil {
		m.Timestamp = *msg.Timestamp
		f.messages[len(f.messages)-1] = m
	}
	return m, nil
}

func (f *fakeRemote) storeLocked(role, content string, audio *string) ServerMessage {
	f.nextID++
	m := ServerMessage{
		ID:        f.nextID,
		SessionID: f.info.ID,
		Role:      role,
		Content:   content,
		Timestamp: time.Unix(f.nextID, 0),
		AudioURL:  audio,
	}
	f.messages = append(f.messages, m)
	return m
}

func (f *fakeRemote) AttachAudio(_ context.Context, id int64, audioURL string) (ServerMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[id] = audioURL
	for i := range f.messages {
		if f.messages[i].ID == id {
			url := audioURL
			f.messages[i].AudioURL = &url
			return f.messages[i], nil
		}
	}
	return ServerMessage{}, errors.New("message not found")
}

func (f *fakeRemote) SendChat(_ context.Context, req ChatRequest) (ChatReply, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	fn := f.chatFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeRemote) SynthesizeSpeech(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speech = append(f.speech, text)
	if f.speechErr != nil {
		return "", f.speechErr
	}
	return f.audioURL, nil
}

// storedReply makes the fake answer like a server that persists the assistant row itself.
func (f *fakeRemote) storedReply(req ChatRequest) (ChatReply, error) {
	last := req.Messages[len(req.Messages)-1]
	f.mu.Lock()
	m := f.storeLocked(RoleAssistant, "Echo: "+last.Content, nil)
	f.mu.Unlock()
	id := m.ID
	return ChatReply{Message: Turn{Role: RoleAssistant, Content: m.Content}, ID: &id}, nil
}

func (f *fakeRemote) assistantCreates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.creates {
		if c.Role == RoleAssistant {
			n++
		}
	}
	return n
}

type eventRemote struct {
	*fakeRemote
}

func (e eventRemote) Subscribe(ctx context.Context, _ int64) (<-chan Event, error) {
	return e.events, nil
}

type fakeHandle struct {
	resource string
	startErr error
	gate     chan struct{}
	ctxBound bool // ends when Start's ctx is cancelled

	mu      sync.Mutex
	stopped int
	done    chan struct{}
	once    sync.Once
}

func (h *fakeHandle) Start(ctx context.Context) error {
	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.startErr != nil {
		return h.startErr
	}
	if h.ctxBound {
		go func() {
			select {
			case <-ctx.Done():
				h.finish()
			case <-h.done:
			}
		}()
	}
	return nil
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stopped++
	h.mu.Unlock()
	h.finish()
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

// finish simulates the clip reaching its end.
func (h *fakeHandle) finish() {
	h.once.Do(func() { close(h.done) })
}

func (h *fakeHandle) stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakePlayer struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	startErr error
	gates    map[string]chan struct{}
	ctxBound bool
}

func (p *fakePlayer) Load(_ context.Context, resource string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &fakeHandle{resource: resource, startErr: p.startErr, ctxBound: p.ctxBound, done: make(chan struct{})}
	if p.gates != nil {
		h.gate = p.gates[resource]
	}
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePlayer) loaded() []*fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeHandle(nil), p.handles...)
}

func playingTurns(turns []ChatTurn) []int64 {
	var ids []int64
	for _, t := range turns {
		if t.IsPlaying {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
