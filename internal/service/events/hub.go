package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/smart-tutor/backend/internal/metrics"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
)

const defaultBuffer = 16

// Subscription is one listener on a session's event feed.
type Subscription struct {
	ID        string
	SessionID int64
	Events    <-chan chat.Event

	ch   chan chat.Event
	once sync.Once
}

// Hub fans session events out to subscribers (websocket connections).
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[string]*Subscription
	buffer int
}

// NewHub 创建事件中心
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[int64]map[string]*Subscription),
		buffer: defaultBuffer,
	}
}

// Subscribe registers a listener for sessionID. Call Unsubscribe when done.
func (h *Hub) Subscribe(sessionID int64) *Subscription {
	ch := make(chan chat.Event, h.buffer)
	sub := &Subscription{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Events:    ch,
		ch:        ch,
	}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[string]*Subscription)
	}
	h.subs[sessionID][sub.ID] = sub
	h.mu.Unlock()

	metrics.EventSubscribers.Inc()
	return sub
}

// Unsubscribe removes the listener and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.subs[sub.SessionID]; ok {
		if _, exists := subs[sub.ID]; exists {
			delete(subs, sub.ID)
			metrics.EventSubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(h.subs, sub.SessionID)
		}
	}
	h.mu.Unlock()

	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers evt to every subscriber of its session without blocking. A subscriber
// whose buffer is full misses the event; clients refetch on the next one anyway.
func (h *Hub) Publish(evt chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[evt.SessionID] {
		select {
		case sub.ch <- evt:
		default:
			log.Warn().Str("subscriber", sub.ID).Int64("session_id", evt.SessionID).Str("type", evt.Type).Msg("event dropped, subscriber too slow")
		}
	}
}

// Count returns the number of subscribers of sessionID.
func (h *Hub) Count(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// CloseAll 关闭所有订阅
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[int64]map[string]*Subscription)
	h.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			metrics.EventSubscribers.Dec()
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}
