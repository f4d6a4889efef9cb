package session

import "sync"

// MessageStore is the ordered transcript of a session. Turns are never removed; Confirm only
// collapses a provisional turn into its server copy.
//
// The id of the playing turn is held once, so at most one turn reports IsPlaying and the
// flag survives wholesale replacement of the list.
type MessageStore struct {
	mu        sync.RWMutex
	turns     []ChatTurn
	playingID int64
	playing   bool
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Append adds turn at the end.
func (s *MessageStore) Append(turn ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.IsPlaying = false
	s.turns = append(s.turns, turn)
}

// ReplaceAll swaps the whole list, keeping the given order.
func (s *MessageStore) ReplaceAll(turns []ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = cloneTurns(turns)
}

// Merge replaces the list with server and keeps the local turns server does not contain.
// New user turns still waiting for the server go to the end in their current order; any other
// local turn (failed, or an assistant turn being stored again) stays right after the turn it
// followed.
func (s *MessageStore) Merge(server []ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[int64]struct{}, len(server))
	for _, t := range server {
		known[t.ID] = struct{}{}
	}

	var (
		head    []ChatTurn // failed turns before any server turn
		pending []ChatTurn
		anchor  int64
		placed  bool
	)
	after := make(map[int64][]ChatTurn)
	for _, t := range s.turns {
		if _, ok := known[t.ID]; ok {
			anchor, placed = t.ID, true
			continue
		}
		switch {
		case t.Status != StatusFailed && t.Role == RoleUser:
			pending = append(pending, t)
		case placed:
			after[anchor] = append(after[anchor], t)
		default:
			head = append(head, t)
		}
	}

	merged := make([]ChatTurn, 0, len(server)+len(head)+len(pending))
	merged = append(merged, head...)
	for _, t := range server {
		merged = append(merged, t)
		merged = append(merged, after[t.ID]...)
	}
	merged = append(merged, pending...)
	s.turns = cloneTurns(merged)
}

// Confirm gives the provisional turn localID its server id and applies fn. When a refresh
// already brought in the server copy, the provisional entry is folded into it.
func (s *MessageStore) Confirm(localID, serverID int64, fn func(*ChatTurn)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, server := -1, -1
	for i := range s.turns {
		switch s.turns[i].ID {
		case localID:
			local = i
		case serverID:
			server = i
		}
	}
	if local < 0 {
		return false
	}
	if server >= 0 {
		fn(&s.turns[server])
		s.turns = append(s.turns[:local], s.turns[local+1:]...)
		return true
	}
	s.turns[local].ID = serverID
	s.turns[local].Provisional = false
	fn(&s.turns[local])
	return true
}

// Get returns the turn with the given id.
func (s *MessageStore) Get(id int64) (ChatTurn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.turns {
		if t.ID == id {
			return s.decorate(t), true
		}
	}
	return ChatTurn{}, false
}

// Last returns the most recently appended turn.
func (s *MessageStore) Last() (ChatTurn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return ChatTurn{}, false
	}
	return s.decorate(s.turns[len(s.turns)-1]), true
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Snapshot returns a copy of the transcript with IsPlaying filled in.
func (s *MessageStore) Snapshot() []ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatTurn, len(s.turns))
	for i, t := range s.turns {
		out[i] = s.decorate(t)
	}
	return out
}

// SetPlaying marks id as the voiced turn. Only the playback coordinator calls it.
func (s *MessageStore) SetPlaying(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playingID = id
	s.playing = true
}

// ClearPlaying clears the voiced turn. Only the playback coordinator calls it.
func (s *MessageStore) ClearPlaying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playingID = 0
	s.playing = false
}

// PlayingID returns the voiced turn, if any.
func (s *MessageStore) PlayingID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playingID, s.playing
}

func (s *MessageStore) decorate(t ChatTurn) ChatTurn {
	t.IsPlaying = s.playing && t.ID == s.playingID
	return t
}

func cloneTurns(turns []ChatTurn) []ChatTurn {
	out := make([]ChatTurn, len(turns))
	copy(out, turns)
	for i := range out {
		out[i].IsPlaying = false
	}
	return out
}
