// Package timeline holds the ordered message log of the selected session.
//
// Display order is insertion order. Nothing is ever re-sorted by timestamp,
// so network reordering shows up as-is.
package timeline

import (
	"sync"

	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

// RedactedBody replaces the body of a tombstoned message.
const RedactedBody = "This message was deleted"

type Timeline struct {
	mu        sync.RWMutex
	sessionID string
	messages  []chat.Message
	index     map[string]int
	loads     int
}

func New() *Timeline {
	return &Timeline{index: make(map[string]int)}
}

// Load replaces the timeline with a fetched history for sessionID.
// Server order becomes the baseline; repeated ids keep their first slot.
func (t *Timeline) Load(sessionID string, history []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessionID = sessionID
	t.messages = make([]chat.Message, 0, len(history))
	t.index = make(map[string]int, len(history))
	t.loads++
	for _, m := range history {
		t.appendLocked(m)
	}
}

// Reset switches to sessionID with an empty log, discarding the previous one.
func (t *Timeline) Reset(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = sessionID
	t.messages = nil
	t.index = make(map[string]int)
}

// Clear drops the active timeline entirely.
func (t *Timeline) Clear() {
	t.Reset("")
}

// Append adds m at the tail unless an entry with the same id exists.
// The same message may arrive both as a targeted and as a room broadcast.
func (t *Timeline) Append(m chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(m)
}

func (t *Timeline) appendLocked(m chat.Message) bool {
	if m.IsDeleted {
		m.Body = RedactedBody
	}
	if m.ID != "" {
		if _, dup := t.index[m.ID]; dup {
			return false
		}
		t.index[m.ID] = len(t.messages)
	}
	t.messages = append(t.messages, m)
	return true
}

// Tombstone marks the message deleted in place and redacts its body.
func (t *Timeline) Tombstone(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[messageID]
	if !ok {
		return false
	}
	t.messages[i].IsDeleted = true
	t.messages[i].Body = RedactedBody
	return true
}

func (t *Timeline) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}

// Messages returns a copy in display order.
func (t *Timeline) Messages() []chat.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]chat.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// IndexOf returns the display position of messageID, or -1.
func (t *Timeline) IndexOf(messageID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.index[messageID]; ok {
		return i
	}
	return -1
}

// Loads counts how many histories have been loaded since creation.
func (t *Timeline) Loads() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loads
}
