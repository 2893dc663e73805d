// Package directory holds the in-memory collection of session summaries
// shown in the operator's session list.
package directory

import (
	"strings"
	"sync"
	"time"

	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

// Patch is a shallow update applied to an existing session.
// Nil fields are left untouched.
type Patch struct {
	LastActivity *time.Time
	UnreadDelta  int
	Preview      *string
	IsOnline     *bool
	Escalated    *bool
}

// Directory keeps snapshot order; new sessions from events go to the head.
// At most one entry exists per session id.
type Directory struct {
	mu       sync.RWMutex
	sessions []chat.Session
}

func New() *Directory {
	return &Directory{}
}

// Replace swaps the whole collection for a fresh snapshot, keeping the
// source order. Repeated ids keep their first occurrence.
func (d *Directory) Replace(sessions []chat.Session) {
	out := make([]chat.Session, 0, len(sessions))
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		if s.UnreadCount < 0 {
			s.UnreadCount = 0
		}
		out = append(out, s)
	}

	d.mu.Lock()
	d.sessions = out
	d.mu.Unlock()
}

// UpsertFromEvent merges p into the session with the given id. When the id is
// unknown a new session is built from meta (or from the id alone) and inserted
// at the head. It reports whether an insert happened.
func (d *Directory) UpsertFromEvent(id string, p Patch, meta *chat.Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i := d.indexOf(id); i >= 0 {
		s := &d.sessions[i]
		if meta != nil {
			s.IsOnline = meta.IsOnline
			s.Escalated = meta.Escalated
		}
		apply(s, p)
		return false
	}

	s := chat.Session{ID: id}
	if meta != nil {
		s = *meta
		s.ID = id
	}
	apply(&s, p)
	d.sessions = append([]chat.Session{s}, d.sessions...)
	return true
}

func apply(s *chat.Session, p Patch) {
	if p.LastActivity != nil {
		s.LastActivity = *p.LastActivity
	}
	if p.Preview != nil {
		s.LastMessagePreview = *p.Preview
	}
	if p.IsOnline != nil {
		s.IsOnline = *p.IsOnline
	}
	if p.Escalated != nil {
		s.Escalated = *p.Escalated
	}
	s.UnreadCount += p.UnreadDelta
	if s.UnreadCount < 0 {
		s.UnreadCount = 0
	}
}

// MarkRead zeroes the unread counter of one session.
func (d *Directory) MarkRead(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.indexOf(id); i >= 0 {
		d.sessions[i].UnreadCount = 0
	}
}

// Remove drops the session and reports whether it was present.
func (d *Directory) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return false
	}
	d.sessions = append(d.sessions[:i:i], d.sessions[i+1:]...)
	return true
}

func (d *Directory) Get(id string) (chat.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexOf(id); i >= 0 {
		return d.sessions[i], true
	}
	return chat.Session{}, false
}

// List returns a copy of the collection in display order.
func (d *Directory) List() []chat.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]chat.Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Search matches query case-insensitively against the external connection id
// and the owner user id only. An empty query returns everything.
func (d *Directory) Search(query string) []chat.Session {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return d.List()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []chat.Session
	for _, s := range d.sessions {
		if strings.Contains(strings.ToLower(s.ExternalConnectionID), q) {
			out = append(out, s)
			continue
		}
		if s.OwnerUserID != nil && strings.Contains(strings.ToLower(*s.OwnerUserID), q) {
			out = append(out, s)
		}
	}
	return out
}

func (d *Directory) indexOf(id string) int {
	for i := range d.sessions {
		if d.sessions[i].ID == id {
			return i
		}
	}
	return -1
}
