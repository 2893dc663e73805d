// Package notify turns inbound messages into audible and desktop alerts and
// keeps the per-session unread counters behind the global indicator.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

const (
	defaultBodyLimit = 100
	alertTitle       = "New chat message"
	sideEffectTTL    = 5 * time.Second
)

type Options struct {
	// Player plays the audio cue. Nil disables sound.
	Player    Player
	Desktop   Desktop
	Mirror    Mirror
	Sinks     []Sink
	BodyLimit int
	Logger    *slog.Logger
}

// Coordinator starts Locked: no sound is played until Unlock, which models
// the first operator gesture. The transition is one-way.
type Coordinator struct {
	player    Player
	desktop   Desktop
	mirror    Mirror
	sinks     []Sink
	bodyLimit int
	log       *slog.Logger

	cueOnce sync.Once
	cue     []byte

	unlocked atomic.Bool

	mu         sync.RWMutex
	unread     map[string]int
	permission Permission

	mirrorMu sync.Mutex
	wg       sync.WaitGroup
}

func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.BodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	return &Coordinator{
		player:     opts.Player,
		desktop:    opts.Desktop,
		mirror:     opts.Mirror,
		sinks:      opts.Sinks,
		bodyLimit:  limit,
		log:        logger.With("component", "notify"),
		unread:     make(map[string]int),
		permission: PermissionDefault,
	}
}

// RequestPermission asks once for desktop notification permission.
// A failed request leaves the permission at default.
func (c *Coordinator) RequestPermission(ctx context.Context, r Requester) Permission {
	p := PermissionDefault
	if r != nil {
		got, err := r.RequestPermission(ctx)
		if err != nil {
			c.log.Warn("notification permission request failed", slog.Any("error", err))
		} else {
			p = got
		}
	}

	c.mu.Lock()
	c.permission = p
	c.mu.Unlock()

	c.log.Info("notification permission", slog.String("permission", string(p)))
	return p
}

// Unlock primes audio playback. It reports whether this call did the transition.
func (c *Coordinator) Unlock() bool {
	if c.unlocked.CompareAndSwap(false, true) {
		c.log.Debug("audio unlocked")
		return true
	}
	return false
}

func (c *Coordinator) Unlocked() bool {
	return c.unlocked.Load()
}

// OnNewMessage raises the alert for one inbound message. The unread counter
// grows even when sessionID is the session currently open; it is only reset
// by Clear.
func (c *Coordinator) OnNewMessage(ctx context.Context, sessionID string, m chat.Message) {
	c.playCue()

	c.mu.Lock()
	c.unread[sessionID]++
	perm := c.permission
	c.mu.Unlock()

	c.mirrorUnread(ctx, sessionID)

	body := Truncate(m.Body, c.bodyLimit)
	if perm == PermissionGranted && c.desktop != nil {
		c.background(func() {
			if err := c.desktop.Notify(alertTitle, body); err != nil {
				c.log.Warn("desktop notification failed", slog.Any("error", err))
			}
		})
	}

	if len(c.sinks) == 0 {
		return
	}
	a := Alert{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		MessageID: m.ID,
		Body:      body,
		At:        time.Now(),
	}
	if m.Sender != 0 {
		a.Sender = m.Sender.String()
	}
	bg := context.WithoutCancel(ctx)
	for _, s := range c.sinks {
		s := s
		c.background(func() {
			sctx, cancel := context.WithTimeout(bg, sideEffectTTL)
			defer cancel()
			if err := s.Alert(sctx, a); err != nil {
				c.log.Warn("alert sink failed", slog.String("alert_id", a.ID), slog.Any("error", err))
			}
		})
	}
}

// Clear zeroes the unread counter of sessionID.
func (c *Coordinator) Clear(ctx context.Context, sessionID string) {
	c.mu.Lock()
	_, had := c.unread[sessionID]
	delete(c.unread, sessionID)
	c.mu.Unlock()

	if had {
		c.mirrorUnread(ctx, sessionID)
	}
}

func (c *Coordinator) Unread(sessionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread[sessionID]
}

func (c *Coordinator) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, n := range c.unread {
		total += n
	}
	return total
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := State{
		PerSessionUnread:  make(map[string]int, len(c.unread)),
		AudioUnlocked:     c.unlocked.Load(),
		BrowserPermission: c.permission,
	}
	for id, n := range c.unread {
		st.PerSessionUnread[id] = n
		st.TotalUnread += n
	}
	return st
}

// Wait blocks until background alert work has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) playCue() {
	if c.player == nil {
		return
	}
	if !c.unlocked.Load() {
		c.log.Debug("audio cue skipped: locked")
		return
	}
	c.cueOnce.Do(func() { c.cue = SynthesizeCue(cueSampleRate) })
	c.background(func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Warn("audio cue panicked", slog.Any("panic", r))
			}
		}()
		if err := c.player.Play(c.cue); err != nil {
			c.log.Warn("audio cue failed", slog.Any("error", err))
		}
	})
}

// mirrorUnread writes the counter value current at write time, under
// mirrorMu, so the last write always carries the latest value.
func (c *Coordinator) mirrorUnread(ctx context.Context, sessionID string) {
	if c.mirror == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	c.background(func() {
		c.mirrorMu.Lock()
		defer c.mirrorMu.Unlock()
		mctx, cancel := context.WithTimeout(bg, sideEffectTTL)
		defer cancel()
		if err := c.mirror.SetUnread(mctx, sessionID, c.Unread(sessionID)); err != nil {
			c.log.Warn("unread mirror failed", slog.String("session_id", sessionID), slog.Any("error", err))
		}
	})
}

func (c *Coordinator) background(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}
