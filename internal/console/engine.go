// Package console is the realtime synchronization engine behind the live
// operator console. It reconciles the REST snapshot, the push event stream
// and local operator actions into one view.
//
// All state changes run on one goroutine (Run). Channel handlers, REST
// completions and operator intents enqueue tasks; blocking REST calls happen
// on the caller's goroutine, never on the loop.
package console

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Vovarama1992/chatra-operator-console/internal/ai"
	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
	"github.com/Vovarama1992/chatra-operator-console/internal/directory"
	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
	"github.com/Vovarama1992/chatra-operator-console/internal/selection"
	"github.com/Vovarama1992/chatra-operator-console/internal/timeline"
)

const (
	taskBuffer   = 1024
	noticeBuffer = 16
)

type Options struct {
	API      chat.API
	Channel  chat.Channel
	Notifier *notify.Coordinator
	Drafter  ai.Drafter

	// ClearUnreadWhileOpen stops counting unread messages for the session
	// that is currently open. Off by default: counters only reset on select.
	ClearUnreadWhileOpen bool

	Logger *slog.Logger
	Now    func() time.Time
}

type Engine struct {
	api      chat.API
	ch       chat.Channel
	notifier *notify.Coordinator
	drafter  ai.Drafter
	log      *slog.Logger
	now      func() time.Time

	clearWhileOpen bool

	dir *directory.Directory
	tl  *timeline.Timeline
	sel *selection.Cell

	tasks   chan func()
	stopped chan struct{}
	running atomic.Bool
	ctx     context.Context

	notices chan Notice
	lastErr atomic.Pointer[Notice]

	offs []func()
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(notify.Options{Logger: logger})
	}

	e := &Engine{
		api:            opts.API,
		ch:             opts.Channel,
		notifier:       notifier,
		drafter:        opts.Drafter,
		log:            logger.With("component", "console"),
		now:            now,
		clearWhileOpen: opts.ClearUnreadWhileOpen,
		dir:            directory.New(),
		tl:             timeline.New(),
		sel:            selection.New(),
		tasks:          make(chan func(), taskBuffer),
		stopped:        make(chan struct{}),
		ctx:            context.Background(),
		notices:        make(chan Notice, noticeBuffer),
	}
	e.offs = append(e.offs, e.sel.Subscribe(e.onSelectionChanged))
	e.subscribe()
	return e
}

func (e *Engine) Directory() *directory.Directory { return e.dir }
func (e *Engine) Timeline() *timeline.Timeline    { return e.tl }
func (e *Engine) Selection() *selection.Cell      { return e.sel }
func (e *Engine) Notifier() *notify.Coordinator   { return e.notifier }

// Notices streams transient operator-visible errors. Old notices are dropped
// when nobody reads.
func (e *Engine) Notices() <-chan Notice { return e.notices }

// LastNotice returns the most recent notice, or nil.
func (e *Engine) LastNotice() *Notice { return e.lastErr.Load() }

// Run processes tasks until ctx ends. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrStopped
	}
	defer close(e.stopped)
	e.ctx = ctx

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.tasks:
			fn()
		}
	}
}

// Close unregisters the channel handlers.
func (e *Engine) Close() {
	for _, off := range e.offs {
		off()
	}
	e.offs = nil
}

func (e *Engine) enqueue(fn func()) error {
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case e.tasks <- fn:
		return nil
	case <-e.stopped:
		return ErrStopped
	}
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.enqueue(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// Sync waits until every task queued before the call has been applied.
func (e *Engine) Sync(ctx context.Context) error {
	return e.do(ctx, func() {})
}

func (e *Engine) notice(op, sessionID string, err error) {
	n := Notice{Op: op, SessionID: sessionID, Message: err.Error(), At: e.now()}
	e.lastErr.Store(&n)
	e.log.Warn("operation failed", slog.String("op", op), slog.String("session_id", sessionID), slog.Any("error", err))
	select {
	case e.notices <- n:
	default:
	}
}

// ---------------------------------------------------------------------------
// Inbound events
// ---------------------------------------------------------------------------

func (e *Engine) subscribe() {
	if e.ch == nil {
		return
	}
	e.offs = append(e.offs,
		e.ch.On(chat.EventConnected, func(json.RawMessage) { e.post(e.onConnected) }),
		e.ch.On(chat.EventNewMessage, decodeInto(e, chat.EventNewMessage, e.onNewMessage)),
		e.ch.On(chat.EventRoomMessage, decodeInto(e, chat.EventRoomMessage, e.onRoomMessage)),
		e.ch.On(chat.EventMessageSent, decodeInto(e, chat.EventMessageSent, e.onRoomMessage)),
		e.ch.On(chat.EventDeleted, decodeInto(e, chat.EventDeleted, e.onDeleted)),
	)
}

// newMessageFrame is admin_new_message with the message left raw, so a
// message the timeline cannot hold still counts as session activity.
type newMessageFrame struct {
	SessionID string          `json:"sessionId"`
	Message   json.RawMessage `json:"message"`
	Session   *chat.Session   `json:"session,omitempty"`
}

type validator interface {
	Validate() error
}

// decodeInto returns a channel handler that decodes the payload on the
// reader goroutine and applies it on the loop. Malformed frames are dropped.
func decodeInto[T any](e *Engine, event string, apply func(T)) chat.Handler {
	return func(data json.RawMessage) {
		var v T
		err := json.Unmarshal(data, &v)
		if err == nil {
			if vv, ok := any(v).(validator); ok {
				err = vv.Validate()
			}
		}
		if err != nil {
			e.log.Warn("malformed event dropped", slog.String("event", event), slog.Any("error", err))
			return
		}
		e.post(func() { apply(v) })
	}
}

func (e *Engine) post(fn func()) {
	if err := e.enqueue(fn); err != nil {
		e.log.Debug("event dropped", slog.Any("error", err))
	}
}

// onConnected re-joins the open session's room on every (re)connect.
func (e *Engine) onConnected() {
	if cur := e.sel.Current(); cur != "" {
		if err := e.ch.JoinSession(cur); err != nil {
			e.log.Warn("rejoin failed", slog.String("session_id", cur), slog.Any("error", err))
		}
	}
}

func (e *Engine) onNewMessage(ev newMessageFrame) {
	msg, msgErr := chat.DecodeMessage(ev.Message)

	id := ev.SessionID
	if id == "" {
		id = msg.SessionID
	}
	if id == "" {
		e.log.Warn("new message without session dropped", slog.String("message_id", msg.ID))
		return
	}
	if msg.SessionID == "" {
		msg.SessionID = id
	}
	if msgErr != nil {
		e.log.Warn("message kept out of timeline",
			slog.String("session_id", id),
			slog.String("message_id", msg.ID),
			slog.Any("error", msgErr),
		)
	}

	open := e.sel.Is(id)
	e.notifier.OnNewMessage(e.ctx, id, msg)

	delta := 1
	if open && e.clearWhileOpen {
		delta = 0
		e.notifier.Clear(e.ctx, id)
	}
	now := e.now()
	preview := msg.Body
	if inserted := e.dir.UpsertFromEvent(id, directory.Patch{
		LastActivity: &now,
		UnreadDelta:  delta,
		Preview:      &preview,
	}, ev.Session); inserted {
		e.log.Info("new session", slog.String("session_id", id))
	}

	if open && msgErr == nil {
		e.tl.Append(msg)
	}
}

// onRoomMessage handles room broadcasts and own-reply confirmations. They
// never count as unread.
func (e *Engine) onRoomMessage(m chat.Message) {
	if m.SessionID == "" {
		m.SessionID = e.sel.Current()
	}
	if m.SessionID == "" {
		return
	}

	if _, ok := e.dir.Get(m.SessionID); ok {
		now := e.now()
		preview := m.Body
		e.dir.UpsertFromEvent(m.SessionID, directory.Patch{LastActivity: &now, Preview: &preview}, nil)
	}

	if e.sel.Is(m.SessionID) {
		if !e.tl.Append(m) {
			e.log.Debug("duplicate message ignored", slog.String("message_id", m.ID))
		}
	}
}

func (e *Engine) onDeleted(ev chat.DeletedEvent) {
	if !e.tl.Tombstone(ev.MessageID) {
		e.log.Debug("deleted message not in timeline", slog.String("message_id", ev.MessageID))
	}
}

// ---------------------------------------------------------------------------
// Snapshot and selection
// ---------------------------------------------------------------------------

// onSelectionChanged runs inside Cell.Set, so the unread reset and the room
// join happen in the same loop task as the selection change.
func (e *Engine) onSelectionChanged(prev, next string) {
	e.log.Debug("selection changed", slog.String("from", prev), slog.String("to", next))
	if next == "" {
		return
	}
	e.notifier.Clear(e.ctx, next)
	e.dir.MarkRead(next)
	if e.ch == nil {
		return
	}
	if err := e.ch.JoinSession(next); err != nil {
		e.log.Warn("join failed", slog.String("session_id", next), slog.Any("error", err))
	}
}

// LoadAll replaces the directory with the backend snapshot. On failure the
// directory is emptied and a notice is raised.
func (e *Engine) LoadAll(ctx context.Context) error {
	sessions, err := e.api.ListSessions(ctx)
	if derr := e.do(ctx, func() {
		if err != nil {
			e.dir.Replace(nil)
			e.notice("load_sessions", "", err)
			return
		}
		e.dir.Replace(sessions)
	}); derr != nil {
		return derr
	}
	return err
}

// Select opens sessionID: the selection cell changes first (its listener
// resets unread counters and joins the room), then history is fetched. A
// history response that arrives after another selection is discarded.
func (e *Engine) Select(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	var gen uint64
	if err := e.do(ctx, func() {
		gen = e.sel.Set(sessionID)
		e.tl.Reset(sessionID)
	}); err != nil {
		return err
	}

	history, err := e.api.History(ctx, sessionID)
	if derr := e.do(ctx, func() {
		if e.sel.Generation() != gen {
			e.log.Debug("stale history discarded", slog.String("session_id", sessionID))
			return
		}
		if err != nil {
			e.notice("load_history", sessionID, err)
			return
		}
		e.tl.Load(sessionID, history)
	}); derr != nil {
		return derr
	}
	return err
}
