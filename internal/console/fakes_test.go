package console

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/chatra-operator-console/internal/ai"
	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

type fakeAPI struct {
	mu           sync.Mutex
	sessions     []chat.Session
	history      map[string][]chat.Message
	listErr      error
	historyErr   error
	deleteErr    error
	historyCalls map[string]int
	gate         map[string]chan struct{}
	onDelete     func(id string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:      map[string][]chat.Message{},
		historyCalls: map[string]int{},
		gate:         map[string]chan struct{}{},
	}
}

func (f *fakeAPI) ListSessions(context.Context) ([]chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]chat.Session, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeAPI) History(ctx context.Context, id string) ([]chat.Message, error) {
	f.mu.Lock()
	f.historyCalls[id]++
	gate := f.gate[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]chat.Message, len(f.history[id]))
	copy(out, f.history[id])
	return out, nil
}

func (f *fakeAPI) DeleteSession(_ context.Context, id string) error {
	if f.onDelete != nil {
		f.onDelete(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeAPI) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[id]
}

type emitted struct {
	Event string
	Data  json.RawMessage
}

type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string][]chat.Handler
	emits    []emitted
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string][]chat.Handler{}}
}

func (c *fakeChannel) On(event string, h chat.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, event)
	}
}

func (c *fakeChannel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{Event: event, Data: data})
	return nil
}

func (c *fakeChannel) JoinSession(id string) error {
	return c.Emit(chat.EventJoinSession, id)
}

func (c *fakeChannel) sent(event string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, e := range c.emits {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

// fire delivers an inbound event the way the channel reader would.
func (c *fakeChannel) fire(t *testing.T, event string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.fireRaw(event, data)
}

func (c *fakeChannel) fireRaw(event string, data []byte) {
	c.mu.Lock()
	hs := append([]chat.Handler(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

type fakeDrafter struct {
	history []ai.Message
}

func (d *fakeDrafter) DraftReply(_ context.Context, history []ai.Message) (string, error) {
	d.history = history
	return "draft", nil
}

type harness struct {
	engine *Engine
	api    *fakeAPI
	ch     *fakeChannel
	ctx    context.Context
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{api: newFakeAPI(), ch: newFakeChannel()}
	opts := Options{API: h.api, Channel: h.ch}
	for _, m := range mutate {
		m(&opts)
	}
	h.engine = New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		h.engine.Close()
	})

	tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(tcancel)
	h.ctx = tctx
	return h
}

// deliver fires an event and waits until the engine applied it.
func (h *harness) deliver(t *testing.T, event string, v any) {
	t.Helper()
	h.ch.fire(t, event, v)
	require.NoError(t, h.engine.Sync(h.ctx))
}

func userMsg(id, session, body string) chat.Message {
	return chat.Message{ID: id, SessionID: session, Sender: chat.SenderUser, Body: body}
}

func sessionIDs(sessions []chat.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}

func messageIDs(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
