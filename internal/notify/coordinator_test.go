package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

type fakePlayer struct {
	mu    sync.Mutex
	plays int
	err   error
}

func (p *fakePlayer) Play(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return p.err
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

type fakeDesktop struct {
	mu     sync.Mutex
	bodies []string
}

func (d *fakeDesktop) Notify(title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodies = append(d.bodies, body)
	return nil
}

type fakeMirror struct {
	mu   sync.Mutex
	vals map[string]int
}

func (m *fakeMirror) SetUnread(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = map[string]int{}
	}
	m.vals[id] = n
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (s *fakeSink) Alert(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func newMsg(id, body string) chat.Message {
	return chat.Message{ID: id, Sender: chat.SenderUser, Body: body}
}

func TestUnlockIsOneWay(t *testing.T) {
	c := New(Options{})
	assert.False(t, c.Unlocked())
	assert.True(t, c.Unlock())
	assert.False(t, c.Unlock())
	assert.True(t, c.Unlocked())
}

func TestCueOnlyAfterUnlock(t *testing.T) {
	p := &fakePlayer{}
	c := New(Options{Player: p})
	ctx := context.Background()

	c.OnNewMessage(ctx, "S1", newMsg("m1", "hi"))
	c.Wait()
	assert.Equal(t, 0, p.count())

	c.Unlock()
	c.OnNewMessage(ctx, "S2", newMsg("m2", "hi"))
	c.Wait()
	assert.Equal(t, 1, p.count())
}

func TestCueFailureDoesNotInterruptFlow(t *testing.T) {
	p := &fakePlayer{err: errors.New("no audio device")}
	d := &fakeDesktop{}
	c := New(Options{Player: p, Desktop: d})
	c.RequestPermission(context.Background(), StaticPermission(PermissionGranted))
	c.Unlock()

	c.OnNewMessage(context.Background(), "S1", newMsg("m1", "hello"))
	c.Wait()

	assert.Equal(t, 1, c.Unread("S1"))
	assert.Equal(t, []string{"hello"}, d.bodies)
}

func TestUnreadCountsPerSessionAndTotal(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()
	c.OnNewMessage(ctx, "S1", newMsg("a", ""))
	c.OnNewMessage(ctx, "S1", newMsg("b", ""))
	c.OnNewMessage(ctx, "S2", newMsg("c", ""))

	assert.Equal(t, 2, c.Unread("S1"))
	assert.Equal(t, 3, c.Total())

	c.Clear(ctx, "S1")
	st := c.State()
	assert.Equal(t, map[string]int{"S2": 1}, st.PerSessionUnread)
	assert.Equal(t, 1, st.TotalUnread)
}

func TestDesktopOnlyWhenGranted(t *testing.T) {
	for _, perm := range []Permission{PermissionDefault, PermissionDenied} {
		d := &fakeDesktop{}
		c := New(Options{Desktop: d})
		c.RequestPermission(context.Background(), StaticPermission(perm))
		c.OnNewMessage(context.Background(), "S1", newMsg("m1", "x"))
		c.Wait()
		assert.Empty(t, d.bodies, perm)
		assert.Equal(t, 1, c.Unread("S1"), perm)
	}
}

func TestDesktopBodyTruncated(t *testing.T) {
	d := &fakeDesktop{}
	c := New(Options{Desktop: d})
	c.RequestPermission(context.Background(), StaticPermission(PermissionGranted))

	c.OnNewMessage(context.Background(), "S1", newMsg("m1", strings.Repeat("я", 250)))
	c.Wait()

	require.Len(t, d.bodies, 1)
	assert.Equal(t, strings.Repeat("я", 100)+"…", d.bodies[0])
}

func TestSinksAndMirrorReceiveAlerts(t *testing.T) {
	s := &fakeSink{err: errors.New("journal down")}
	m := &fakeMirror{}
	c := New(Options{Sinks: []Sink{s}, Mirror: m})
	ctx := context.Background()

	c.OnNewMessage(ctx, "S1", newMsg("m1", "hello"))
	c.OnNewMessage(ctx, "S1", newMsg("m2", "again"))
	c.Wait()

	require.Len(t, s.alerts, 2)
	assert.Equal(t, "S1", s.alerts[0].SessionID)
	assert.Equal(t, "user", s.alerts[0].Sender)
	assert.NotEmpty(t, s.alerts[0].ID)
	assert.Equal(t, 2, m.vals["S1"])

	c.Clear(ctx, "S1")
	c.Wait()
	assert.Equal(t, 0, m.vals["S1"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab…", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestSynthesizeCue(t *testing.T) {
	pcm := SynthesizeCue(8000)
	// 110ms + 170ms at 8kHz, two bytes per sample
	assert.Equal(t, (880+1360)*2, len(pcm))
}

func TestParsePermission(t *testing.T) {
	assert.Equal(t, PermissionGranted, ParsePermission("granted"))
	assert.Equal(t, PermissionDenied, ParsePermission("denied"))
	assert.Equal(t, PermissionDefault, ParsePermission("whatever"))
}
