// Package channel owns the single authenticated realtime connection to the
// chat backend.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Vovarama1992/chatra-operator-console/internal/api"
	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

var (
	ErrClosed     = errors.New("channel: closed")
	ErrBufferFull = errors.New("channel: send buffer full")
	ErrOpen       = errors.New("channel: already open")
)

const (
	pingPeriod   = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 256
)

// Frame is the wire envelope of every event in both directions.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Config struct {
	URL           string
	Dialer        *websocket.Dialer
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	JitterPercent int
}

// Manager keeps one websocket. Outbound emits are queued and written by a
// single writer; inbound frames are dispatched to handlers on the reader
// goroutine. After a drop the manager redials and emits "connected" again.
type Manager struct {
	cfg    Config
	tokens api.TokenSource
	log    *slog.Logger

	send chan Frame

	hmu      sync.RWMutex
	handlers map[string]map[uint64]chat.Handler
	nextID   uint64

	mu     sync.Mutex
	conn   *websocket.Conn
	opened bool
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, tokens api.TokenSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = 30 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		tokens:   tokens,
		log:      logger.With("component", "channel"),
		send:     make(chan Frame, sendBuffer),
		handlers: make(map[string]map[uint64]chat.Handler),
		done:     make(chan struct{}),
	}
}

var _ chat.Channel = (*Manager)(nil)

// Open dials the backend with the token from the shared store and starts the
// connection loop. It is the only way a connection is created; it fails if
// the first dial fails and may be called once.
func (m *Manager) Open(ctx context.Context) error {
	const op = "channel.Open"

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.opened {
		m.mu.Unlock()
		return ErrOpen
	}
	m.opened = true
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.opened = false
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx, conn)
	return nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := m.tokens.Token()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", m.cfg.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	return conn, nil
}

// run serves one connection at a time and redials after a drop until ctx ends.
func (m *Manager) run(ctx context.Context, conn *websocket.Conn) {
	defer close(m.done)

	for {
		m.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		backoff := m.cfg.ReconnectBase
		for {
			wait := jitteredDelay(backoff, m.cfg.ReconnectCap, m.cfg.JitterPercent)
			m.log.Warn("connection lost, reconnecting", slog.Duration("retry_in", wait))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			var err error
			conn, err = m.dial(ctx)
			if err == nil {
				break
			}
			m.log.Error("reconnect failed", slog.Any("error", err))
			if backoff*2 < m.cfg.ReconnectCap {
				backoff *= 2
			} else {
				backoff = m.cfg.ReconnectCap
			}
		}
	}
}

// serve pumps one connection until it fails or ctx ends.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		m.writePump(connCtx, conn)
	}()

	m.log.Info("connected", slog.String("url", m.cfg.URL))
	m.dispatch(Frame{Event: chat.EventConnected})

	m.readPump(conn)

	cancel()
	<-writerDone
	_ = conn.Close()

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

func (m *Manager) readPump(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Warn("read failed", slog.Any("error", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.log.Warn("malformed frame dropped", slog.Int("bytes", len(data)), slog.Any("error", err))
			continue
		}
		if f.Event == "" {
			m.log.Debug("frame without event dropped")
			continue
		}
		m.dispatch(f)
	}
}

func (m *Manager) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case f := <-m.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				m.log.Warn("write failed", slog.String("event", f.Event), slog.Any("error", err))
				// unblock the reader so the connection gets rebuilt
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (m *Manager) dispatch(f Frame) {
	m.hmu.RLock()
	hs := make([]chat.Handler, 0, len(m.handlers[f.Event]))
	for _, h := range m.handlers[f.Event] {
		hs = append(hs, h)
	}
	m.hmu.RUnlock()

	if len(hs) == 0 {
		m.log.Debug("no handler", slog.String("event", f.Event))
		return
	}
	for _, h := range hs {
		h(f.Data)
	}
}

// On registers h for event and returns the func that unregisters it.
func (m *Manager) On(event string, h chat.Handler) (off func()) {
	m.hmu.Lock()
	id := m.nextID
	m.nextID++
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[uint64]chat.Handler)
	}
	m.handlers[event][id] = h
	m.hmu.Unlock()

	return func() {
		m.hmu.Lock()
		delete(m.handlers[event], id)
		m.hmu.Unlock()
	}
}

// Emit queues a fire-and-forget event. Frames queued while the connection is
// down are written after the next successful dial.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	f := Frame{ID: uuid.NewString(), Event: event, Data: data}

	select {
	case m.send <- f:
		return nil
	default:
		m.log.Error("send buffer full, event dropped", slog.String("event", event))
		return ErrBufferFull
	}
}

// JoinSession asks the server to stream sessionID's room to this connection.
func (m *Manager) JoinSession(sessionID string) error {
	return m.Emit(chat.EventJoinSession, sessionID)
}

// Connected reports whether a live connection is currently held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Close tears the connection down and stops reconnecting.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		// the reader is blocked in ReadJSON; closing unblocks it
		_ = conn.Close()
	}
	<-m.done
	return nil
}

// jitteredDelay spreads base by up to ±jitterPct percent and caps it at
// limit. Same shape as JitteredDelay in raycon's pubsub client.
func jitteredDelay(base, limit time.Duration, jitterPct int) time.Duration {
	if jitterPct <= 0 {
		jitterPct = 25
	}
	spread := float64(base) * float64(jitterPct) / 100
	wait := base + time.Duration((rand.Float64()*2-1)*spread)
	return max(min(wait, limit), 0)
}
