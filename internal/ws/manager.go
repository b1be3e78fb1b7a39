package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nihinconnect/chatd/internal/bus"
	"github.com/nihinconnect/chatd/internal/status"
	"go.uber.org/zap"
)

const (
	// MaxReconnectAttempts is the cap on consecutive reconnection attempts.
	// Past it the connection is declared down until the session restarts.
	MaxReconnectAttempts = 10

	baseReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay  = 30 * time.Second
)

// ReconnectDelay computes the backoff before the next reconnection attempt,
// given how many consecutive attempts have already failed.
func ReconnectDelay(attempts int) time.Duration {
	d := baseReconnectDelay << attempts
	if d <= 0 || d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

type stopper interface {
	Stop() bool
}

// Manager owns the single realtime connection for a session. All interaction
// with the connection and its pending queue goes through EnsureConnected,
// SafeSend, OnNextOpen and Close; nothing else touches them.
//
// Frames submitted while the connection is not open are queued in order and
// flushed FIFO on the next successful open, before any newer send.
type Manager struct {
	url       string
	transport Transport
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger

	mu       sync.Mutex
	conn     Conn
	gen      int // connection generation; stale read loops are ignored
	attempts int
	pending  [][]byte
	openHook func() // single pending one-shot open hook
	retry    stopper
	torn     bool

	// afterFunc schedules the reconnect timer; replaced in tests.
	afterFunc func(time.Duration, func()) stopper
}

// NewManager creates a manager for the given feed URL. No connection is
// attempted until EnsureConnected or SafeSend.
func NewManager(url string, transport Transport, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		url:       url,
		transport: transport,
		machine:   machine,
		bus:       b,
		logger:    logger,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

// Status returns the current connection state.
func (m *Manager) Status() status.State {
	return m.machine.Current()
}

// EnsureConnected starts a connection attempt unless one is already open or
// in flight. Idempotent; a no-op after Close or once the reconnect cap has
// been reached.
func (m *Manager) EnsureConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureConnectedLocked()
}

func (m *Manager) ensureConnectedLocked() {
	if m.torn {
		return
	}
	switch m.machine.Current() {
	case status.Open, status.Connecting, status.Down:
		return
	}
	if err := m.machine.Transition(status.Connecting); err != nil {
		return
	}
	gen := m.gen
	go m.dial(gen)
}

func (m *Manager) dial(gen int) {
	conn, err := m.transport.Dial(context.Background(), m.url)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn || gen != m.gen {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("realtime dial failed", zap.Error(err))
		_ = m.machine.Transition(status.Closed)
		m.scheduleReconnectLocked()
		return
	}

	m.conn = conn
	m.attempts = 0
	_ = m.machine.Transition(status.Open)
	m.logger.Info("realtime connected")

	m.flushLocked()

	if hook := m.openHook; hook != nil {
		m.openHook = nil
		go hook()
	}

	go m.readLoop(conn, gen)
}

// flushLocked transmits every queued frame in enqueue order, then clears
// the queue. A write failure aborts the flush and leaves the remainder
// queued for the subsequent open.
func (m *Manager) flushLocked() {
	for i, data := range m.pending {
		if err := m.conn.WriteMessage(data); err != nil {
			m.logger.Warn("flush write failed", zap.Error(err))
			m.pending = m.pending[i:]
			return
		}
	}
	m.pending = nil
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.logger.Warn("malformed realtime payload dropped", zap.Error(err))
			continue
		}
		m.bus.Emit(bus.KindWireMessage, &env)
	}
}

// connectionLost handles a closed or errored connection: transport errors
// are treated identically to an ordinary close for reconnection purposes.
func (m *Manager) connectionLost(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn || gen != m.gen {
		return
	}
	m.logger.Warn("realtime disconnected", zap.Error(err))
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	_ = m.machine.Transition(status.Closed)
	m.scheduleReconnectLocked()
}

func (m *Manager) scheduleReconnectLocked() {
	if m.attempts >= MaxReconnectAttempts {
		m.logger.Error("reconnect attempts exhausted, giving up",
			zap.Int("attempts", m.attempts))
		_ = m.machine.Transition(status.Down)
		return
	}
	delay := ReconnectDelay(m.attempts)
	m.attempts++
	m.logger.Info("scheduling reconnect",
		zap.Duration("delay", delay), zap.Int("attempt", m.attempts))
	m.retry = m.afterFunc(delay, m.EnsureConnected)
}

// SafeSend transmits payload immediately when the connection is open;
// otherwise it queues the payload in submission order and triggers a
// connection attempt.
func (m *Manager) SafeSend(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("marshal outbound frame", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn {
		return
	}
	if m.machine.Current() == status.Open && m.conn != nil {
		if err := m.conn.WriteMessage(data); err != nil {
			m.logger.Warn("realtime write failed, queueing frame", zap.Error(err))
			m.pending = append(m.pending, data)
		}
		return
	}
	m.pending = append(m.pending, data)
	m.ensureConnectedLocked()
}

// OnNextOpen registers fn to run once on the next successful open, replacing
// any previously registered hook. If the connection is already open fn runs
// immediately. Used to defer a conversation join past a reconnect; only the
// newest join matters, so a single slot suffices.
func (m *Manager) OnNextOpen(fn func()) {
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		return
	}
	if m.machine.Current() == status.Open {
		m.mu.Unlock()
		fn()
		return
	}
	m.openHook = fn
	m.mu.Unlock()
}

// Close tears the manager down: the connection is closed, the pending queue
// and open hook are discarded, and no reconnection is ever attempted again.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn {
		return
	}
	m.torn = true
	m.gen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.pending = nil
	m.openHook = nil
	switch m.machine.Current() {
	case status.Open, status.Connecting:
		_ = m.machine.Transition(status.Closed)
	}
	m.logger.Info("realtime manager closed")
}
