// Package realtime maintains the websocket connection that keeps a board
// view synchronized: dialing, heartbeats, reconnection with exponential
// backoff, and ordered delivery of server events to registered handlers.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/backoff"
	"github.com/gosuda/boardsync/internal/clock"
	"github.com/gosuda/boardsync/internal/protocol"
)

// Defaults applied by NewManager when Config leaves them zero.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultDialTimeout       = 10 * time.Second
)

const closeNormal = 1000

// ErrNoToken is returned by Connect when no bearer token is supplied.
var ErrNoToken = errors.New("realtime: no token")

// Config carries the manager's construction-time settings. Every field
// except BaseURL has a usable zero-value default.
type Config struct {
	// BaseURL is the platform API base, e.g. "https://api.example.com".
	// The websocket endpoint is derived from it per protocol.SyncURL.
	BaseURL string

	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	Backoff           backoff.Policy

	// Transport and Clock exist for tests; leave nil in production.
	Transport Transport
	Clock     clock.Clock
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Transport == nil {
		c.Transport = NewTransport()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Handlers is the callback set a host registers at construction. Each
// handler runs synchronously, one at a time, in the order frames arrive
// on the socket. Nil entries are skipped.
//
// Handlers must not call back into Connect or Disconnect; hand such work
// to another goroutine.
type Handlers struct {
	OnBoardState    func(protocol.BoardState)
	OnTaskUpdated   func(protocol.TaskUpdated)
	OnTaskCreated   func(protocol.TaskCreated)
	OnTaskDeleted   func(protocol.TaskDeleted)
	OnSuggestionNew func(protocol.SuggestionNew)

	// OnStateChange observes lifecycle transitions, e.g. for a status
	// indicator. Repeated identical states are collapsed.
	OnStateChange func(State)
}

// Manager owns at most one live socket to one board's sync endpoint. It
// reconnects transparently after transient failures, stops for good on a
// fatal close code or Disconnect, and never delivers overlapping or
// out-of-order callbacks.
type Manager struct {
	cfg      Config
	handlers Handlers

	// cbMu serializes handler delivery. Disconnect acquires it, so once
	// Disconnect returns no further callback can run. Lock order: cbMu
	// before mu, never the reverse.
	cbMu      sync.Mutex
	lastState State

	mu      sync.Mutex
	machine *Machine
	gen     uint64 // bumped whenever pending dials, timers, or reads become stale
	enabled bool
	boardID string
	token   string
	url     string
	conn    Conn
	timer   *clock.Timer // at most one pending: heartbeat or reconnect
}

// NewManager returns a Manager with the given settings and handlers. It
// does nothing until Connect is called.
func NewManager(cfg Config, handlers Handlers) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		handlers: handlers,
		machine:  NewMachine(cfg.Backoff),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.State()
}

// Connect starts a session for the given board. It is a no-op while a
// session for the same board and token is already connected or dialing
// for the first time; any other live session is torn down and replaced.
// The dial itself is asynchronous; progress is observable through
// OnStateChange and State.
func (m *Manager) Connect(boardID, token string) error {
	if token == "" {
		return ErrNoToken
	}
	url, err := protocol.SyncURL(m.cfg.BaseURL, boardID, token)
	if err != nil {
		return fmt.Errorf("realtime.Manager.Connect: %w", err)
	}

	m.cbMu.Lock()
	m.mu.Lock()
	if m.enabled && m.boardID == boardID && m.token == token {
		if st := m.machine.State(); st == StateConnected || st == StateConnecting {
			m.mu.Unlock()
			m.cbMu.Unlock()
			return nil
		}
	}

	m.gen++
	gen := m.gen
	m.enabled = true
	m.boardID, m.token, m.url = boardID, token, url
	m.cancelTimerLocked()
	old := m.conn
	m.conn = nil
	st := m.machine.Connect()
	m.mu.Unlock()

	if old != nil {
		_ = old.Close(closeNormal, "superseded")
	}
	log.Info().Str("board", boardID).Msg("sync connecting")
	m.deliverState(st)
	m.cbMu.Unlock()

	// Dial outside all locks; under a fake clock the zero delay runs
	// synchronously on this goroutine, which keeps tests deterministic.
	m.cfg.Clock.AfterFunc(0, func() { m.dial(gen) })
	return nil
}

// Disconnect tears the session down: cancels any pending heartbeat or
// reconnect, closes the socket with a normal-closure code, and forces
// StateDisconnected. Safe to call repeatedly. Once Disconnect returns,
// no further handler invocation can occur.
func (m *Manager) Disconnect() {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.mu.Lock()
	if !m.enabled && m.machine.State() == StateDisconnected {
		m.cancelTimerLocked()
		m.mu.Unlock()
		return
	}

	m.gen++
	m.enabled = false
	m.cancelTimerLocked()
	conn := m.conn
	m.conn = nil
	st := m.machine.Reset()
	boardID := m.boardID
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(closeNormal, "client disconnect")
	}
	log.Info().Str("board", boardID).Msg("sync disconnected")
	m.deliverState(st)
}

// Send serializes and writes msg if the connection is currently open and
// silently drops it otherwise. A caller that needs delivery certainty
// must watch for the confirming server event.
func (m *Manager) Send(msg protocol.ClientMessage) {
	m.mu.Lock()
	conn := m.conn
	open := conn != nil && m.machine.State() == StateConnected
	m.mu.Unlock()

	if !open {
		log.Debug().Msg("sync send dropped: not connected")
		return
	}

	data, err := protocol.EncodeClient(msg)
	if err != nil {
		log.Error().Err(err).Msg("encode client message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		log.Debug().Err(err).Msg("sync send failed")
	}
}

// dial attempts one connection for the given generation. It runs with no
// locks held because Transport.Dial can block for the full dial timeout.
func (m *Manager) dial(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || !m.enabled {
		m.mu.Unlock()
		return
	}
	url := m.url
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.cfg.Transport.Dial(ctx, url)
	if err != nil {
		m.connLost(gen, err)
		return
	}
	m.installConn(gen, conn)
}

// installConn adopts a freshly dialed socket: records the open, arms the
// heartbeat, and starts the read loop. A socket whose generation was
// superseded while dialing is closed and discarded.
func (m *Manager) installConn(gen uint64, conn Conn) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.mu.Lock()
	if m.gen != gen || !m.enabled {
		m.mu.Unlock()
		_ = conn.Close(closeNormal, "superseded")
		return
	}

	m.gen++
	cur := m.gen
	m.conn = conn
	m.cancelTimerLocked()
	st := m.machine.HandleOpen()
	m.scheduleLocked(m.cfg.HeartbeatInterval, func() { m.heartbeat(cur) })
	boardID := m.boardID
	m.mu.Unlock()

	go m.readLoop(cur, conn)

	log.Info().Str("board", boardID).Msg("sync connected")
	m.deliverState(st)
}

// readLoop pulls frames from one socket until it dies. It is bound to
// the generation it was started under; anything it reports after that
// generation is superseded gets dropped.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			m.connLost(gen, err)
			return
		}
		m.dispatch(gen, data)
	}
}

// dispatch decodes one frame and invokes its handler. Frames that fail
// to decode are dropped; a single bad frame must never take down an
// otherwise healthy session.
func (m *Manager) dispatch(gen uint64, data []byte) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.mu.Lock()
	stale := m.gen != gen
	m.mu.Unlock()
	if stale {
		return
	}

	msg, err := m.machine.HandleMessage(data)
	if err != nil {
		log.Debug().Err(err).Msg("dropping sync frame")
		return
	}

	switch v := msg.(type) {
	case protocol.BoardState:
		if h := m.handlers.OnBoardState; h != nil {
			h(v)
		}
	case protocol.TaskUpdated:
		if h := m.handlers.OnTaskUpdated; h != nil {
			h(v)
		}
	case protocol.TaskCreated:
		if h := m.handlers.OnTaskCreated; h != nil {
			h(v)
		}
	case protocol.TaskDeleted:
		if h := m.handlers.OnTaskDeleted; h != nil {
			h(v)
		}
	case protocol.SuggestionNew:
		if h := m.handlers.OnSuggestionNew; h != nil {
			h(v)
		}
	}
}

// connLost handles a dead dial or socket: classify the failure, move the
// machine, and either arm a reconnect or stop for good.
func (m *Manager) connLost(gen uint64, err error) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.mu.Lock()
	if m.gen != gen || !m.enabled {
		m.mu.Unlock()
		return
	}

	m.gen++
	cur := m.gen
	m.conn = nil
	m.cancelTimerLocked()

	var verdict Verdict
	var ce *CloseError
	if errors.As(err, &ce) {
		verdict = m.machine.HandleClose(ce.Code)
	} else {
		verdict = m.machine.HandleError()
	}

	boardID := m.boardID
	if verdict.Retry {
		m.scheduleLocked(verdict.Delay, func() { m.dial(cur) })
	} else {
		m.enabled = false
	}
	m.mu.Unlock()

	if verdict.Retry {
		log.Warn().Err(err).Str("board", boardID).Dur("retry_in", verdict.Delay).Msg("sync connection lost")
	} else {
		log.Error().Err(err).Str("board", boardID).Msg("sync closed, not retrying")
	}
	m.deliverState(verdict.State)
}

// heartbeat sends one keep-alive and rechains the timer. Write failures
// are only logged; the read loop is the sole failure detector.
func (m *Manager) heartbeat(gen uint64) {
	m.mu.Lock()
	conn := m.conn
	if m.gen != gen || conn == nil {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	data, err := protocol.EncodeClient(protocol.Heartbeat{ID: uuid.NewString()})
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
		err = conn.Write(ctx, data)
		cancel()
	}
	if err != nil {
		log.Debug().Err(err).Msg("heartbeat not sent")
	}

	m.mu.Lock()
	if m.gen == gen {
		m.scheduleLocked(m.cfg.HeartbeatInterval, func() { m.heartbeat(gen) })
	}
	m.mu.Unlock()
}

// deliverState notifies the host of a transition, collapsing repeats.
// Callers hold cbMu.
func (m *Manager) deliverState(st State) {
	if st == m.lastState {
		return
	}
	m.lastState = st
	if h := m.handlers.OnStateChange; h != nil {
		h(st)
	}
}

// scheduleLocked arms the single timer slot. d must be positive: a zero
// delay under a fake clock would run the callback synchronously while mu
// is held. Callers hold mu.
func (m *Manager) scheduleLocked(d time.Duration, f func()) {
	m.cancelTimerLocked()
	m.timer = m.cfg.Clock.AfterFunc(d, f)
}

// cancelTimerLocked stops whatever timer is pending, if any. Idempotent;
// runs at the start of every transition. Callers hold mu.
func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
