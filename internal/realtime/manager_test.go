package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/clock"
	"github.com/gosuda/boardsync/internal/protocol"
	"github.com/gosuda/boardsync/internal/realtime"
)

type readResult struct {
	data []byte
	err  error
}

// fakeConn is an in-memory Conn fed frames and failures by the test.
type fakeConn struct {
	incoming chan readResult
	done     chan struct{}
	once     sync.Once

	mu        sync.Mutex
	sent      [][]byte
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming:  make(chan readResult, 16),
		done:      make(chan struct{}),
		closeCode: -1,
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case r := <-c.incoming:
		return r.data, r.err
	case <-c.done:
		return nil, errors.New("closed locally")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeConn) serve(t *testing.T, msg protocol.ServerMessage) {
	t.Helper()
	data, err := protocol.EncodeServer(msg)
	require.NoError(t, err)
	c.incoming <- readResult{data: data}
}

func (c *fakeConn) serveRaw(data []byte) {
	c.incoming <- readResult{data: data}
}

// fail makes the next Read return err, as a dying socket would.
func (c *fakeConn) fail(err error) {
	c.incoming <- readResult{err: err}
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) closedWith() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// fakeTransport hands out fakeConns and records every dial.
type fakeTransport struct {
	mu      sync.Mutex
	dialErr error
	dials   []string
	conns   []*fakeConn
}

func (tr *fakeTransport) Dial(_ context.Context, url string) (realtime.Conn, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.dials = append(tr.dials, url)
	if tr.dialErr != nil {
		return nil, tr.dialErr
	}
	conn := newFakeConn()
	tr.conns = append(tr.conns, conn)
	return conn, nil
}

func (tr *fakeTransport) setDialErr(err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.dialErr = err
}

func (tr *fakeTransport) dialCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.dials)
}

func (tr *fakeTransport) lastDial() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.dials) == 0 {
		return ""
	}
	return tr.dials[len(tr.dials)-1]
}

func (tr *fakeTransport) lastConn() *fakeConn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.conns) == 0 {
		return nil
	}
	return tr.conns[len(tr.conns)-1]
}

// recorder captures handler invocations for assertions.
type recorder struct {
	mu     sync.Mutex
	states []realtime.State
	events []protocol.ServerMessage
}

func (r *recorder) handlers() realtime.Handlers {
	return realtime.Handlers{
		OnBoardState:    func(m protocol.BoardState) { r.record(m) },
		OnTaskUpdated:   func(m protocol.TaskUpdated) { r.record(m) },
		OnTaskCreated:   func(m protocol.TaskCreated) { r.record(m) },
		OnTaskDeleted:   func(m protocol.TaskDeleted) { r.record(m) },
		OnSuggestionNew: func(m protocol.SuggestionNew) { r.record(m) },
		OnStateChange: func(s realtime.State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
	}
}

func (r *recorder) record(m protocol.ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, m)
}

func (r *recorder) stateLog() []realtime.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *recorder) eventLog() []protocol.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.ServerMessage, len(r.events))
	copy(out, r.events)
	return out
}

// newTestManager wires a manager to a fake transport and fake clock, so
// dials triggered by Connect or Advance complete synchronously.
func newTestManager(t *testing.T) (*realtime.Manager, *fakeTransport, *clock.FakeClock, *recorder) {
	t.Helper()
	tr := &fakeTransport{}
	fc := clock.Fake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	rec := &recorder{}
	mgr := realtime.NewManager(realtime.Config{
		BaseURL:   "http://sync.test",
		Transport: tr,
		Clock:     fc,
	}, rec.handlers())
	t.Cleanup(mgr.Disconnect)
	return mgr, tr, fc, rec
}

func TestManagerConnect(t *testing.T) {
	t.Parallel()

	mgr, tr, _, rec := newTestManager(t)

	require.NoError(t, mgr.Connect("board-1", "tok-abc"))

	assert.Equal(t, realtime.StateConnected, mgr.State())
	assert.Equal(t, 1, tr.dialCount())
	assert.Equal(t, "ws://sync.test/ws/board/board-1/sync?token=tok-abc", tr.lastDial())
	assert.Equal(t, []realtime.State{realtime.StateConnecting, realtime.StateConnected}, rec.stateLog())
}

func TestManagerConnectValidation(t *testing.T) {
	t.Parallel()

	mgr, tr, _, _ := newTestManager(t)

	require.ErrorIs(t, mgr.Connect("board-1", ""), realtime.ErrNoToken)
	require.Error(t, mgr.Connect("", "tok"))

	assert.Equal(t, realtime.StateDisconnected, mgr.State())
	assert.Zero(t, tr.dialCount())
}

func TestManagerConnectIdempotent(t *testing.T) {
	t.Parallel()

	mgr, tr, _, rec := newTestManager(t)

	require.NoError(t, mgr.Connect("board-1", "tok"))
	require.NoError(t, mgr.Connect("board-1", "tok"))

	assert.Equal(t, 1, tr.dialCount())
	assert.Equal(t, []realtime.State{realtime.StateConnecting, realtime.StateConnected}, rec.stateLog())
}

func TestManagerConnectSwitchesBoards(t *testing.T) {
	t.Parallel()

	mgr, tr, _, rec := newTestManager(t)

	require.NoError(t, mgr.Connect("board-1", "tok"))
	first := tr.lastConn()

	require.NoError(t, mgr.Connect("board-2", "tok"))

	assert.Equal(t, 2, tr.dialCount())
	assert.Contains(t, tr.lastDial(), "/ws/board/board-2/sync")
	assert.Equal(t, 1000, first.closedWith())
	// A new target is a new session, so connecting shows again.
	assert.Equal(t, []realtime.State{
		realtime.StateConnecting, realtime.StateConnected,
		realtime.StateConnecting, realtime.StateConnected,
	}, rec.stateLog())
}

func TestManagerDeliversEventsInOrder(t *testing.T) {
	t.Parallel()

	mgr, tr, _, rec := newTestManager(t)
	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()

	conn.serve(t, protocol.BoardState{Tasks: []protocol.Task{{ID: "t1", Title: "Fix bug", Status: protocol.StatusInbox, Priority: "high"}}})
	status := protocol.StatusInProgress
	conn.serve(t, protocol.TaskUpdated{TaskID: "t1", Changes: protocol.TaskPatch{Status: &status}})
	conn.serve(t, protocol.TaskDeleted{TaskID: "t1"})

	require.Eventually(t, func() bool { return len(rec.eventLog()) == 3 }, 2*time.Second, 10*time.Millisecond)

	events := rec.eventLog()
	assert.IsType(t, protocol.BoardState{}, events[0])
	assert.IsType(t, protocol.TaskUpdated{}, events[1])
	assert.IsType(t, protocol.TaskDeleted{}, events[2])
}

func TestManagerDropsBadFrames(t *testing.T) {
	t.Parallel()

	mgr, tr, _, rec := newTestManager(t)
	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()

	conn.serveRaw([]byte(`{"type":"board.renamed","name":"Q3"}`))
	conn.serveRaw([]byte(`{"type":`))
	conn.serve(t, protocol.TaskCreated{Task: protocol.Task{ID: "t2", Title: "after the noise", Status: protocol.StatusInbox}})

	require.Eventually(t, func() bool { return len(rec.eventLog()) == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.IsType(t, protocol.TaskCreated{}, rec.eventLog()[0])
	assert.Equal(t, realtime.StateConnected, mgr.State())
}

func TestManagerHeartbeat(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, _ := newTestManager(t)
	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()

	fc.Advance(29 * time.Second)
	assert.Empty(t, conn.sentFrames())

	fc.Advance(time.Second)
	frames := conn.sentFrames()
	require.Len(t, frames, 1)

	fc.Advance(30 * time.Second)
	frames = conn.sentFrames()
	require.Len(t, frames, 2)

	first, err := protocol.DecodeClient(frames[0])
	require.NoError(t, err)
	second, err := protocol.DecodeClient(frames[1])
	require.NoError(t, err)

	hb1, ok := first.(protocol.Heartbeat)
	require.True(t, ok)
	hb2, ok := second.(protocol.Heartbeat)
	require.True(t, ok)
	assert.NotEmpty(t, hb1.ID)
	assert.NotEmpty(t, hb2.ID)
	assert.NotEqual(t, hb1.ID, hb2.ID)
}

func TestManagerSend(t *testing.T) {
	t.Parallel()

	mgr, tr, _, _ := newTestManager(t)

	// Not connected yet: the send is dropped, not an error.
	mgr.Send(protocol.TaskMove{TaskID: "t1", Status: protocol.StatusDone})
	assert.Zero(t, tr.dialCount())

	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()

	mgr.Send(protocol.TaskMove{TaskID: "t1", Status: protocol.StatusDone})

	frames := conn.sentFrames()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"task.move","task_id":"t1","status":"done"}`, string(frames[0]))

	mgr.Disconnect()
	mgr.Send(protocol.TaskMove{TaskID: "t1", Status: protocol.StatusInbox})
	assert.Len(t, conn.sentFrames(), 1)
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, rec := newTestManager(t)
	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()

	conn.fail(&realtime.CloseError{Code: 1006, Reason: "abnormal closure"})

	require.Eventually(t, func() bool { return mgr.State() == realtime.StateReconnecting }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, tr.dialCount())
	assert.Equal(t, 1, fc.PendingCount())

	// Exactly one reconnect attempt after the base delay elapses.
	fc.Advance(time.Second)
	assert.Equal(t, 2, tr.dialCount())
	assert.Equal(t, realtime.StateConnected, mgr.State())

	fc.Advance(30 * time.Second)
	assert.Equal(t, 2, tr.dialCount())

	require.Eventually(t, func() bool {
		states := rec.stateLog()
		return len(states) == 4 && states[3] == realtime.StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []realtime.State{
		realtime.StateConnecting, realtime.StateConnected,
		realtime.StateReconnecting, realtime.StateConnected,
	}, rec.stateLog())
}

func TestManagerBackoffDoublesBetweenAttempts(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, _ := newTestManager(t)
	tr.setDialErr(errors.New("connection refused"))

	require.NoError(t, mgr.Connect("board-1", "tok"))
	assert.Equal(t, realtime.StateReconnecting, mgr.State())
	assert.Equal(t, 1, tr.dialCount())

	fc.Advance(time.Second)
	assert.Equal(t, 2, tr.dialCount())

	// The next delay doubled to 2s, so 1s of quiet first.
	fc.Advance(time.Second)
	assert.Equal(t, 2, tr.dialCount())
	fc.Advance(time.Second)
	assert.Equal(t, 3, tr.dialCount())

	tr.setDialErr(nil)
	fc.Advance(4 * time.Second)
	assert.Equal(t, 4, tr.dialCount())
	assert.Equal(t, realtime.StateConnected, mgr.State())
}

func TestManagerFatalCloseSuppressesRetry(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, rec := newTestManager(t)
	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()

	conn.fail(&realtime.CloseError{Code: protocol.CloseUnauthorized, Reason: "unauthorized"})

	require.Eventually(t, func() bool { return mgr.State() == realtime.StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, fc.PendingCount())

	fc.Advance(5 * time.Minute)
	assert.Equal(t, 1, tr.dialCount())

	require.Eventually(t, func() bool { return len(rec.stateLog()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []realtime.State{
		realtime.StateConnecting, realtime.StateConnected, realtime.StateDisconnected,
	}, rec.stateLog())

	// A fresh Connect starts over after the host obtains a new token.
	require.NoError(t, mgr.Connect("board-1", "tok-new"))
	assert.Equal(t, realtime.StateConnected, mgr.State())
	assert.Equal(t, 2, tr.dialCount())
}

func TestManagerConnectDuringReconnectRetriesNow(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, _ := newTestManager(t)
	tr.setDialErr(errors.New("connection refused"))

	require.NoError(t, mgr.Connect("board-1", "tok"))
	assert.Equal(t, realtime.StateReconnecting, mgr.State())
	assert.Equal(t, 1, tr.dialCount())

	// Asking again for the same target while waiting out a backoff delay
	// starts a fresh session and dials immediately.
	require.NoError(t, mgr.Connect("board-1", "tok"))
	assert.Equal(t, 2, tr.dialCount())
	assert.Equal(t, realtime.StateReconnecting, mgr.State())
	assert.Equal(t, 1, fc.PendingCount())
}

func TestManagerDisconnect(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, rec := newTestManager(t)
	require.NoError(t, mgr.Connect("board-1", "tok"))
	conn := tr.lastConn()
	require.Equal(t, 1, fc.PendingCount())

	mgr.Disconnect()

	assert.Equal(t, realtime.StateDisconnected, mgr.State())
	assert.Zero(t, fc.PendingCount())
	assert.Equal(t, 1000, conn.closedWith())

	// Idempotent, including after the socket is long gone.
	mgr.Disconnect()
	assert.Equal(t, []realtime.State{
		realtime.StateConnecting, realtime.StateConnected, realtime.StateDisconnected,
	}, rec.stateLog())

	// Frames arriving on the dead socket never reach the handlers.
	conn.serveRaw([]byte(`{"type":"task.deleted","task_id":"t1"}`))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.eventLog())
}

func TestManagerDisconnectDuringBackoffCancelsRetry(t *testing.T) {
	t.Parallel()

	mgr, tr, fc, _ := newTestManager(t)
	tr.setDialErr(errors.New("connection refused"))

	require.NoError(t, mgr.Connect("board-1", "tok"))
	require.Equal(t, realtime.StateReconnecting, mgr.State())
	require.Equal(t, 1, fc.PendingCount())

	mgr.Disconnect()

	assert.Zero(t, fc.PendingCount())
	fc.Advance(time.Minute)
	assert.Equal(t, 1, tr.dialCount())
}
