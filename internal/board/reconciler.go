// Package board holds the reconciled in-memory view of one kanban board:
// the task list merged from host seed data, authoritative server events,
// and optimistic local edits, plus a small buffer of AI suggestions.
package board

import (
	"sync"

	"github.com/gosuda/boardsync/internal/protocol"
)

// maxSuggestions bounds the suggestion buffer; older entries fall off.
const maxSuggestions = 5

// Sender issues client messages toward the server. realtime.Manager
// satisfies it; tests use a fake.
type Sender interface {
	Send(msg protocol.ClientMessage)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(msg protocol.ClientMessage)

func (f SenderFunc) Send(msg protocol.ClientMessage) { f(msg) }

// Reconciler merges three input streams into one consistent task list:
// the host-supplied seed, server events, and local optimistic moves. The
// seed is provisional; the first board.state snapshot replaces it and
// from then on the socket is the sole source of truth for the session.
//
// Event methods mirror the realtime.Handlers surface and are safe to
// call from the manager's dispatch goroutine while readers use Tasks and
// Suggestions from elsewhere.
type Reconciler struct {
	sender   Sender
	onChange func()

	mu          sync.Mutex
	tasks       []protocol.Task
	suggestions []protocol.Suggestion
	received    bool
}

// NewReconciler returns an empty Reconciler. sender carries outbound
// move commands and may be nil for a read-only view; onChange, if
// non-nil, runs after every visible mutation so a host can re-render.
func NewReconciler(sender Sender, onChange func()) *Reconciler {
	return &Reconciler{sender: sender, onChange: onChange}
}

// SetSeed mirrors host-supplied initial tasks into the view. Once an
// authoritative snapshot has arrived the seed is ignored for the rest of
// the session.
func (r *Reconciler) SetSeed(tasks []protocol.Task) {
	r.mu.Lock()
	if r.received {
		r.mu.Unlock()
		return
	}
	r.tasks = append([]protocol.Task(nil), tasks...)
	r.mu.Unlock()
	r.changed()
}

// Tasks returns a copy of the current task list.
func (r *Reconciler) Tasks() []protocol.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Task(nil), r.tasks...)
}

// Suggestions returns a copy of the suggestion buffer, newest first.
func (r *Reconciler) Suggestions() []protocol.Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Suggestion(nil), r.suggestions...)
}

// ReceivedInitialState reports whether an authoritative board.state
// snapshot has arrived this session.
func (r *Reconciler) ReceivedInitialState() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

// OnBoardState adopts the snapshot wholesale as the new ground truth.
func (r *Reconciler) OnBoardState(msg protocol.BoardState) {
	r.mu.Lock()
	r.tasks = append([]protocol.Task(nil), msg.Tasks...)
	r.received = true
	r.mu.Unlock()
	r.changed()
}

// OnTaskUpdated applies a sparse patch to the matching task. An unknown
// id is tolerated; the task may simply not be known locally yet.
func (r *Reconciler) OnTaskUpdated(msg protocol.TaskUpdated) {
	r.mu.Lock()
	for i := range r.tasks {
		if r.tasks[i].ID == msg.TaskID {
			msg.Changes.Apply(&r.tasks[i])
			r.mu.Unlock()
			r.changed()
			return
		}
	}
	r.mu.Unlock()
}

// OnTaskCreated prepends the task. Duplicate delivery of an id already
// present, e.g. after a reconnect resend, is a no-op.
func (r *Reconciler) OnTaskCreated(msg protocol.TaskCreated) {
	r.mu.Lock()
	for i := range r.tasks {
		if r.tasks[i].ID == msg.Task.ID {
			r.mu.Unlock()
			return
		}
	}
	r.tasks = append([]protocol.Task{msg.Task}, r.tasks...)
	r.mu.Unlock()
	r.changed()
}

// OnTaskDeleted removes the matching task; absent ids are tolerated.
func (r *Reconciler) OnTaskDeleted(msg protocol.TaskDeleted) {
	r.mu.Lock()
	for i := range r.tasks {
		if r.tasks[i].ID == msg.TaskID {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			r.mu.Unlock()
			r.changed()
			return
		}
	}
	r.mu.Unlock()
}

// OnSuggestionNew prepends the suggestion, skipping duplicate ids and
// evicting the oldest entry beyond the buffer bound.
func (r *Reconciler) OnSuggestionNew(msg protocol.SuggestionNew) {
	r.mu.Lock()
	for _, s := range r.suggestions {
		if s.ID == msg.Suggestion.ID {
			r.mu.Unlock()
			return
		}
	}
	r.suggestions = append([]protocol.Suggestion{msg.Suggestion}, r.suggestions...)
	if len(r.suggestions) > maxSuggestions {
		r.suggestions = r.suggestions[:maxSuggestions]
	}
	r.mu.Unlock()
	r.changed()
}

// Move applies the status change locally first, so the view is never
// behind what the user just did, then requests it from the server. The
// authoritative task.updated that eventually arrives is the final word,
// confirming or contradicting; there is no rollback ledger.
func (r *Reconciler) Move(taskID string, status protocol.Status) {
	r.mu.Lock()
	patched := false
	for i := range r.tasks {
		if r.tasks[i].ID == taskID {
			r.tasks[i].Status = status
			patched = true
			break
		}
	}
	r.mu.Unlock()

	if patched {
		r.changed()
	}
	if r.sender != nil {
		r.sender.Send(protocol.TaskMove{TaskID: taskID, Status: status})
	}
}

// changed runs the host's re-render hook outside the lock.
func (r *Reconciler) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}
