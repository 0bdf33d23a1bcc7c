package devserver

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/protocol"
)

// boardStore holds the fixture boards. Boards are provisioned at
// construction and the map is read-only afterwards; each room carries
// its own lock.
type boardStore struct {
	rooms map[string]*boardRoom
}

func newBoardStore(boardIDs []string) *boardStore {
	s := &boardStore{rooms: make(map[string]*boardRoom, len(boardIDs))}
	for _, id := range boardIDs {
		s.rooms[id] = &boardRoom{
			id:    id,
			tasks: seedTasks(),
			subs:  make(map[*subscriber]struct{}),
		}
	}
	return s
}

func (s *boardStore) room(id string) (*boardRoom, bool) {
	r, ok := s.rooms[id]
	return r, ok
}

func (s *boardStore) all() []*boardRoom {
	out := make([]*boardRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// seedTasks returns the demo tasks every provisioned board starts with.
func seedTasks() []protocol.Task {
	return []protocol.Task{
		{ID: "t1", Title: "Fix login bug", Status: protocol.StatusInProgress, Priority: "high"},
		{ID: "t2", Title: "Update onboarding docs", Status: protocol.StatusInbox, Priority: "low"},
		{ID: "t3", Title: "Review Q3 brand report", Status: protocol.StatusReview, Priority: "medium"},
		{ID: "t4", Title: "Ship notification emails", Status: protocol.StatusAssigned, Priority: "high", AssignedAgentID: "agent-7"},
	}
}

// subscriber is one connected sync client. Frames are pushed through a
// buffered channel; the connection's writer goroutine drains it.
type subscriber struct {
	ch chan []byte
}

// boardRoom is one board's tasks plus the clients watching them. Every
// mutation broadcasts its event under the same lock, so all subscribers
// observe the same order.
type boardRoom struct {
	id string

	mu    sync.Mutex
	tasks []protocol.Task
	subs  map[*subscriber]struct{}
}

// subscribe registers a new client and queues the snapshot as its first
// frame, before any later broadcast can slip in.
func (r *boardRoom) subscribe() *subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscriber{ch: make(chan []byte, 32)}
	frame, err := protocol.EncodeServer(protocol.BoardState{Tasks: append([]protocol.Task(nil), r.tasks...)})
	if err == nil {
		sub.ch <- frame
	} else {
		log.Error().Err(err).Str("board", r.id).Msg("encode snapshot")
	}
	r.subs[sub] = struct{}{}
	return sub
}

func (r *boardRoom) unsubscribe(sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, sub)
}

func (r *boardRoom) snapshot() []protocol.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Task(nil), r.tasks...)
}

// move changes a task's status and broadcasts the patch, including the
// status it moved from.
func (r *boardRoom) move(taskID string, status protocol.Status) (protocol.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.tasks {
		if r.tasks[i].ID == taskID {
			prev := r.tasks[i].Status
			r.tasks[i].Status = status
			st := status
			r.broadcastLocked(protocol.TaskUpdated{
				TaskID:  taskID,
				Changes: protocol.TaskPatch{Status: &st, PreviousStatus: &prev},
			})
			return r.tasks[i], true
		}
	}
	return protocol.Task{}, false
}

// create prepends a task, minting an id when the client left it empty.
// Creating an id that already exists returns the stored task unchanged.
func (r *boardRoom) create(task protocol.Task) (protocol.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	for i := range r.tasks {
		if r.tasks[i].ID == task.ID {
			return r.tasks[i], false
		}
	}
	if task.Status == "" {
		task.Status = protocol.StatusInbox
	}
	r.tasks = append([]protocol.Task{task}, r.tasks...)
	r.broadcastLocked(protocol.TaskCreated{Task: task})
	return task, true
}

func (r *boardRoom) remove(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.tasks {
		if r.tasks[i].ID == taskID {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			r.broadcastLocked(protocol.TaskDeleted{TaskID: taskID})
			return true
		}
	}
	return false
}

func (r *boardRoom) suggest(s protocol.Suggestion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(protocol.SuggestionNew{Suggestion: s})
}

// broadcastLocked fans the event out to every subscriber. A subscriber
// whose buffer is full loses the frame rather than wedging the room;
// the client recovers on its next snapshot.
func (r *boardRoom) broadcastLocked(msg protocol.ServerMessage) {
	frame, err := protocol.EncodeServer(msg)
	if err != nil {
		log.Error().Err(err).Str("board", r.id).Msg("encode broadcast")
		return
	}
	for sub := range r.subs {
		select {
		case sub.ch <- frame:
		default:
			log.Debug().Str("board", r.id).Msg("dropping frame for slow subscriber")
		}
	}
}
