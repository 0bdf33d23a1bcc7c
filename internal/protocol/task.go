package protocol

import "time"

// Status is a task's kanban column. The vocabulary is fixed by the board
// protocol; clients must not invent values.
type Status string

const (
	StatusInbox      Status = "inbox"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Known reports whether s is part of the protocol's status vocabulary.
func (s Status) Known() bool {
	switch s {
	case StatusInbox, StatusAssigned, StatusInProgress, StatusBlocked, StatusReview, StatusDone:
		return true
	default:
		return false
	}
}

// Task mirrors one server-side task. The id is an opaque stable identifier;
// assigned_agent_id is a weak reference to an agent entity owned elsewhere.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Status          Status     `json:"status"`
	Priority        string     `json:"priority"`
	Description     string     `json:"description,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	AssignedAgentID string     `json:"assigned_agent_id,omitempty"`
}

// TaskPatch is a sparse update: only non-nil fields are applied.
// PreviousStatus is informational (set by the server on moves) and is
// never written back to the task.
type TaskPatch struct {
	Title           *string    `json:"title,omitempty"`
	Status          *Status    `json:"status,omitempty"`
	Priority        *string    `json:"priority,omitempty"`
	Description     *string    `json:"description,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	AssignedAgentID *string    `json:"assigned_agent_id,omitempty"`
	PreviousStatus  *Status    `json:"previous_status,omitempty"`
}

// Apply copies the patch's present fields onto t, leaving the rest alone.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueAt != nil {
		t.DueAt = p.DueAt
	}
	if p.AssignedAgentID != nil {
		t.AssignedAgentID = *p.AssignedAgentID
	}
}

// Suggestion is an ephemeral AI-generated hint pushed alongside board
// events. Arrival order implies recency; there is no timestamp on the wire.
type Suggestion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
