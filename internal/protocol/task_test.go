package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/protocol"
)

func TestStatusKnown(t *testing.T) {
	t.Parallel()

	for _, s := range []protocol.Status{
		protocol.StatusInbox,
		protocol.StatusAssigned,
		protocol.StatusInProgress,
		protocol.StatusBlocked,
		protocol.StatusReview,
		protocol.StatusDone,
	} {
		assert.True(t, s.Known(), "status %q", s)
	}

	assert.False(t, protocol.Status("archived").Known())
	assert.False(t, protocol.Status("").Known())
}

func TestTaskPatchApply(t *testing.T) {
	t.Parallel()

	t.Run("patches only set fields", func(t *testing.T) {
		t.Parallel()

		task := protocol.Task{
			ID:       "t1",
			Title:    "Fix login bug",
			Status:   protocol.StatusInProgress,
			Priority: "high",
		}

		status := protocol.StatusDone
		patch := protocol.TaskPatch{Status: &status}
		patch.Apply(&task)

		assert.Equal(t, protocol.StatusDone, task.Status)
		assert.Equal(t, "Fix login bug", task.Title)
		assert.Equal(t, "high", task.Priority)
	})

	t.Run("previous status is informational", func(t *testing.T) {
		t.Parallel()

		task := protocol.Task{ID: "t1", Status: protocol.StatusReview}

		prev := protocol.StatusInProgress
		status := protocol.StatusDone
		patch := protocol.TaskPatch{Status: &status, PreviousStatus: &prev}
		patch.Apply(&task)

		assert.Equal(t, protocol.StatusDone, task.Status)
	})

	t.Run("all fields", func(t *testing.T) {
		t.Parallel()

		due := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
		task := protocol.Task{ID: "t2"}

		title := "Ship v2"
		status := protocol.StatusAssigned
		priority := "medium"
		desc := "cut the release branch"
		agent := "agent-3"
		patch := protocol.TaskPatch{
			Title:           &title,
			Status:          &status,
			Priority:        &priority,
			Description:     &desc,
			DueAt:           &due,
			AssignedAgentID: &agent,
		}
		patch.Apply(&task)

		assert.Equal(t, "Ship v2", task.Title)
		assert.Equal(t, protocol.StatusAssigned, task.Status)
		assert.Equal(t, "medium", task.Priority)
		assert.Equal(t, "cut the release branch", task.Description)
		require.NotNil(t, task.DueAt)
		assert.True(t, task.DueAt.Equal(due))
		assert.Equal(t, "agent-3", task.AssignedAgentID)
	})

	t.Run("empty patch is a no op", func(t *testing.T) {
		t.Parallel()

		task := protocol.Task{ID: "t3", Title: "untouched", Status: protocol.StatusBlocked}
		protocol.TaskPatch{}.Apply(&task)

		assert.Equal(t, protocol.Task{ID: "t3", Title: "untouched", Status: protocol.StatusBlocked}, task)
	})
}
