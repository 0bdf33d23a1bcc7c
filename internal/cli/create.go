package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/protocol"
)

func newCreateCmd() *cobra.Command {
	var (
		boardID     string
		title       string
		description string
		priority    string
		status      string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task and wait for the server's echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boardID == "" || title == "" {
				return fmt.Errorf("--board and --title are required")
			}
			st := protocol.Status(status)
			if !st.Known() {
				return fmt.Errorf("unknown status %q", status)
			}
			ctx := cmd.Context()
			cfg := config.MustFromContext(ctx)
			_, token, err := credentials(ctx, cfg)
			if err != nil {
				return err
			}

			// The id is minted here so the create is idempotent: if the
			// frame is replayed, the board still ends up with one task.
			task := protocol.Task{
				ID:          uuid.NewString(),
				Title:       title,
				Description: description,
				Status:      st,
				Priority:    priority,
			}

			confirmed := make(chan struct{})
			var once sync.Once
			sess := newSyncSession(cfg, sessionHooks{
				onTaskCreated: func(m protocol.TaskCreated) {
					if m.Task.ID == task.ID {
						once.Do(func() { close(confirmed) })
					}
				},
			})
			if err := sess.mgr.Connect(boardID, token); err != nil {
				return err
			}
			defer sess.mgr.Disconnect()

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := waitFor(waitCtx, sess.rec.ReceivedInitialState); err != nil {
				return fmt.Errorf("no board snapshot received: %w", err)
			}

			sess.mgr.Send(protocol.TaskCreate{Task: task})

			select {
			case <-confirmed:
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", task.ID)
				return nil
			case <-waitCtx.Done():
				return fmt.Errorf("no confirmation for task %s within %s", task.ID, timeout)
			}
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "Board ID")
	cmd.Flags().StringVar(&title, "title", "", "Task title")
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().StringVar(&priority, "priority", "", "Task priority (low, medium, high)")
	cmd.Flags().StringVar(&status, "status", "inbox", "Initial status")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the server's echo")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
