package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/protocol"
)

func newMoveCmd() *cobra.Command {
	var (
		boardID string
		taskID  string
		status  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a task to another column and wait for the server's echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boardID == "" || taskID == "" || status == "" {
				return fmt.Errorf("--board, --task, and --status are required")
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

			confirmed := make(chan struct{})
			var once sync.Once
			sess := newSyncSession(cfg, sessionHooks{
				onTaskUpdated: func(m protocol.TaskUpdated) {
					if m.TaskID == taskID {
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

			// Applied locally right away; the send is fire-and-forget.
			sess.rec.Move(taskID, st)

			select {
			case <-confirmed:
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s moved to %s\n", taskID, st)
				return nil
			case <-waitCtx.Done():
				return fmt.Errorf("no confirmation for task %s within %s", taskID, timeout)
			}
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "Board ID")
	cmd.Flags().StringVar(&taskID, "task", "", "Task ID")
	cmd.Flags().StringVar(&status, "status", "", "Target status (inbox, assigned, in_progress, blocked, review, done)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the confirming update")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}
