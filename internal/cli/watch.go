package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/apiclient"
	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/protocol"
	"github.com/gosuda/boardsync/internal/realtime"
	"github.com/gosuda/boardsync/internal/session"
)

func newWatchCmd() *cobra.Command {
	var boardID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a board live, re-rendering on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boardID == "" {
				return fmt.Errorf("--board is required")
			}
			ctx := cmd.Context()
			cfg := config.MustFromContext(ctx)
			src, token, err := credentials(ctx, cfg)
			if err != nil {
				return err
			}
			if exp := session.ExpiryOf(token); !exp.IsZero() && time.Until(exp) < time.Hour {
				log.Warn().Time("expires_at", exp).Msg("token expires soon; the session will end with close code 4001")
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			var sess *syncSession

			render := func() {
				mu.Lock()
				defer mu.Unlock()
				renderBoard(out, boardID, sess.rec.Tasks(), sess.rec.Suggestions())
			}

			sess = newSyncSession(cfg, sessionHooks{
				onChange: func() { render() },
				onState: func(st realtime.State) {
					mu.Lock()
					fmt.Fprintf(out, "-- connection: %s\n", st)
					mu.Unlock()
				},
			})

			// Seed from REST so the board shows before the socket is up.
			// The first live snapshot supersedes it either way.
			client, err := apiclient.New(cfg.API.BaseURL, src)
			if err != nil {
				return err
			}
			if seed, seedErr := client.ListTasks(ctx, boardID); seedErr == nil {
				sess.rec.SetSeed(seed)
				render()
			} else {
				log.Warn().Err(seedErr).Msg("seed fetch failed, waiting for live snapshot")
			}

			if err := sess.mgr.Connect(boardID, token); err != nil {
				return err
			}
			defer sess.mgr.Disconnect()

			<-ctx.Done()
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "Board ID")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

var statusOrder = []protocol.Status{
	protocol.StatusInbox,
	protocol.StatusAssigned,
	protocol.StatusInProgress,
	protocol.StatusBlocked,
	protocol.StatusReview,
	protocol.StatusDone,
}

func renderBoard(w io.Writer, boardID string, tasks []protocol.Task, suggestions []protocol.Suggestion) {
	fmt.Fprintf(w, "\n=== %s: %d tasks ===\n", boardID, len(tasks))
	for _, status := range statusOrder {
		var column []protocol.Task
		for _, task := range tasks {
			if task.Status == status {
				column = append(column, task)
			}
		}
		if len(column) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%d)\n", status, len(column))
		for _, task := range column {
			fmt.Fprintln(w, taskLine(task))
		}
	}

	// Tasks in states this client doesn't know stay visible instead of
	// silently vanishing from the board.
	var other []protocol.Task
	for _, task := range tasks {
		if !task.Status.Known() {
			other = append(other, task)
		}
	}
	if len(other) > 0 {
		fmt.Fprintf(w, "other (%d)\n", len(other))
		for _, task := range other {
			fmt.Fprintf(w, "%s <%s>\n", taskLine(task), task.Status)
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintln(w, "suggestions:")
		for _, s := range suggestions {
			fmt.Fprintf(w, "  * %s\n", s.Text)
		}
	}
}

func taskLine(task protocol.Task) string {
	line := fmt.Sprintf("  [%s] %s", task.ID, task.Title)
	if task.Priority != "" {
		line += " !" + task.Priority
	}
	if task.AssignedAgentID != "" {
		line += " @" + task.AssignedAgentID
	}
	return line
}
