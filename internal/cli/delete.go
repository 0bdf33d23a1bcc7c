package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/apiclient"
	"github.com/gosuda/boardsync/internal/config"
)

func newDeleteCmd() *cobra.Command {
	var (
		boardID string
		taskID  string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boardID == "" || taskID == "" {
				return fmt.Errorf("--board and --task are required")
			}
			ctx := cmd.Context()
			cfg := config.MustFromContext(ctx)
			src, _, err := credentials(ctx, cfg)
			if err != nil {
				return err
			}

			client, err := apiclient.New(cfg.API.BaseURL, src)
			if err != nil {
				return err
			}
			if err := client.DeleteTask(ctx, boardID, taskID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", taskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "Board ID")
	cmd.Flags().StringVar(&taskID, "task", "", "Task ID")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}
