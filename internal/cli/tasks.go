package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/apiclient"
	"github.com/gosuda/boardsync/internal/config"
)

func newTasksCmd() *cobra.Command {
	var boardID string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List a board's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boardID == "" {
				return fmt.Errorf("--board is required")
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
			tasks, err := client.ListTasks(ctx, boardID)
			if err != nil {
				return err
			}

			renderBoard(cmd.OutOrStdout(), boardID, tasks, nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "", "Board ID")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}
