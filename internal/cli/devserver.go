package cli

import (
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/devserver"
)

func newDevserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the local in-memory board server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustFromContext(cmd.Context())
			srv := devserver.New(devserver.Config{
				Addr:            cfg.Dev.Addr,
				JWTSecret:       cfg.Dev.JWTSecret,
				CORSOrigins:     cfg.Dev.CORSOrigins,
				Boards:          cfg.Dev.Boards,
				SuggestInterval: cfg.Dev.SuggestInterval,
			})
			return srv.Run(cmd.Context())
		},
	}
	return cmd
}
