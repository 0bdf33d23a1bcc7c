package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/devserver"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		secret  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a dev server token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustFromContext(cmd.Context())
			signWith := secret
			if signWith == "" {
				signWith = cfg.Dev.JWTSecret
			}
			if signWith == "" {
				signWith = devserver.DefaultJWTSecret
			}

			token, err := devserver.MintToken(signWith, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "dev-user", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default: BOARDSYNC_DEV_JWT_SECRET)")
	return cmd
}
