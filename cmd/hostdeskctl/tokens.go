package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPurgeTokensCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete expired password-reset and email-change tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := database.Queries().DeleteExpiredSplitTokens(cmd.Context(), time.Now().UnixMilli())
			if err != nil {
				return fmt.Errorf("purge tokens: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired token(s)\n", n)
			return nil
		},
	}
}
