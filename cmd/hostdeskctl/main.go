// hostdeskctl is the operator CLI for a hostdesk database: plan import,
// token maintenance and key generation.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kuitang/hostdesk/internal/crypto"
	"github.com/kuitang/hostdesk/internal/db"
	"github.com/kuitang/hostdesk/internal/obs"
)

func main() {
	_ = godotenv.Load()
	obs.Init()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	dbPath    string
	masterKey string
}

func (o *globalOptions) openDB() (*db.DB, error) {
	keyHex, err := crypto.DatabaseKeyHex(o.masterKey)
	if err != nil {
		return nil, fmt.Errorf("derive database key: %w", err)
	}
	return db.Open(o.dbPath, keyHex)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:          "hostdeskctl",
		Short:        "hostdesk operator tool",
		Long:         "hostdeskctl manages webhosting plans and split tokens directly in a hostdesk database.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", envOr("DATABASE_PATH", "./hostdesk.db"), "SQLite database path (DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&opts.masterKey, "master-key", os.Getenv("MASTER_KEY"), "64 hex character master key (MASTER_KEY)")

	rootCmd.AddCommand(
		newPlansCmd(opts),
		newPurgeTokensCmd(opts),
		newGenMasterKeyCmd(),
	)
	return rootCmd
}

func newGenMasterKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-master-key",
		Short: "Print a new random MASTER_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, crypto.MasterKeySize)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
