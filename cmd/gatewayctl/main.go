// gatewayctl manages gateway credentials and channels from the command line.
//
// Usage:
//
//	gatewayctl token generate
//	gatewayctl token inspect scr_...
//	gatewayctl token issue --repo my-org/my-repo
//	gatewayctl token revoke scr_...
//	gatewayctl channel test --kind slack --url https://hooks.slack.com/...
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version     = "dev"
	databaseDSN string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Manage the concurrency warning gateway",
		Long: `gatewayctl issues and revokes repository API tokens and checks
notification channel endpoints.

Commands that touch the token store read DATABASE_DSN unless --dsn is set.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&databaseDSN, "dsn", os.Getenv("DATABASE_DSN"), "Postgres DSN of the gateway database")

	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(channelCmd())

	return rootCmd
}
