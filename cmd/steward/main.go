// Steward: multi-tenant company membership, locations and notifications.
package main

import (
	"fmt"
	"os"

	"github.com/d9705996/steward/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steward",
		Short: "Company membership, locations and notifications service",
		Long: `Steward manages company memberships and roles, company locations with
per-user primary assignments, and in-app notifications fanned out from
domain events.

Configuration is read from the environment (and a .env file when present).`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		cleanupCmd(),
		userCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return cmd
}
