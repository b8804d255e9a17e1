// Command queuectl operates a clinic queue from the shell: pause and resume
// locations, print the board, finish stuck visits, migrate the schema and seed
// demo data.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "queuectl",
		Short:        "Clinic queue operations",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "directory holding config.yml")
	rootCmd.PersistentFlags().String("actor", "queuectl", "actor recorded in the audit log")

	rootCmd.AddCommand(pauseCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(forceCompleteCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
