package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nlsql-gateway",
	Short: "Answer natural language questions about on-chain market data with SQL",
	Long: `nlsql-gateway turns a natural language question into a read-only SQL query
against a Postgres database of on-chain lending and DEX market data, guards the
generated SQL before it ever runs, executes it, and summarizes the result back
into plain English. It can run as a long-lived HTTP service or be driven one
question at a time from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command, wiring cobra's context to the process's
// background context so commands can derive their own cancellation/timeouts.
func Execute() error {
	ctx := context.Background()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(askCmd)
}
