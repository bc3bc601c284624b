// Package main is the entry point for the ordering assistant.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	LogLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Conversational ordering assistant for a grocery shop",
		Long: `Serves many customers at once, keeping a draft order per customer,
reserving stock against a shared inventory and committing orders to the
backing store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newConsoleCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
