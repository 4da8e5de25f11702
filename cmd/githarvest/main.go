// Package main provides the entry point for the githarvest CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/githarvest/cmd/githarvest/commands"
	"github.com/Sumatoshi-tech/githarvest/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "githarvest",
		Short: "Incremental git history extraction",
		Long: `githarvest extracts commits, file patches, rewrite lineage and branch
membership from a local git repository, processing only history that
appeared since the previous run.

Commands:
  extract   Run one incremental extraction
  snapshot  Print the current reference state`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewExtractCommand())
	rootCmd.AddCommand(commands.NewSnapshotCommand())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
