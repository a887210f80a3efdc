package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	repoPath   string
	configPath string
	colorMode  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Version control with an undoable operation log",
	Long: `weft records every change to a repository as an operation in an
append-only log. Concurrent writers never block each other: their views are
merged, and any operation can be undone.

Commits are selected with revsets, e.g. "main::@" or "author(alice) & ~merges()".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "weft %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repository", "R", "", "path to the repository (default: search upward from the current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "additional config file, applied last")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "", "when to color output: always, never or auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
