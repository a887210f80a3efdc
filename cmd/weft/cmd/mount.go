package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	weftfuse "github.com/systemshift/weft/internal/fuse"
)

var mountDebug bool

var mountCmd = &cobra.Command{
	Use:   "mount MOUNTPOINT",
	Short: "Mount the repository as a read-only filesystem",
	Long: `Mounts the repository at MOUNTPOINT until interrupted. The tree follows
the repository as it changes:

  op/HEAD            current operation id
  op/0, op/1, ...    operations, newest first (JSON)
  heads/<id>         visible heads, linked into commits/
  branches/<name>    branch targets, one id per line
  commits/<id>       commit metadata (JSON)
  revsets/<expr>/    commits selected by a revset ('/' written as %2F)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountpoint := args[0]
		if err := os.MkdirAll(mountpoint, 0o755); err != nil {
			return fmt.Errorf("create mountpoint: %w", err)
		}
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		server, err := weftfuse.Mount(mountpoint, r, weftfuse.Options{Debug: mountDebug, Logger: slog.Default()})
		if err != nil {
			return fmt.Errorf("mount failed: %w", err)
		}
		go func() {
			<-cmd.Context().Done()
			slog.Info("unmounting", "mountpoint", mountpoint)
			if err := server.Unmount(); err != nil {
				slog.Error("unmount failed", "error", err)
			}
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Mounted at %s (pid %d)\n", mountpoint, os.Getpid())
		server.Wait()
		return nil
	},
}

func init() {
	mountCmd.Flags().BoolVar(&mountDebug, "debug", false, "log every FUSE request")
	rootCmd.AddCommand(mountCmd)
}
