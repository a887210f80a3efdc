package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var opLimit int

var opCmd = &cobra.Command{
	Use:   "op",
	Short: "Inspect and undo operations",
}

var opLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the operation log, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		ops, err := r.Operations(cmd.Context(), opLimit)
		if err != nil {
			return err
		}
		st := outputStyles(cmd, r.Config())
		now := time.Now()
		for i, o := range ops {
			writeOperation(cmd.OutOrStdout(), st, o, i == 0, now)
		}
		return nil
	},
}

var opUndoCmd = &cobra.Command{
	Use:   "undo [OPERATION]",
	Short: "Undo an operation, keeping everything done since",
	Long: `Records a new operation that reverses the named operation (default "@",
the latest). Operations are named by id prefix, "@", and trailing "-" for
parents, e.g. "@--".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "@"
		if len(args) == 1 {
			name = args[0]
		}
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		o, err := r.Undo(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Undid operation %s\n", o.Metadata.Tags["undone"][:12])
		return nil
	},
}

var opRestoreCmd = &cobra.Command{
	Use:   "restore OPERATION",
	Short: "Restore the repository to the state after an operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		o, err := r.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored to operation %s\n", o.Metadata.Tags["restored"][:12])
		return nil
	},
}

var opWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print each new operation as it is recorded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		ctx := cmd.Context()
		heads, err := r.WatchHead(ctx)
		if err != nil {
			return err
		}
		st := outputStyles(cmd, r.Config())
		first := true
		for id := range heads {
			if first {
				first = false
				continue
			}
			o, err := r.OpLog().ReadOperation(id)
			if err != nil {
				return err
			}
			writeOperation(cmd.OutOrStdout(), st, o, true, time.Now())
		}
		return nil
	},
}

func init() {
	opLogCmd.Flags().IntVarP(&opLimit, "limit", "n", 0, "show at most this many operations")
	opCmd.AddCommand(opLogCmd, opUndoCmd, opRestoreCmd, opWatchCmd)
	rootCmd.AddCommand(opCmd)
}
