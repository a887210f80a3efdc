package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	logRevset string
	logLimit  int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commits selected by a revset",
	Long: `Lists the commits a revset selects, newest first. Without -r the
ui.default-revset setting is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		ctx := cmd.Context()

		expr := logRevset
		if expr == "" {
			expr = r.Config().UI.DefaultRevset
		}
		_, v, err := r.Head(ctx)
		if err != nil {
			return err
		}
		rs, err := r.Query(ctx, v, expr)
		if err != nil {
			return err
		}

		st := outputStyles(cmd, r.Config())
		refs := newRefNames(v)
		wc, _ := v.WorkspaceCommit(r.Workspace())
		root := r.Backend().RootCommitID()
		now := time.Now()
		out := cmd.OutOrStdout()
		n := 0
		for id, err := range rs.Iter() {
			if err != nil {
				return err
			}
			if logLimit > 0 && n == logLimit {
				break
			}
			c, err := r.Backend().ReadCommit(id)
			if err != nil {
				return err
			}
			conflict, err := r.Backend().HasConflicts(id)
			if err != nil {
				return err
			}
			writeCommit(out, st, commitEntry{commit: c, workingCopy: id == wc, conflict: conflict, root: id == root}, refs, now)
			n++
		}
		if n == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No commits match.")
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVarP(&logRevset, "revisions", "r", "", "revset to show")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "show at most this many commits")
	rootCmd.AddCommand(logCmd)
}
