package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/weft/internal/repo"
)

var branchRevision string

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches",
}

var branchListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List branches and their targets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		_, v, err := r.Head(cmd.Context())
		if err != nil {
			return err
		}
		st := outputStyles(cmd, r.Config())
		out := cmd.OutOrStdout()
		for _, name := range v.BranchNames() {
			targets := v.BranchTargets(name)
			shorts := make([]string, len(targets))
			for i, id := range targets {
				shorts[i] = st.id.Render(id.Short())
			}
			line := st.branch.Render(name) + ": " + strings.Join(shorts, " ")
			if len(targets) > 1 {
				line += " " + st.conflict.Render("(divergent)")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var branchSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Point a branch at a commit, creating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		return withTransaction(cmd, fmt.Sprintf("point branch %s to commit", name), func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error {
			id, err := resolveOne(ctx, tx, branchRevision)
			if err != nil {
				return err
			}
			return tx.SetBranch(name, id)
		})
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete NAME...",
	Short: "Delete branches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTransaction(cmd, "delete branch "+strings.Join(args, ", "), func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error {
			for _, name := range args {
				if err := tx.DeleteBranch(name); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	branchSetCmd.Flags().StringVarP(&branchRevision, "revision", "r", "@", "commit to point the branch at")
	branchCmd.AddCommand(branchListCmd, branchSetCmd, branchDeleteCmd)
	rootCmd.AddCommand(branchCmd)
}
