package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/repo"
)

var (
	newMessage      string
	describeMessage string
	rebaseRevision  string
	rebaseDest      []string
)

var newCmd = &cobra.Command{
	Use:   "new [REVISION...]",
	Short: "Start a new commit on top of one or more parents",
	Long: `Creates an empty commit whose parents are the given revisions (default
"@") and moves the working copy to it. With several parents the new commit
is a merge; conflicting parent changes are recorded in its tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"@"}
		}
		var created *dag.Commit
		err := withTransaction(cmd, "new commit", func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error {
			parents, err := resolveEach(ctx, tx, args)
			if err != nil {
				return err
			}
			tree, err := tx.MergedTree(ctx, parents)
			if err != nil {
				return err
			}
			if created, err = tx.NewCommit(ctx, parents, tree, newlineTerminated(newMessage)); err != nil {
				return err
			}
			return tx.SetWorkspaceCommit(r.Workspace(), created.ID)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Working copy now at: %s\n", created.ID.Short())
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [REVISION]",
	Short: "Set the description of a commit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr := "@"
		if len(args) == 1 {
			expr = args[0]
		}
		var described *dag.Commit
		err := withTransaction(cmd, "describe commit", func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error {
			id, err := resolveOne(ctx, tx, expr)
			if err != nil {
				return err
			}
			tx.SetTag("args", "describe "+expr)
			described, err = tx.Describe(ctx, id, newlineTerminated(describeMessage))
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Described %s\n", described.ID.Short())
		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon [REVSET]",
	Short: "Hide commits and rebase their descendants onto their parents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr := "@"
		if len(args) == 1 {
			expr = args[0]
		}
		var abandoned []dag.ID
		err := withTransaction(cmd, "abandon commits", func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error {
			tx.SetTag("args", "abandon "+expr)
			var err error
			abandoned, err = tx.AbandonRevset(ctx, expr)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Abandoned %d commits\n", len(abandoned))
		return nil
	},
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase -r REVISION -d DESTINATION...",
	Short: "Move a commit onto new parents",
	Long: `Moves a commit onto new parents, carrying its changes along. Conflicts
are recorded in the rebased commit instead of stopping the rebase.
Descendants follow.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(rebaseDest) == 0 {
			return fmt.Errorf("at least one destination (-d) is required")
		}
		var moved *dag.Commit
		var conflict bool
		err := withTransaction(cmd, "rebase commit", func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error {
			id, err := resolveOne(ctx, tx, rebaseRevision)
			if err != nil {
				return err
			}
			parents, err := resolveEach(ctx, tx, rebaseDest)
			if err != nil {
				return err
			}
			if moved, err = tx.Rebase(ctx, id, parents); err != nil {
				return err
			}
			conflict, err = r.Backend().HasConflicts(moved.ID)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rebased %s\n", moved.ID.Short())
		if conflict {
			fmt.Fprintln(cmd.OutOrStdout(), "The rebased commit has conflicts.")
		}
		return nil
	},
}

func resolveEach(ctx context.Context, tx *repo.Transaction, exprs []string) ([]dag.ID, error) {
	ids := make([]dag.ID, 0, len(exprs))
	for _, expr := range exprs {
		id, err := resolveOne(ctx, tx, expr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newlineTerminated(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func init() {
	newCmd.Flags().StringVarP(&newMessage, "message", "m", "", "description of the new commit")
	describeCmd.Flags().StringVarP(&describeMessage, "message", "m", "", "the new description")
	describeCmd.MarkFlagRequired("message")
	rebaseCmd.Flags().StringVarP(&rebaseRevision, "revision", "r", "@", "commit to move")
	rebaseCmd.Flags().StringSliceVarP(&rebaseDest, "destination", "d", nil, "new parent(s)")

	rootCmd.AddCommand(newCmd, describeCmd, abandonCmd, rebaseCmd)
}
