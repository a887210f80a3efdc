package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [REVISION]",
	Short: "Show a commit and the paths it changed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr := "@"
		if len(args) == 1 {
			expr = args[0]
		}
		r, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer r.Close()
		ctx := cmd.Context()

		tx, err := r.Start(ctx, "show")
		if err != nil {
			return err
		}
		defer tx.Abort()
		id, err := resolveOne(ctx, tx, expr)
		if err != nil {
			return err
		}
		b := r.Backend()
		c, err := b.ReadCommit(id)
		if err != nil {
			return err
		}
		parentTree, err := b.ParentTree(c)
		if err != nil {
			return err
		}
		changes, err := b.DiffTrees(parentTree, c.Tree)
		if err != nil {
			return err
		}

		st := outputStyles(cmd, r.Config())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Commit ID: %s\n", st.id.Render(c.ID.Hex()))
		fmt.Fprintf(out, "Change ID: %s\n", st.change.Render(c.ChangeID))
		for _, p := range c.Parents {
			fmt.Fprintf(out, "Parent:    %s\n", p.Hex())
		}
		for _, p := range c.Predecessors {
			fmt.Fprintf(out, "Replaces:  %s\n", p.Hex())
		}
		fmt.Fprintf(out, "Author:    %s <%s> (%s)\n", c.Author.Name, c.Author.Email, humanize.Time(c.Author.Timestamp))
		fmt.Fprintf(out, "Committer: %s <%s> (%s)\n", c.Committer.Name, c.Committer.Email, humanize.Time(c.Committer.Timestamp))
		fmt.Fprintln(out)
		desc := strings.TrimRight(c.Description, "\n")
		if desc == "" {
			desc = st.dim.Render("(no description set)")
		}
		for _, line := range strings.Split(desc, "\n") {
			fmt.Fprintf(out, "    %s\n", line)
		}
		fmt.Fprintln(out)
		for _, ch := range changes {
			letter := changeLetter(ch)
			if letter == "C" {
				letter = st.conflict.Render(letter)
			}
			fmt.Fprintf(out, "%s %s\n", letter, ch.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
