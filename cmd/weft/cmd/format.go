package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/op"
)

const shortChange = 8

// refNames maps commits to the branch and workspace names pointing at them.
type refNames struct {
	branches   map[dag.ID][]string
	workspaces map[dag.ID][]string
}

func newRefNames(v *op.View) *refNames {
	n := &refNames{branches: map[dag.ID][]string{}, workspaces: map[dag.ID][]string{}}
	for _, name := range v.BranchNames() {
		targets := v.BranchTargets(name)
		label := name
		if len(targets) > 1 {
			label += "??"
		}
		for _, id := range targets {
			n.branches[id] = append(n.branches[id], label)
		}
	}
	for _, name := range v.WorkspaceNames() {
		co, _ := v.Workspace(name)
		label := name + "@"
		if co.Conflict {
			label += "!"
		}
		n.workspaces[co.Commit] = append(n.workspaces[co.Commit], label)
	}
	return n
}

// commitEntry is what one line of log output shows about a commit.
type commitEntry struct {
	commit      *dag.Commit
	workingCopy bool
	conflict    bool
	root        bool
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	return s
}

// writeCommit prints a two-line summary of a commit.
func writeCommit(w io.Writer, st *styles, e commitEntry, refs *refNames, now time.Time) {
	c := e.commit
	marker := "o"
	switch {
	case e.workingCopy:
		marker = st.workingCopy.Render("@")
	case e.conflict:
		marker = st.conflict.Render("x")
	}

	fields := []string{marker, st.id.Render(c.ID.Short())}
	if e.root {
		fields = append(fields, st.dim.Render("root()"))
		fmt.Fprintln(w, strings.Join(fields, " "))
		return
	}
	change := c.ChangeID
	if len(change) > shortChange {
		change = change[:shortChange]
	}
	fields = append(fields,
		st.change.Render(change),
		st.author.Render(c.Author.Email),
		st.time.Render(humanize.RelTime(c.Committer.Timestamp, now, "ago", "from now")),
	)
	for _, name := range refs.workspaces[c.ID] {
		fields = append(fields, st.workingCopy.Render(name))
	}
	for _, name := range refs.branches[c.ID] {
		fields = append(fields, st.branch.Render(name))
	}
	if e.conflict {
		fields = append(fields, st.conflict.Render("conflict"))
	}
	fmt.Fprintln(w, strings.Join(fields, " "))

	desc := firstLine(c.Description)
	if desc == "" {
		desc = st.dim.Render("(no description set)")
	}
	fmt.Fprintf(w, "  %s\n", desc)
}

// writeOperation prints a two-line summary of an operation.
func writeOperation(w io.Writer, st *styles, o *op.Operation, current bool, now time.Time) {
	marker := "o"
	if current {
		marker = st.workingCopy.Render("@")
	}
	md := o.Metadata
	fields := []string{
		marker,
		st.id.Render(o.ID.Short()),
		st.author.Render(md.Username + "@" + md.Hostname),
		st.time.Render(humanize.RelTime(md.End, now, "ago", "from now")),
	}
	if o.IsMerge() {
		fields = append(fields, st.conflict.Render("merge"))
	}
	fmt.Fprintln(w, strings.Join(fields, " "))
	fmt.Fprintf(w, "  %s\n", md.Description)
}

// changeLetter is the one-letter summary of a tree change.
func changeLetter(ch dag.TreeChange) string {
	switch {
	case ch.Before.IsAbsent():
		return "A"
	case ch.After.IsAbsent():
		return "D"
	case ch.After.Kind == dag.ValueConflict:
		return "C"
	}
	return "M"
}
