package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/systemshift/weft/internal/config"
	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/repo"
)

// loadConfig layers the user config, the repository config under root
// (if any) and --config, then applies --color.
func loadConfig(root string) (*config.Config, error) {
	paths := []string{config.UserPath()}
	if root != "" {
		paths = append(paths, filepath.Join(root, repo.DirName, config.FileName))
	}
	paths = append(paths, configPath)
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if colorMode != "" {
		cfg.UI.Color = colorMode
		if errs := config.Validate(cfg); len(errs) > 0 {
			return nil, &config.ValidationError{Errors: errs}
		}
	}
	return cfg, nil
}

// newLogger logs to stderr at the configured level, or debug with -v.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// repoRoot returns -R or the nearest enclosing repository.
func repoRoot() (string, error) {
	if repoPath != "" {
		return filepath.Abs(repoPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := repo.Find(wd)
	if err != nil {
		return "", fmt.Errorf("no repository found in %s or its parents (run 'weft init'): %w", wd, err)
	}
	return root, nil
}

// openRepo opens the repository the command operates on. The caller
// closes it.
func openRepo(cmd *cobra.Command) (*repo.Repository, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	return repo.Open(cmd.Context(), root, repo.WithConfig(cfg), repo.WithLogger(logger))
}

// withTransaction runs fn in a transaction and commits it.
func withTransaction(cmd *cobra.Command, description string, fn func(ctx context.Context, r *repo.Repository, tx *repo.Transaction) error) error {
	r, err := openRepo(cmd)
	if err != nil {
		return err
	}
	defer r.Close()
	ctx := cmd.Context()
	tx, err := r.Start(ctx, description)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := fn(ctx, r, tx); err != nil {
		return err
	}
	_, err = tx.Commit(ctx)
	return err
}

// resolveOne evaluates a revset that must name exactly one commit.
func resolveOne(ctx context.Context, tx *repo.Transaction, expr string) (dag.ID, error) {
	rs, err := tx.Query(ctx, expr)
	if err != nil {
		return dag.ID{}, err
	}
	ids, err := rs.IDs()
	if err != nil {
		return dag.ID{}, err
	}
	switch len(ids) {
	case 0:
		return dag.ID{}, fmt.Errorf("revset %q resolved to no commits", expr)
	case 1:
		return ids[0], nil
	}
	return dag.ID{}, fmt.Errorf("revset %q resolved to %d commits, expected one", expr, len(ids))
}

// styles colors terminal output.
type styles struct {
	id, change, author, time, branch, workingCopy, conflict, dim lipgloss.Style
}

func newStyles(w io.Writer, useColor bool) *styles {
	r := lipgloss.NewRenderer(w)
	switch {
	case !useColor:
		r.SetColorProfile(termenv.Ascii)
	case r.ColorProfile() == termenv.Ascii:
		r.SetColorProfile(termenv.ANSI256)
	}
	return &styles{
		id:          r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		change:      r.NewStyle().Foreground(lipgloss.Color("13")),
		author:      r.NewStyle().Foreground(lipgloss.Color("3")),
		time:        r.NewStyle().Foreground(lipgloss.Color("6")),
		branch:      r.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
		workingCopy: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		conflict:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:         r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// outputStyles returns styles for the command's stdout.
func outputStyles(cmd *cobra.Command, cfg *config.Config) *styles {
	out := cmd.OutOrStdout()
	var useColor bool
	if f, ok := out.(*os.File); ok {
		useColor = cfg.UseColor(f.Fd())
	} else {
		useColor = cfg.UI.Color == "always"
	}
	return newStyles(out, useColor)
}
