package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/systemshift/weft/internal/config"
	"github.com/systemshift/weft/internal/repo"
)

var (
	initBackend     string
	initCompression string
)

var initCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Create a new repository",
	Long: `Creates a repository in PATH (default: the current directory). The
storage backend and compression come from the config unless given here.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		root, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", root, err)
		}
		cfg, err := loadConfig("")
		if err != nil {
			return err
		}
		if initBackend != "" {
			cfg.Storage.Backend = initBackend
		}
		if initCompression != "" {
			cfg.Storage.Compression = initCompression
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			return &config.ValidationError{Errors: errs}
		}

		r, err := repo.Init(cmd.Context(), root, repo.WithConfig(cfg), repo.WithLogger(newLogger(cfg)))
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized repository in %s\n", root)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", "", "storage backend: file or badger")
	initCmd.Flags().StringVar(&initCompression, "compression", "", "object compression for the file backend: none or zstd")
	rootCmd.AddCommand(initCmd)
}
