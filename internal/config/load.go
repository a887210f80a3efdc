package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/systemshift/weft/internal/revset"
)

// FileName is the name of a configuration file, both in the user config
// directory and in a repository's .weft directory.
const FileName = "config.yaml"

// UserPath returns the per-user configuration file, or "" if the platform
// has no config directory.
func UserPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "weft", FileName)
}

// Load starts from Default and applies each file in order; keys set by a
// later file override earlier ones. Missing files are skipped. Environment
// overrides are applied last and the result is validated.
func Load(paths ...string) (*Config, error) {
	cfg := Default()
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	for env, field := range map[string]*string{
		"WEFT_USER":     &cfg.User.Name,
		"WEFT_EMAIL":    &cfg.User.Email,
		"WEFT_HOSTNAME": &cfg.Operation.Hostname,
		"WEFT_USERNAME": &cfg.Operation.Username,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*field = v
		}
	}
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness and returns every
// problem found.
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.User.Email != "" && !strings.Contains(cfg.User.Email, "@") {
		errs = append(errs, fmt.Sprintf("user.email: %q is not an email address", cfg.User.Email))
	}

	switch cfg.UI.Color {
	case "auto", "always", "never":
	default:
		errs = append(errs, fmt.Sprintf("ui.color: invalid value %q, must be one of: auto, always, never", cfg.UI.Color))
	}

	switch strings.ToLower(cfg.UI.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("ui.log-level: invalid value %q, must be one of: debug, info, warn, error", cfg.UI.LogLevel))
	}

	switch cfg.Storage.Backend {
	case "file", "badger":
	default:
		errs = append(errs, fmt.Sprintf("storage.backend: invalid value %q, must be one of: file, badger", cfg.Storage.Backend))
	}

	switch cfg.Storage.Compression {
	case "none":
	case "zstd":
		if cfg.Storage.Backend == "badger" {
			errs = append(errs, "storage.compression: zstd applies to the file backend only")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.compression: invalid value %q, must be one of: none, zstd", cfg.Storage.Compression))
	}

	if cfg.Storage.CacheSize < 0 {
		errs = append(errs, fmt.Sprintf("storage.cache-size: must not be negative, got %d", cfg.Storage.CacheSize))
	}

	if err := revset.CheckAliases(cfg.RevsetAliases); err != nil {
		errs = append(errs, fmt.Sprintf("revset-aliases: %v", err))
	} else if cfg.UI.DefaultRevset != "" {
		if _, err := revset.ParseWithAliases(cfg.UI.DefaultRevset, cfg.RevsetAliases); err != nil {
			errs = append(errs, fmt.Sprintf("ui.default-revset: %v", err))
		}
	}

	return errs
}
