// Package config loads weft's YAML configuration.
package config

import (
	"log/slog"
	"os"
	"os/user"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config is the merged configuration of the user file, the repository file
// and the environment.
type Config struct {
	User          User              `yaml:"user"`
	UI            UI                `yaml:"ui"`
	Storage       Storage           `yaml:"storage"`
	Operation     Operation         `yaml:"operation"`
	RevsetAliases map[string]string `yaml:"revset-aliases,omitempty"`
}

// User is the identity stamped on new commits.
type User struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// UI controls terminal output.
type UI struct {
	Color         string `yaml:"color"` // "auto", "always", "never"
	LogLevel      string `yaml:"log-level"`
	DefaultRevset string `yaml:"default-revset"`
}

// Storage selects how a new repository stores objects. An existing
// repository keeps the backend recorded when it was created.
type Storage struct {
	Backend     string `yaml:"backend"`     // "file", "badger"
	Compression string `yaml:"compression"` // "none", "zstd"
	CacheSize   int    `yaml:"cache-size"`
}

// Operation overrides the host and user recorded on operations.
type Operation struct {
	Hostname string `yaml:"hostname,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UI: UI{
			Color:         "auto",
			LogLevel:      "warn",
			DefaultRevset: "@ | ancestors(visible_heads(), 10)",
		},
		Storage: Storage{
			Backend:     "file",
			Compression: "none",
		},
		RevsetAliases: map[string]string{},
	}
}

// UseColor reports whether output written to fd should be colored.
func (c *Config) UseColor(fd uintptr) bool {
	switch c.UI.Color {
	case "always":
		return true
	case "never":
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// LogLevel returns the slog level named by ui.log-level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.UI.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

// Hostname returns operation.hostname, falling back to the machine name.
func (c *Config) Hostname() string {
	if c.Operation.Hostname != "" {
		return c.Operation.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// Username returns operation.username, falling back to the login name.
func (c *Config) Username() string {
	if c.Operation.Username != "" {
		return c.Operation.Username
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// Signature returns the configured user as "Name <email>".
func (c *Config) Signature() string {
	return strings.TrimSpace(c.User.Name + " <" + c.User.Email + ">")
}
