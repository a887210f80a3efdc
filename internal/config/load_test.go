package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.UI.Color)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel())
	assert.Empty(t, Validate(Default()))
}

func TestLoad_LayersOverride(t *testing.T) {
	userFile := writeConfig(t, `
user:
  name: Ann Lee
  email: ann@example.com
ui:
  color: never
revset-aliases:
  trunk: main
`)
	repoFile := writeConfig(t, `
user:
  email: ann@work.example.com
storage:
  backend: badger
revset-aliases:
  mine: author(ann)
`)
	cfg, err := Load(userFile, repoFile)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", cfg.User.Name)
	assert.Equal(t, "ann@work.example.com", cfg.User.Email)
	assert.Equal(t, "never", cfg.UI.Color)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, map[string]string{"trunk": "main", "mine": "author(ann)"}, cfg.RevsetAliases)
	assert.Equal(t, "Ann Lee <ann@work.example.com>", cfg.Signature())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEFT_USER", "Env User")
	t.Setenv("WEFT_EMAIL", "env@example.com")
	t.Setenv("WEFT_HOSTNAME", "buildhost")
	t.Setenv("WEFT_USERNAME", "ci")

	cfg, err := Load(writeConfig(t, "user:\n  name: File User\n"))
	require.NoError(t, err)
	assert.Equal(t, "Env User", cfg.User.Name)
	assert.Equal(t, "env@example.com", cfg.User.Email)
	assert.Equal(t, "buildhost", cfg.Hostname())
	assert.Equal(t, "ci", cfg.Username())
}

func TestLoad_ParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "ui: [not, a, map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_ValidationCollectsEveryProblem(t *testing.T) {
	_, err := Load(writeConfig(t, `
user:
  email: nobody
ui:
  color: sometimes
  log-level: loud
storage:
  backend: s3
  compression: lz4
  cache-size: -1
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 6)
	assert.Contains(t, err.Error(), "ui.color")
	assert.Contains(t, err.Error(), "storage.cache-size")
}

func TestValidate_Revsets(t *testing.T) {
	cfg := Default()
	cfg.RevsetAliases = map[string]string{"loop": "loop-"}
	errs := Validate(cfg)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "revset-aliases")

	cfg = Default()
	cfg.UI.DefaultRevset = "heads(::"
	errs = Validate(cfg)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "ui.default-revset")

	cfg = Default()
	cfg.RevsetAliases = map[string]string{"trunk": "main"}
	cfg.UI.DefaultRevset = "trunk::"
	assert.Empty(t, Validate(cfg))
}

func TestValidate_ZstdNeedsFileBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "badger"
	cfg.Storage.Compression = "zstd"
	errs := Validate(cfg)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "file backend only")
}

func TestUseColor(t *testing.T) {
	cfg := Default()
	cfg.UI.Color = "always"
	assert.True(t, cfg.UseColor(0))
	cfg.UI.Color = "never"
	assert.False(t, cfg.UseColor(0))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	cfg.UI.Color = "auto"
	assert.False(t, cfg.UseColor(f.Fd()), "regular files are not terminals")
}
