package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/habitctl/pkg/crypto"
	"github.com/forest6511/habitctl/pkg/vault"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, crypto.DefaultParams(), cfg.KDF.Params())
	assert.Equal(t, vault.DefaultMinPasswordLength, cfg.MinPasswordLength)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
data_dir: `+dataDir+`
log_level: debug
min_password_length: 12
kdf:
  memory_kib: 16384
  iterations: 2
  parallelism: 1
`)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 12, cfg.MinPasswordLength)
	assert.Equal(t, crypto.Params{Memory: 16384, Iterations: 2, Parallelism: 1}, cfg.KDF.Params())

	dir, err := cfg.VaultDir()
	require.NoError(t, err)
	assert.Equal(t, dataDir, dir)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, Default().KDF, cfg.KDF)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: info\nmin_password_length: 10\n")
	t.Setenv("HABITCTL_LOG_LEVEL", "error")
	t.Setenv("HABITCTL_KDF_ITERATIONS", "5")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 10, cfg.MinPasswordLength)
	assert.Equal(t, uint32(5), cfg.KDF.Iterations)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "colour: blue\n"},
		{"bad level", "log_level: loud\n"},
		{"zero min length", "min_password_length: 0\n"},
		{"weak kdf", "kdf:\n  memory_kib: 1\n"},
		{"kdf memory above file limit", "kdf:\n  memory_kib: 2097152\n"},
		{"kdf iterations above file limit", "kdf:\n  iterations: 17\n"},
		{"relative data dir", "data_dir: relative/path\n"},
		{"malformed yaml", "log_level: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), true)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("HABITCTL_MIN_PASSWORD_LENGTH", "many")
	_, err := Load("", false)
	assert.Error(t, err)
}
