// Package config loads habitctl settings from an optional YAML file and
// HABITCTL_* environment variables. Environment variables win.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/habitctl/internal/logging"
	"github.com/forest6511/habitctl/pkg/crypto"
	"github.com/forest6511/habitctl/pkg/vault"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HABITCTL"

// FileName is the name of the configuration file.
const FileName = "config.yaml"

// maxFileSize bounds the configuration file.
const maxFileSize = 1024 * 1024

// KDF holds Argon2id parameters used for new saves.
type KDF struct {
	MemoryKiB   uint32 `yaml:"memory_kib" envconfig:"MEMORY_KIB"`
	Iterations  uint32 `yaml:"iterations" envconfig:"ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" envconfig:"PARALLELISM"`
}

// Params converts the settings to crypto parameters.
func (k KDF) Params() crypto.Params {
	return crypto.Params{Memory: k.MemoryKiB, Iterations: k.Iterations, Parallelism: k.Parallelism}
}

// Config is the complete set of settings.
type Config struct {
	// DataDir holds the vault file. Empty means the platform data directory.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// MinPasswordLength applies to passwords chosen in init and password change.
	MinPasswordLength int `yaml:"min_password_length" envconfig:"MIN_PASSWORD_LENGTH"`

	KDF KDF `yaml:"kdf" envconfig:"KDF"`
}

// Default returns the built-in settings.
func Default() Config {
	p := crypto.DefaultParams()
	return Config{
		LogLevel:          "warn",
		MinPasswordLength: vault.DefaultMinPasswordLength,
		KDF: KDF{
			MemoryKiB:   p.Memory,
			Iterations:  p.Iterations,
			Parallelism: p.Parallelism,
		},
	}
}

// DefaultPath returns the location of the configuration file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, vault.AppDirName, FileName), nil
}

// Load reads the file at path over the defaults, then applies environment
// overrides and validates the result. A missing file is not an error when
// path is the default location; an explicitly named file must exist.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	if path != "" {
		err := cfg.readFile(path)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return Config{}, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("config: %s is larger than %d bytes", path, maxFileSize)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if c.MinPasswordLength < 1 || c.MinPasswordLength > vault.MaxPasswordLength {
		return fmt.Errorf("config: min_password_length must be between 1 and %d, got %d",
			vault.MaxPasswordLength, c.MinPasswordLength)
	}
	if err := c.KDF.Params().Validate(); err != nil {
		return fmt.Errorf("config: kdf: %w", err)
	}
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("config: data_dir must be an absolute path, got %q", c.DataDir)
	}
	return nil
}

// VaultDir returns DataDir, or the platform default when unset.
func (c Config) VaultDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	return vault.DefaultDir()
}
