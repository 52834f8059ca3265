package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/safety"
)

// AppName is used for config, state and lock file locations.
const AppName = "cloudsave"

// Config is the top-level configuration
type Config struct {
	Saves   SavesConfig   `yaml:"saves"`
	Storage StorageConfig `yaml:"storage"`
	History HistoryConfig `yaml:"history"`
}

// SavesConfig describes the local save tree
type SavesConfig struct {
	// Root overrides platform save directory discovery.
	Root         string   `yaml:"root" env:"VS_SAVE_DIR"`
	ManifestName string   `yaml:"manifest_name"`
	Namespace    string   `yaml:"namespace" env:"CLOUDSAVE_NAMESPACE"`
	Ignore       []string `yaml:"ignore"`
}

// StorageConfig holds the S3-compatible connection settings.
type StorageConfig struct {
	Endpoint       string        `yaml:"endpoint" env:"B2_ENDPOINT"`
	Region         string        `yaml:"region" env:"B2_REGION"`
	Bucket         string        `yaml:"bucket" env:"B2_BUCKET"`
	Prefix         string        `yaml:"prefix" env:"B2_PREFIX"`
	KeyID          string        `yaml:"key_id" env:"B2_KEY_ID"`
	ApplicationKey string        `yaml:"application_key" env:"B2_APPLICATION_KEY"`
	PartSize       string        `yaml:"part_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Timeout        time.Duration `yaml:"timeout"`
}

// HistoryConfig controls the run history database
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Saves: SavesConfig{
			ManifestName: manifest.DefaultFileName,
		},
		Storage: StorageConfig{
			Region:      "us-west-000",
			PartSize:    "16MB",
			MaxAttempts: 3,
			Timeout:     60 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. A .env file in the
// working directory is loaded first when present; variables already set in
// the process environment win over it.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		AppName + ".yaml",
		filepath.Join(xdg.ConfigHome, AppName, "config.yaml"),
		filepath.Join("/etc", AppName, "config.yaml"),
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate checks settings that do not depend on the network.
func (c *Config) Validate() error {
	if c.Saves.ManifestName == "" || strings.ContainsAny(c.Saves.ManifestName, `/\`) {
		return fmt.Errorf("saves.manifest_name must be a plain file name, got %q", c.Saves.ManifestName)
	}
	if _, err := c.Storage.PartSizeBytes(); err != nil {
		return err
	}
	if c.Storage.MaxAttempts < 0 {
		return fmt.Errorf("storage.max_attempts must not be negative")
	}
	return nil
}

// HistoryPath returns the run history database location.
func (c *Config) HistoryPath() string {
	if c.History.DBPath != "" {
		return c.History.DBPath
	}
	return filepath.Join(xdg.StateHome, AppName, "history.db")
}

// ============================================================================
// Storage helpers
// ============================================================================

// Validate reports every required connection parameter that is missing.
// The returned error wraps ErrConfigMissing.
func (s StorageConfig) Validate() error {
	var missing []string
	if s.KeyID == "" {
		missing = append(missing, "key_id (B2_KEY_ID)")
	}
	if s.ApplicationKey == "" {
		missing = append(missing, "application_key (B2_APPLICATION_KEY)")
	}
	if s.Bucket == "" {
		missing = append(missing, "bucket (B2_BUCKET)")
	}
	if s.Region == "" && s.Endpoint == "" {
		missing = append(missing, "region (B2_REGION)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", cserrors.ErrConfigMissing, strings.Join(missing, ", "))
	}

	if _, err := safety.ValidateEndpoint(s.ResolvedEndpoint()); err != nil {
		return fmt.Errorf("storage.endpoint: %w", err)
	}
	return nil
}

// ResolvedEndpoint returns the configured endpoint, or the Backblaze B2 S3
// endpoint for the configured region.
func (s StorageConfig) ResolvedEndpoint() string {
	if s.Endpoint != "" {
		return strings.TrimRight(s.Endpoint, "/")
	}
	return fmt.Sprintf("https://s3.%s.backblazeb2.com", s.Region)
}

// PrefixFor returns the object key prefix for a namespace. The configured
// prefix wins; otherwise the namespace name is used.
func (s StorageConfig) PrefixFor(namespace string) string {
	if s.Prefix != "" {
		return strings.Trim(s.Prefix, "/")
	}
	return strings.Trim(namespace, "/")
}

// PartSizeBytes parses PartSize, e.g. "16MB".
func (s StorageConfig) PartSizeBytes() (int64, error) {
	if s.PartSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s.PartSize)
	if err != nil {
		return 0, fmt.Errorf("invalid storage.part_size %q: %w", s.PartSize, err)
	}
	return int64(n), nil
}

// Redacted returns a copy safe for display.
func (c *Config) Redacted() Config {
	r := *c
	if r.Storage.ApplicationKey != "" {
		r.Storage.ApplicationKey = "********"
	}
	if len(r.Storage.KeyID) > 4 {
		r.Storage.KeyID = r.Storage.KeyID[:4] + "****"
	}
	return r
}
