package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

// chdir switches into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWd); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})
}

// unsetEnv clears key for the duration of the test and restores it after.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		getValue func(*Config) string
		want     string
	}{
		{"manifest name", func(c *Config) string { return c.Saves.ManifestName }, ".cloud_save_manifest.json"},
		{"region", func(c *Config) string { return c.Storage.Region }, "us-west-000"},
		{"part size", func(c *Config) string { return c.Storage.PartSize }, "16MB"},
		{"endpoint", func(c *Config) string { return c.Storage.ResolvedEndpoint() }, "https://s3.us-west-000.backblazeb2.com"},
		{"save root", func(c *Config) string { return c.Saves.Root }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.getValue(cfg)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if cfg.Storage.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Storage.MaxAttempts)
	}
	if !cfg.History.Enabled {
		t.Errorf("History.Enabled = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestLoad tests loading a valid config file
func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "cloudsave.yaml")

	configContent := `
saves:
  root: "/games/Saves"
  namespace: "survival"
  ignore:
    - "Backups/"
    - "*.bak"
storage:
  endpoint: "https://s3.eu-central-003.backblazeb2.com"
  bucket: "my-saves"
  key_id: "0012345"
  application_key: "secret"
  part_size: "32MB"
  max_attempts: 5
  timeout: 2m
history:
  enabled: false
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Saves.Root != "/games/Saves" {
		t.Errorf("Saves.Root = %q", cfg.Saves.Root)
	}
	if cfg.Saves.Namespace != "survival" {
		t.Errorf("Saves.Namespace = %q", cfg.Saves.Namespace)
	}
	if len(cfg.Saves.Ignore) != 2 || cfg.Saves.Ignore[1] != "*.bak" {
		t.Errorf("Saves.Ignore = %v", cfg.Saves.Ignore)
	}
	// Unset keys keep their defaults.
	if cfg.Saves.ManifestName != ".cloud_save_manifest.json" {
		t.Errorf("Saves.ManifestName = %q", cfg.Saves.ManifestName)
	}
	if cfg.Storage.Region != "us-west-000" {
		t.Errorf("Storage.Region = %q", cfg.Storage.Region)
	}
	if cfg.Storage.ResolvedEndpoint() != "https://s3.eu-central-003.backblazeb2.com" {
		t.Errorf("ResolvedEndpoint = %q", cfg.Storage.ResolvedEndpoint())
	}
	if cfg.Storage.MaxAttempts != 5 {
		t.Errorf("Storage.MaxAttempts = %d", cfg.Storage.MaxAttempts)
	}
	if cfg.Storage.Timeout != 2*time.Minute {
		t.Errorf("Storage.Timeout = %v", cfg.Storage.Timeout)
	}
	size, err := cfg.Storage.PartSizeBytes()
	if err != nil || size != 32_000_000 {
		t.Errorf("PartSizeBytes = %d, %v", size, err)
	}
	if cfg.History.Enabled {
		t.Errorf("History.Enabled = true, want false")
	}
	if err := cfg.Storage.Validate(); err != nil {
		t.Errorf("Storage.Validate() error = %v", err)
	}
}

// TestLoadInvalidYAML tests that Load returns an error for invalid YAML
func TestLoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid.yaml")

	invalidContent := `
storage:
  bucket: "x"
  invalid: [unclosed bracket
`

	if err := os.WriteFile(configFile, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Load() succeeded, want error for invalid YAML")
	}
}

// TestLoadNonexistentFile tests that Load returns an error for missing files
func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Fatal("Load() succeeded, want error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestFindConfigFileFound(t *testing.T) {
	tempDir := t.TempDir()
	chdir(t, tempDir)

	if err := os.WriteFile("cloudsave.yaml", []byte("saves: {}\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	path, err := FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile() error = %v", err)
	}
	if path != "cloudsave.yaml" {
		t.Errorf("FindConfigFile() = %q, want cloudsave.yaml", path)
	}
}

func TestApplyEnv(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("B2_KEY_ID", "env-key")
	t.Setenv("B2_APPLICATION_KEY", "env-secret")
	t.Setenv("B2_BUCKET", "env-bucket")
	t.Setenv("B2_REGION", "eu-central-003")
	t.Setenv("B2_PREFIX", "/shared/")
	t.Setenv("VS_SAVE_DIR", "/tmp/saves")
	unsetEnv(t, "B2_ENDPOINT")
	unsetEnv(t, "CLOUDSAVE_NAMESPACE")

	cfg := DefaultConfig()
	cfg.Storage.Bucket = "file-bucket"
	cfg.Saves.Namespace = "from-file"

	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Storage.Bucket != "env-bucket" {
		t.Errorf("Bucket = %q, env should win over file", cfg.Storage.Bucket)
	}
	if cfg.Saves.Namespace != "from-file" {
		t.Errorf("Namespace = %q, unset env must not clear file value", cfg.Saves.Namespace)
	}
	if cfg.Saves.Root != "/tmp/saves" {
		t.Errorf("Saves.Root = %q", cfg.Saves.Root)
	}
	if got := cfg.Storage.ResolvedEndpoint(); got != "https://s3.eu-central-003.backblazeb2.com" {
		t.Errorf("ResolvedEndpoint = %q", got)
	}
	if got := cfg.Storage.PrefixFor("survival"); got != "shared" {
		t.Errorf("PrefixFor = %q, want shared", got)
	}
}

func TestApplyEnv_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	unsetEnv(t, "B2_KEY_ID")
	unsetEnv(t, "B2_BUCKET")
	t.Setenv("B2_APPLICATION_KEY", "process-secret")

	dotenv := "B2_KEY_ID=dotenv-key\nB2_BUCKET=dotenv-bucket\nB2_APPLICATION_KEY=dotenv-secret\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Storage.KeyID != "dotenv-key" || cfg.Storage.Bucket != "dotenv-bucket" {
		t.Errorf("dotenv values not applied: %+v", cfg.Storage)
	}
	if cfg.Storage.ApplicationKey != "process-secret" {
		t.Errorf("ApplicationKey = %q, process env should win over .env", cfg.Storage.ApplicationKey)
	}
}

func TestStorageValidate_Missing(t *testing.T) {
	s := DefaultConfig().Storage
	s.Bucket = "bucket"

	err := s.Validate()
	if !errors.Is(err, cserrors.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	for _, want := range []string{"B2_KEY_ID", "B2_APPLICATION_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
	if strings.Contains(err.Error(), "B2_BUCKET") {
		t.Errorf("error %q names a field that is set", err)
	}
}

func TestStorageValidate_InsecureEndpoint(t *testing.T) {
	s := StorageConfig{
		Endpoint:       "http://s3.example.com",
		Bucket:         "b",
		KeyID:          "k",
		ApplicationKey: "s",
	}
	err := s.Validate()
	if err == nil {
		t.Fatal("expected plain http endpoint to be rejected")
	}
	if errors.Is(err, cserrors.ErrConfigMissing) {
		t.Errorf("insecure endpoint is not a missing parameter: %v", err)
	}
}

func TestPrefixFor(t *testing.T) {
	s := StorageConfig{}
	if got := s.PrefixFor("survival"); got != "survival" {
		t.Errorf("PrefixFor = %q, want namespace", got)
	}
	s.Prefix = "fixed"
	if got := s.PrefixFor("survival"); got != "fixed" {
		t.Errorf("PrefixFor = %q, want configured prefix", got)
	}
}

func TestValidate_BadValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"manifest with separator", func(c *Config) { c.Saves.ManifestName = "dir/manifest.json" }},
		{"empty manifest name", func(c *Config) { c.Saves.ManifestName = "" }},
		{"bad part size", func(c *Config) { c.Storage.PartSize = "lots" }},
		{"negative attempts", func(c *Config) { c.Storage.MaxAttempts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.KeyID = "0012345678"
	cfg.Storage.ApplicationKey = "K001secret"

	r := cfg.Redacted()
	if r.Storage.ApplicationKey == "K001secret" || strings.Contains(r.Storage.KeyID, "5678") {
		t.Errorf("secrets leaked: %+v", r.Storage)
	}
	if cfg.Storage.ApplicationKey != "K001secret" {
		t.Errorf("Redacted modified the original config")
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := DefaultConfig()
	if !strings.HasSuffix(cfg.HistoryPath(), filepath.Join("cloudsave", "history.db")) {
		t.Errorf("HistoryPath = %q", cfg.HistoryPath())
	}
	cfg.History.DBPath = "/tmp/h.db"
	if cfg.HistoryPath() != "/tmp/h.db" {
		t.Errorf("HistoryPath = %q", cfg.HistoryPath())
	}
}
