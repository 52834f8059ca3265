package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

// TempPattern matches the temporary files Save writes next to the manifest.
// The local scanner ignores it.
const TempPattern = "*.cloudsave.tmp.*"

// Store loads and saves the manifest file under one save root.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a Store for the manifest file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the manifest. A missing file yields an empty manifest; a file
// that exists but does not parse yields an error wrapping ErrManifestCorrupt.
func (s *Store) Load() (*ProgramManifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no manifest on disk", "path", s.path)
			return New(), nil
		}
		return nil, fmt.Errorf("%w: reading manifest %s: %w", cserrors.ErrIO, s.path, err)
	}

	m := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", cserrors.ErrManifestCorrupt, s.path)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", cserrors.ErrManifestCorrupt, s.path, err)
	}
	if m.Namespaces == nil {
		m.Namespaces = make(map[string]*BucketManifest)
	}
	for ns, b := range m.Namespaces {
		if b == nil {
			b = &BucketManifest{}
			m.Namespaces[ns] = b
		}
		if b.Files == nil {
			b.Files = make(map[string]FileEntry)
		}
	}

	s.logger.Debug("manifest loaded", "path", s.path, "namespaces", len(m.Namespaces), "files", m.FileCount())
	return m, nil
}

// Save atomically replaces the manifest file with m. The new content is
// written to a temporary file in the same directory, synced, then renamed
// over the old file, so readers see either the old or the new manifest.
func (s *Store) Save(m *ProgramManifest) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("%w: encoding manifest: %w", cserrors.ErrIO, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating manifest directory: %w", cserrors.ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".cloudsave.tmp.*")
	if err != nil {
		return fmt.Errorf("%w: creating temp manifest: %w", cserrors.ErrIO, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: writing temp manifest: %w", cserrors.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: syncing temp manifest: %w", cserrors.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp manifest: %w", cserrors.ErrIO, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: replacing manifest %s: %w", cserrors.ErrIO, s.path, err)
	}

	success = true
	s.logger.Debug("manifest saved", "path", s.path, "files", m.FileCount())
	return nil
}

// Encode renders m in the on-disk format. Map keys are sorted, so encoding
// the same manifest twice yields identical bytes.
func Encode(m *ProgramManifest) ([]byte, error) {
	if m == nil {
		m = New()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
