package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/safety"
)

// Scanner walks a local save root.
type Scanner struct {
	ignore *Ignore
	logger *slog.Logger
}

// NewScanner returns a Scanner that skips paths matched by ignore, which
// may be nil.
func NewScanner(ignore *Ignore, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{ignore: ignore, logger: logger}
}

// Ignored reports whether rel would be skipped by Scan.
func (s *Scanner) Ignored(rel string) bool {
	return s.ignore.Match(rel)
}

// Scan walks root and returns every regular file with its size. Symlinks
// are not followed. Any unreadable entry fails the whole scan with ErrIO;
// an empty tree yields an empty snapshot.
func (s *Scanner) Scan(ctx context.Context, root string) (Snapshot, error) {
	absRoot, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		snap = make(Snapshot)
	)

	conf := fastwalk.Config{
		Follow: false,
	}

	err = fastwalk.Walk(&conf, absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if path == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		key := manifest.CanonicalPath(rel)

		if d.IsDir() {
			if s.ignore.Match(key + "/") {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.ignore.Match(key) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		mu.Lock()
		snap[key] = info.Size()
		mu.Unlock()
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scanning %s: %w", cserrors.ErrIO, absRoot, err)
	}

	s.logger.Debug("local scan complete", "root", absRoot, "files", len(snap), "bytes", snap.TotalSize())
	return snap, nil
}

// StatPaths reports the sizes of the given relative paths under root.
// Paths with no regular file are omitted; other stat failures are ErrIO.
func StatPaths(root string, paths []string) (Snapshot, error) {
	snap := make(Snapshot, len(paths))
	for _, p := range paths {
		full, err := safety.SafeJoinUnder(root, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cserrors.ErrIO, err)
		}
		info, err := os.Stat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: stat %s: %w", cserrors.ErrIO, full, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		snap[manifest.CanonicalPath(p)] = info.Size()
	}
	return snap, nil
}

func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %w", cserrors.ErrIO, root, err)
	}
	// The root itself may be a symlink to the real save directory.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: save root %s: %w", cserrors.ErrIO, abs, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: save root %s: %w", cserrors.ErrIO, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: save root %s is not a directory", cserrors.ErrIO, abs)
	}
	return resolved, nil
}
