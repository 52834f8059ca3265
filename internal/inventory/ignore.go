package inventory

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/BadgerOps/cloudsave/internal/manifest"
)

// IgnoreFileName is an optional per-root file of extra ignore patterns.
const IgnoreFileName = ".cloudsaveignore"

// LockFileName is the run lock kept next to the manifest.
const LockFileName = ".cloud_save.lock"

var defaultIgnoreLines = []string{
	// cloudsave bookkeeping
	IgnoreFileName,
	LockFileName,
	manifest.TempPattern,
	"*.cloudsave.part.*",
	// game scratch files
	"*.vcdbs-journal",
	"*.vcdbs-wal",
	"*.vcdbs-shm",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// Ignore decides which paths under a save root are never synced.
type Ignore struct {
	matcher *gitignore.GitIgnore
}

// LoadIgnore compiles the default rules, the manifest file name, the
// configured extra patterns and any patterns in root/.cloudsaveignore.
func LoadIgnore(root, manifestName string, extra []string, logger *slog.Logger) *Ignore {
	if logger == nil {
		logger = slog.Default()
	}

	lines := append([]string{}, defaultIgnoreLines...)
	if manifestName != "" {
		lines = append(lines, "/"+manifestName)
	}
	lines = append(lines, extra...)

	ignorePath := filepath.Join(root, IgnoreFileName)
	if f, err := os.Open(ignorePath); err == nil {
		defer f.Close()
		rules := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines = append(lines, line)
				rules++
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("error reading ignore file", "path", ignorePath, "error", err)
		} else {
			logger.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
		}
	} else if !os.IsNotExist(err) {
		logger.Warn("failed to open ignore file", "path", ignorePath, "error", err)
	}

	return &Ignore{matcher: gitignore.CompileIgnoreLines(lines...)}
}

// Match reports whether rel, a slash separated path relative to the root,
// is ignored. Directories should be passed with a trailing slash.
func (i *Ignore) Match(rel string) bool {
	if i == nil || i.matcher == nil {
		return false
	}
	return i.matcher.MatchesPath(rel)
}
