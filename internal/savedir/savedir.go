// Package savedir locates the Vintage Story save directory.
package savedir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

// Resolver finds the save root for one platform. The zero value is not
// usable; call NewResolver.
type Resolver struct {
	GOOS       string
	ConfigHome string
	Getenv     func(string) string
}

// NewResolver returns a Resolver for the running platform.
func NewResolver() *Resolver {
	return &Resolver{
		GOOS:       runtime.GOOS,
		ConfigHome: xdg.ConfigHome,
		Getenv:     os.Getenv,
	}
}

// Resolve returns the absolute save root. A non-empty override wins and
// must name an existing directory.
func Resolve(override string) (string, error) {
	return NewResolver().Resolve(override)
}

// Resolve returns the absolute save root for r's platform.
func (r *Resolver) Resolve(override string) (string, error) {
	if override != "" {
		return existingDir(override)
	}

	switch r.GOOS {
	case "windows":
		appData := r.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("%w: APPDATA is not set; set VS_SAVE_DIR or saves.root", cserrors.ErrConfigMissing)
		}
		dir := filepath.Join(appData, "VintagestoryData", "Saves")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("%w: creating save directory %s: %w", cserrors.ErrIO, dir, err)
		}
		return existingDir(dir)
	default:
		// ConfigHome is ~/Library/Application Support on macOS and
		// $XDG_CONFIG_HOME elsewhere, matching where the game keeps its data.
		if r.ConfigHome == "" {
			return "", fmt.Errorf("%w: cannot determine config directory; set VS_SAVE_DIR or saves.root", cserrors.ErrConfigMissing)
		}
		return existingDir(filepath.Join(r.ConfigHome, "VintagestoryData", "Saves"))
	}
}

func existingDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %w", cserrors.ErrIO, dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: save directory %s: %w", cserrors.ErrIO, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: save directory %s is not a directory", cserrors.ErrIO, abs)
	}
	return abs, nil
}
