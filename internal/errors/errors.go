package errors

import "errors"

// Local and persisted state errors.
var (
	ErrIO              = errors.New("local filesystem error")
	ErrManifestCorrupt = errors.New("manifest is unreadable")
	ErrNoFilesFound    = errors.New("no files found to sync")
)

// Remote and connection errors.
var (
	ErrTransport     = errors.New("storage transport error")
	ErrConfigMissing = errors.New("required configuration missing")
)

// Kind returns a short category name for err, used in run history and
// command output. Errors outside the taxonomy report "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrManifestCorrupt):
		return "manifest_corrupt"
	case errors.Is(err, ErrNoFilesFound):
		return "no_files_found"
	case errors.Is(err, ErrConfigMissing):
		return "config_missing"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "internal"
	}
}
