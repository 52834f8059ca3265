package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/safety"
	"github.com/BadgerOps/cloudsave/internal/storage"
)

// maxPages guards against a store that keeps returning the same token.
const maxPages = 100000

// Lister enumerates the objects under a bucket prefix.
type Lister struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewLister returns a Lister reading from st.
func NewLister(st storage.Storage, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lister{storage: st, logger: logger}
}

// Listing is a remote snapshot keyed by canonical path, plus the object key
// each path was listed under. The two differ when the uploader wrote
// doubled slashes, "./" segments or decomposed Unicode.
type Listing struct {
	Files Snapshot
	Keys  map[string]string
}

// Key returns the object key path was listed under.
func (l *Listing) Key(path string) (string, bool) {
	if l == nil {
		return "", false
	}
	k, ok := l.Keys[path]
	return k, ok
}

// Remove drops path from the listing.
func (l *Listing) Remove(path string) {
	delete(l.Files, path)
	delete(l.Keys, path)
}

// List pages through every object under prefix and returns them keyed by
// path relative to prefix. A failure on any page aborts the listing; no
// partial result is returned.
func (l *Lister) List(ctx context.Context, prefix string) (*Listing, error) {
	prefix = strings.Trim(prefix, "/")
	listPrefix := ""
	if prefix != "" {
		listPrefix = prefix + "/"
	}

	out := &Listing{Files: make(Snapshot), Keys: make(map[string]string)}
	token := ""
	pages := 0
	skipped := 0
	for {
		page, err := l.storage.List(ctx, listPrefix, token)
		if err != nil {
			return nil, fmt.Errorf("%w: listing page %d of %q: %w", cserrors.ErrTransport, pages+1, listPrefix, err)
		}
		pages++

		for _, obj := range page.Objects {
			rel, ok := stripPrefix(obj.Key, listPrefix)
			if !ok {
				skipped++
				l.logger.Warn("skipping remote key outside namespace", "key", obj.Key, "prefix", listPrefix)
				continue
			}
			if rel == "" {
				// Directory placeholder object.
				continue
			}
			if prev, dup := out.Keys[rel]; dup {
				skipped++
				l.logger.Warn("skipping remote key that collides with another", "key", obj.Key, "kept", prev, "path", rel)
				continue
			}
			out.Files[rel] = obj.Size
			out.Keys[rel] = obj.Key
		}

		if page.NextToken == "" {
			break
		}
		if page.NextToken == token || pages >= maxPages {
			return nil, fmt.Errorf("%w: listing %q did not terminate after %d pages", cserrors.ErrTransport, listPrefix, pages)
		}
		token = page.NextToken
	}

	l.logger.Debug("remote listing complete", "prefix", listPrefix, "pages", pages, "objects", len(out.Files), "skipped", skipped)
	return out, nil
}

// stripPrefix returns key relative to prefix in canonical form. Keys that
// end in "/" are reported as "" so callers can drop them.
func stripPrefix(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(key, prefix)
	if rest == "" || strings.HasSuffix(rest, "/") {
		return "", true
	}
	clean, err := safety.CleanKey(rest)
	if err != nil {
		return "", false
	}
	return manifest.CanonicalPath(clean), true
}
