// Package storage is the object storage capability the sync engine moves
// save files through.
package storage

//go:generate mockgen -destination=mock_storage.go -package=storage github.com/BadgerOps/cloudsave/internal/storage Storage

import (
	"context"
	"io"
)

// Object is one listed remote object.
type Object struct {
	Key  string
	Size int64
}

// Page is one page of a listing. NextToken is empty on the last page.
type Page struct {
	Objects   []Object
	NextToken string
}

// Storage is an object store holding save files under string keys.
// Implementations wrap every failure with errors.ErrTransport.
type Storage interface {
	// Put streams size bytes from body to key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	// Get opens the object at key and reports its length, or -1 when the
	// store did not say. The caller closes the returned body.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// List returns one page of objects whose keys start with prefix,
	// continuing from token when it is non-empty.
	List(ctx context.Context, prefix, token string) (*Page, error)
	// Delete removes the object at key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
}

// Key joins a namespace prefix and a relative path into an object key.
func Key(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}
