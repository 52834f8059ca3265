package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

// Memory is an in-process Storage that stands in for a bucket in tests.
// PageSize bounds List results; zero means 1000.
type Memory struct {
	mu       sync.Mutex
	objects  map[string][]byte
	PageSize int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores the body under key.
func (m *Memory) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: uploading %s: %w", cserrors.ErrTransport, key, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: uploading %s: %w", cserrors.ErrTransport, key, err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("%w: uploading %s: read %d bytes, expected %d", cserrors.ErrTransport, key, len(data), size)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

// Get returns a reader over the stored bytes.
func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: downloading %s: %w", cserrors.ErrTransport, key, err)
	}
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: downloading %s: no such key", cserrors.ErrTransport, key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// List pages through keys in lexical order. The token is the last key of
// the previous page.
func (m *Memory) List(ctx context.Context, prefix, token string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing %q: %w", cserrors.ErrTransport, prefix, err)
	}
	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	m.mu.Lock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &Page{}
	for i, k := range keys {
		if i == pageSize {
			page.NextToken = keys[i-1]
			break
		}
		page.Objects = append(page.Objects, Object{Key: k, Size: int64(len(m.objects[k]))})
	}
	m.mu.Unlock()
	return page, nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", cserrors.ErrTransport, key, err)
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Bytes returns a copy of the object at key.
func (m *Memory) Bytes(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Keys returns all stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
