package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/BadgerOps/cloudsave/internal/inventory"
)

// ErrRunLocked is returned when another process holds the run lock.
var ErrRunLocked = errors.New("another sync is already running")

// acquireRunLock takes the exclusive lock that serializes runs against the
// same save root. It fails immediately instead of waiting.
func acquireRunLock(root string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(root, inventory.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock held on %s)", ErrRunLocked, lock.Path())
	}
	return lock, nil
}

func releaseRunLock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		logger.Warn("failed to release run lock", "path", lock.Path(), "error", err)
	}
}
