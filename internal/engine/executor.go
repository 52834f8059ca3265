package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/metadata"
	"github.com/BadgerOps/cloudsave/internal/safety"
	"github.com/BadgerOps/cloudsave/internal/storage"
)

// PartPattern names in-flight download files next to their target.
const PartPattern = ".cloudsave.part.*"

// Executor applies a plan's actions one at a time.
type Executor struct {
	storage   storage.Storage
	root      string
	manifests *manifest.Store
	extractor metadata.Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor creates an executor rooted at the save directory.
func NewExecutor(st storage.Storage, root string, manifests *manifest.Store, extractor metadata.Extractor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = metadata.NewVCDBS(logger)
	}
	return &Executor{
		storage:   st,
		root:      root,
		manifests: manifests,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute runs every pending action in order. The first failure marks that
// action failed, leaves the rest pending and is returned. Upload plans need
// pm, which is updated and saved after each completed file.
func (e *Executor) Execute(ctx context.Context, plan *Plan, pm *manifest.ProgramManifest, tracker *SyncTracker) error {
	if plan.Direction == DirectionUpload && pm == nil {
		return fmt.Errorf("upload plan for %q executed without a manifest", plan.Namespace)
	}
	if tracker == nil {
		tracker = NewSyncTracker("", plan.Namespace, plan.Direction, nil)
	}
	tracker.Begin(len(plan.Actions), plan.TotalSize)

	for i := range plan.Actions {
		a := &plan.Actions[i]
		if a.State != StatePending {
			continue
		}

		if err := ctx.Err(); err != nil {
			return e.fail(a, tracker, fmt.Errorf("%w: run cancelled before %s: %w", cserrors.ErrTransport, a.Path, err))
		}

		a.State = StateTransferring
		tracker.FileStarted(a.Path)

		var (
			n   int64
			err error
		)
		switch plan.Direction {
		case DirectionUpload:
			n, err = e.upload(ctx, plan.Namespace, a, pm)
		case DirectionDownload:
			n, err = e.download(ctx, a)
		default:
			err = fmt.Errorf("unknown direction %q", plan.Direction)
		}
		if err != nil {
			return e.fail(a, tracker, err)
		}

		a.State = StateCompleted
		tracker.FileCompleted(a.Path, n)
		e.logger.Debug("transfer complete", "direction", plan.Direction, "path", a.Path, "key", a.Key, "bytes", n)
	}
	return nil
}

func (e *Executor) fail(a *Action, tracker *SyncTracker, err error) error {
	a.State = StateFailed
	a.Error = err.Error()
	tracker.FileFailed(a.Path)
	e.logger.Error("transfer failed", "direction", a.Direction, "path", a.Path, "key", a.Key, "error", err)
	return err
}

func (e *Executor) upload(ctx context.Context, ns string, a *Action, pm *manifest.ProgramManifest) (int64, error) {
	full, err := safety.SafeJoinUnder(e.root, a.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", cserrors.ErrIO, err)
	}

	f, err := os.Open(full)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %w", cserrors.ErrIO, a.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %w", cserrors.ErrIO, a.Path, err)
	}
	size := info.Size()
	if size != a.Size {
		e.logger.Warn("file changed size since scan", "path", a.Path, "planned", a.Size, "actual", size)
	}

	if err := e.storage.Put(ctx, a.Key, io.LimitReader(f, size), size); err != nil {
		return 0, asTransport(err, "uploading "+a.Path)
	}

	meta := e.extractor.Extract(ctx, full, a.Path)
	pm.Record(ns, a.Path, manifest.FileEntry{
		WorldName: meta.WorldName,
		Playtime:  meta.Playtime,
		Size:      &size,
	}, uint64(e.now().Unix()))

	if err := e.manifests.Save(pm); err != nil {
		return size, fmt.Errorf("saving manifest after %s: %w", a.Path, err)
	}
	return size, nil
}

func (e *Executor) download(ctx context.Context, a *Action) (int64, error) {
	target, err := safety.SafeJoinUnder(e.root, a.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", cserrors.ErrIO, err)
	}

	body, size, err := e.storage.Get(ctx, a.Key)
	if err != nil {
		return 0, asTransport(err, "downloading "+a.Key)
	}
	defer body.Close()

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: creating %s: %w", cserrors.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+PartPattern)
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp file for %s: %w", cserrors.ErrIO, a.Path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	src := &trackingReader{r: body}
	n, err := io.Copy(tmp, src)
	if err != nil {
		if src.err != nil {
			return n, fmt.Errorf("%w: reading %s: %w", cserrors.ErrTransport, a.Key, err)
		}
		return n, fmt.Errorf("%w: writing %s: %w", cserrors.ErrIO, a.Path, err)
	}
	if size >= 0 && n != size {
		return n, fmt.Errorf("%w: short read for %s: got %d of %d bytes", cserrors.ErrTransport, a.Key, n, size)
	}

	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("%w: syncing %s: %w", cserrors.ErrIO, a.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("%w: closing %s: %w", cserrors.ErrIO, a.Path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return n, fmt.Errorf("%w: replacing %s: %w", cserrors.ErrIO, a.Path, err)
	}
	committed = true
	return n, nil
}

// asTransport keeps errors already categorized by the storage layer and
// tags everything else as a transport failure.
func asTransport(err error, what string) error {
	if cserrors.Kind(err) != "internal" {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", cserrors.ErrTransport, what, err)
}

// trackingReader remembers the last read error so copy failures can be
// attributed to the source or the destination.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}
