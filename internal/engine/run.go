package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// progressBuffer sizes a background run's event channel.
const progressBuffer = 64

// Run is a handle on a run started with Start. Dropping the handle does not
// stop or block the run.
type Run struct {
	ID        string
	Namespace string
	Direction Direction

	tracker  *SyncTracker
	progress chan ProgressEvent
	done     chan struct{}
	report   *SyncReport
	err      error
}

// Start launches an upload or download on its own goroutine.
func (m *SyncManager) Start(ctx context.Context, dir Direction, ns string, opts SyncOptions) *Run {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	progress := make(chan ProgressEvent, progressBuffer)
	r := &Run{
		ID:        opts.RunID,
		Namespace: ns,
		Direction: dir,
		tracker:   NewSyncTracker(opts.RunID, ns, dir, progress),
		progress:  progress,
		done:      make(chan struct{}),
	}
	opts.Progress = progress
	opts.tracker = r.tracker

	go func() {
		defer close(r.done)
		defer close(r.progress)

		switch dir {
		case DirectionUpload:
			r.report, r.err = m.Upload(ctx, ns, opts)
		case DirectionDownload:
			r.report, r.err = m.Download(ctx, ns, opts)
		default:
			r.err = fmt.Errorf("unknown direction %q", dir)
		}
	}()
	return r
}

// Progress delivers events until the run ends, then is closed.
func (r *Run) Progress() <-chan ProgressEvent {
	return r.progress
}

// Done is closed once the run has finished and Wait will not block.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes.
func (r *Run) Wait() (*SyncReport, error) {
	<-r.done
	return r.report, r.err
}

// Snapshot returns the run's current progress.
func (r *Run) Snapshot() SyncProgress {
	return r.tracker.Snapshot()
}
