package engine

import (
	"sync"
	"time"
)

// Phase is the stage a run is in.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseTransferring Phase = "transferring"
	PhaseComplete     Phase = "complete"
	PhaseUpToDate     Phase = "up_to_date"
	PhaseFailed       Phase = "failed"
)

// ProgressEvent is delivered on a run's progress channel before the first
// transfer and after every completed file.
type ProgressEvent struct {
	TransferredBytes int64
	TotalBytes       int64
	CurrentFile      string
	CompletedFiles   int
	TotalFiles       int
	// Elapsed is measured from the start of the transfer phase.
	Elapsed time.Duration
}

// SyncProgress is a point-in-time view of a run, with the transfer rate
// and time remaining derived from the bytes moved so far.
type SyncProgress struct {
	RunID            string
	Namespace        string
	Direction        Direction
	Phase            Phase
	TotalFiles       int
	CompletedFiles   int
	FailedFiles      int
	SkippedFiles     int
	TotalBytes       int64
	TransferredBytes int64
	Percent          float64
	CurrentFile      string
	BytesPerSecond   int64
	// ETA is zero until a rate is known.
	ETA           time.Duration
	Elapsed       time.Duration
	DroppedEvents int
}

// SyncTracker accumulates run progress and fans it out as ProgressEvents.
type SyncTracker struct {
	mu sync.Mutex

	runID            string
	namespace        string
	direction        Direction
	phase            Phase
	totalFiles       int
	completedFiles   int
	failedFiles      int
	skippedFiles     int
	totalBytes       int64
	transferredBytes int64
	currentFile      string
	startTime        time.Time

	events  chan<- ProgressEvent
	dropped int
}

// NewSyncTracker creates a tracker. events may be nil.
func NewSyncTracker(runID, namespace string, dir Direction, events chan<- ProgressEvent) *SyncTracker {
	return &SyncTracker{
		runID:     runID,
		namespace: namespace,
		direction: dir,
		phase:     PhasePlanning,
		startTime: time.Now(),
		events:    events,
	}
}

// Snapshot returns a copy of the current progress state.
func (t *SyncTracker) Snapshot() SyncProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pct float64
	if t.totalBytes > 0 {
		pct = float64(t.transferredBytes) / float64(t.totalBytes) * 100
	} else if t.totalFiles > 0 {
		pct = float64(t.completedFiles) / float64(t.totalFiles) * 100
	} else if t.phase == PhaseComplete || t.phase == PhaseUpToDate {
		pct = 100
	}

	elapsed := time.Since(t.startTime)
	var bytesPerSecond int64
	var eta time.Duration
	if elapsed > time.Second && t.transferredBytes > 0 {
		bytesPerSecond = int64(float64(t.transferredBytes) / elapsed.Seconds())
		if bytesPerSecond > 0 && t.totalBytes > t.transferredBytes {
			remaining := t.totalBytes - t.transferredBytes
			eta = time.Duration(float64(remaining) / float64(bytesPerSecond) * float64(time.Second)).Truncate(time.Second)
		}
	}

	return SyncProgress{
		RunID:            t.runID,
		Namespace:        t.namespace,
		Direction:        t.direction,
		Phase:            t.phase,
		TotalFiles:       t.totalFiles,
		CompletedFiles:   t.completedFiles,
		FailedFiles:      t.failedFiles,
		SkippedFiles:     t.skippedFiles,
		TotalBytes:       t.totalBytes,
		TransferredBytes: t.transferredBytes,
		Percent:          pct,
		CurrentFile:      t.currentFile,
		BytesPerSecond:   bytesPerSecond,
		ETA:              eta,
		Elapsed:          elapsed,
		DroppedEvents:    t.dropped,
	}
}

// emit sends the current totals without blocking. Must be called with t.mu held.
func (t *SyncTracker) emit() {
	if t.events == nil {
		return
	}
	ev := ProgressEvent{
		TransferredBytes: t.transferredBytes,
		TotalBytes:       t.totalBytes,
		CurrentFile:      t.currentFile,
		CompletedFiles:   t.completedFiles,
		TotalFiles:       t.totalFiles,
		Elapsed:          time.Since(t.startTime),
	}
	select {
	case t.events <- ev:
	default:
		t.dropped++
	}
}

// SetPhase updates the current phase.
func (t *SyncTracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
}

// SetSkippedFiles records how many considered files needed no transfer.
func (t *SyncTracker) SetSkippedFiles(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skippedFiles = count
}

// Begin enters the transfer phase with the plan's totals, restarts the
// clock and emits the zero-progress event.
func (t *SyncTracker) Begin(totalFiles int, totalBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseTransferring
	t.totalFiles = totalFiles
	t.totalBytes = totalBytes
	t.transferredBytes = 0
	t.completedFiles = 0
	t.startTime = time.Now()
	t.emit()
}

// FileStarted marks path as in flight.
func (t *SyncTracker) FileStarted(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentFile = path
}

// FileCompleted records a finished transfer and emits a progress event.
func (t *SyncTracker) FileCompleted(path string, size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedFiles++
	t.transferredBytes += size
	t.currentFile = path
	t.emit()
}

// FileFailed counts a failed transfer and clears the in-flight file.
func (t *SyncTracker) FileFailed(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedFiles++
	if t.currentFile == path {
		t.currentFile = ""
	}
}
