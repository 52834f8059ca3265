package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/inventory"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/metadata"
	"github.com/BadgerOps/cloudsave/internal/storage"
	"github.com/BadgerOps/cloudsave/internal/store"
)

// Connector opens the remote storage. It is called only once a run knows
// it needs the network.
type Connector func(ctx context.Context) (storage.Storage, error)

// PrefixFunc maps a namespace to the key prefix its objects live under.
type PrefixFunc func(namespace string) string

// SyncManager runs uploads and downloads for one save root.
type SyncManager struct {
	root      string
	manifests *manifest.Store
	scanner   *inventory.Scanner
	connect   Connector
	history   *store.Store
	extractor metadata.Extractor
	prefix    PrefixFunc
	logger    *slog.Logger

	connMu sync.Mutex
	conn   storage.Storage
}

// SyncOptions tune a single run.
type SyncOptions struct {
	// RunID identifies the run in logs and history; generated when empty.
	RunID                 string
	DryRun                bool
	Force                 bool
	IgnoreCorruptManifest bool
	// Progress receives best-effort events; sends never block.
	Progress chan<- ProgressEvent

	tracker *SyncTracker
}

// SyncReport summarizes a finished run.
type SyncReport struct {
	RunID       string
	Namespace   string
	Direction   Direction
	StartTime   time.Time
	EndTime     time.Time
	LocalFiles  int
	RemoteFiles int
	Planned     int
	Transferred int
	Skipped     int
	Bytes       int64
	UpToDate    bool
	DryRun      bool
	// ManifestReset is set when a corrupt manifest was replaced by an empty one.
	ManifestReset bool
	Actions       []Action
	Failed        *Action
	Status        string
}

// NewSyncManager creates a SyncManager. history may be nil.
func NewSyncManager(
	root string,
	manifests *manifest.Store,
	scanner *inventory.Scanner,
	connect Connector,
	history *store.Store,
	logger *slog.Logger,
) *SyncManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncManager{
		root:      root,
		manifests: manifests,
		scanner:   scanner,
		connect:   connect,
		history:   history,
		extractor: metadata.NewVCDBS(logger),
		prefix:    func(ns string) string { return ns },
		logger:    logger,
	}
}

// SetExtractor replaces the metadata extractor used for uploads.
func (m *SyncManager) SetExtractor(x metadata.Extractor) {
	m.extractor = x
}

// SetPrefixFunc replaces the namespace to key prefix mapping.
func (m *SyncManager) SetPrefixFunc(f PrefixFunc) {
	m.prefix = f
}

// Root returns the save root the manager syncs.
func (m *SyncManager) Root() string {
	return m.root
}

func (m *SyncManager) storage(ctx context.Context) (storage.Storage, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		return m.conn, nil
	}
	if m.connect == nil {
		return nil, fmt.Errorf("%w: no storage configured", cserrors.ErrConfigMissing)
	}
	st, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	m.conn = st
	return st, nil
}

// Upload pushes local files that the manifest does not show as uploaded at
// their current size. An unchanged tree returns an UpToDate report without
// touching storage.
func (m *SyncManager) Upload(ctx context.Context, ns string, opts SyncOptions) (*SyncReport, error) {
	if ns == "" {
		return nil, fmt.Errorf("%w: namespace", cserrors.ErrConfigMissing)
	}
	report, tracker, run := m.begin(ns, DirectionUpload, opts)
	prefix := m.prefix(ns)

	m.logger.Info("starting upload", "run", report.RunID, "namespace", ns, "prefix", prefix, "root", m.root, "dry_run", opts.DryRun, "force", opts.Force)

	pm, err := m.manifests.Load()
	if err != nil {
		if !errors.Is(err, cserrors.ErrManifestCorrupt) || !opts.IgnoreCorruptManifest {
			return m.fail(report, tracker, run, fmt.Errorf("failed to load manifest: %w", err))
		}
		m.logger.Warn("manifest is corrupt, continuing with an empty one", "path", m.manifests.Path(), "error", err)
		pm = manifest.New()
		report.ManifestReset = true
	}

	local, err := m.scanner.Scan(ctx, m.root)
	if err != nil {
		return m.fail(report, tracker, run, fmt.Errorf("failed to scan %s: %w", m.root, err))
	}
	report.LocalFiles = len(local)

	plan, err := PlanUpload(ns, prefix, local, pm.Bucket(ns), opts.Force)
	if err != nil {
		return m.fail(report, tracker, run, fmt.Errorf("failed to plan upload: %w", err))
	}
	return m.apply(ctx, plan, pm, report, tracker, run, opts)
}

// Download fetches remote files that are missing locally or differ in
// size. The manifest is neither read nor written.
func (m *SyncManager) Download(ctx context.Context, ns string, opts SyncOptions) (*SyncReport, error) {
	if ns == "" {
		return nil, fmt.Errorf("%w: namespace", cserrors.ErrConfigMissing)
	}
	report, tracker, run := m.begin(ns, DirectionDownload, opts)
	prefix := m.prefix(ns)

	m.logger.Info("starting download", "run", report.RunID, "namespace", ns, "prefix", prefix, "root", m.root, "dry_run", opts.DryRun)

	st, err := m.storage(ctx)
	if err != nil {
		return m.fail(report, tracker, run, fmt.Errorf("failed to connect to storage: %w", err))
	}

	remote, err := inventory.NewLister(st, m.logger).List(ctx, prefix)
	if err != nil {
		return m.fail(report, tracker, run, fmt.Errorf("failed to list remote files: %w", err))
	}
	for _, p := range remote.Files.Paths() {
		if m.scanner.Ignored(p) {
			m.logger.Debug("skipping ignored remote file", "path", p)
			remote.Remove(p)
		}
	}
	report.RemoteFiles = len(remote.Files)

	local, err := inventory.StatPaths(m.root, remote.Files.Paths())
	if err != nil {
		return m.fail(report, tracker, run, fmt.Errorf("failed to inspect local files: %w", err))
	}

	plan := PlanDownload(ns, prefix, remote, local)
	return m.apply(ctx, plan, nil, report, tracker, run, opts)
}

func (m *SyncManager) begin(ns string, dir Direction, opts SyncOptions) (*SyncReport, *SyncTracker, *store.SyncRun) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &SyncReport{
		RunID:     runID,
		Namespace: ns,
		Direction: dir,
		StartTime: time.Now(),
		DryRun:    opts.DryRun,
		Status:    store.StatusRunning,
	}

	tracker := opts.tracker
	if tracker == nil {
		tracker = NewSyncTracker(runID, ns, dir, opts.Progress)
	}

	return report, tracker, m.recordStart(report)
}

func (m *SyncManager) apply(
	ctx context.Context,
	plan *Plan,
	pm *manifest.ProgramManifest,
	report *SyncReport,
	tracker *SyncTracker,
	run *store.SyncRun,
	opts SyncOptions,
) (*SyncReport, error) {
	report.Planned = len(plan.Actions)
	report.Skipped = plan.Skipped()
	report.Actions = plan.Actions
	tracker.SetSkippedFiles(plan.Skipped())

	if plan.Empty() {
		report.UpToDate = true
		tracker.SetPhase(PhaseUpToDate)
		m.logger.Info("already up to date", "run", report.RunID, "namespace", report.Namespace, "direction", report.Direction, "files", plan.Considered)
		return m.finish(report, run, store.StatusUpToDate, nil), nil
	}

	m.logger.Info("plan ready", "run", report.RunID, "direction", plan.Direction, "files", len(plan.Actions), "bytes", plan.TotalSize, "skipped", plan.Skipped())

	if opts.DryRun {
		tracker.SetPhase(PhaseComplete)
		return m.finish(report, run, store.StatusDryRun, nil), nil
	}

	st, err := m.storage(ctx)
	if err != nil {
		return m.fail(report, tracker, run, fmt.Errorf("failed to connect to storage: %w", err))
	}

	exec := NewExecutor(st, m.root, m.manifests, m.extractor, m.logger)
	execErr := exec.Execute(ctx, plan, pm, tracker)

	for i := range plan.Actions {
		a := &plan.Actions[i]
		switch a.State {
		case StateCompleted:
			report.Transferred++
			report.Bytes += a.Size
			m.resolveFailures(report, a.Path)
		case StateFailed:
			report.Failed = a
			m.recordFailure(report, run, a)
		}
	}

	if execErr != nil {
		return m.fail(report, tracker, run, execErr)
	}

	tracker.SetPhase(PhaseComplete)
	m.logger.Info("run complete", "run", report.RunID, "namespace", report.Namespace, "direction", report.Direction, "files", report.Transferred, "bytes", report.Bytes)
	return m.finish(report, run, store.StatusSuccess, nil), nil
}

func (m *SyncManager) fail(report *SyncReport, tracker *SyncTracker, run *store.SyncRun, err error) (*SyncReport, error) {
	tracker.SetPhase(PhaseFailed)

	status := store.StatusFailed
	if report.Transferred > 0 {
		status = store.StatusPartial
	}
	m.logger.Error("run failed", "run", report.RunID, "namespace", report.Namespace, "direction", report.Direction, "transferred", report.Transferred, "kind", cserrors.Kind(err), "error", err)
	return m.finish(report, run, status, err), err
}

func (m *SyncManager) finish(report *SyncReport, run *store.SyncRun, status string, err error) *SyncReport {
	report.EndTime = time.Now()
	report.Status = status
	m.recordEnd(report, run, err)
	return report
}

// History writes are best effort; a broken history database never fails a run.

func (m *SyncManager) recordStart(report *SyncReport) *store.SyncRun {
	if m.history == nil {
		return nil
	}
	run := &store.SyncRun{
		RunID:     report.RunID,
		Namespace: report.Namespace,
		Direction: string(report.Direction),
		StartTime: report.StartTime,
		Status:    store.StatusRunning,
	}
	if err := m.history.CreateSyncRun(run); err != nil {
		m.logger.Warn("failed to record sync run", "run", report.RunID, "error", err)
		return nil
	}
	return run
}

func (m *SyncManager) recordEnd(report *SyncReport, run *store.SyncRun, err error) {
	if run == nil {
		return
	}
	run.EndTime = report.EndTime
	run.FilesPlanned = report.Planned
	run.FilesTransferred = report.Transferred
	run.FilesSkipped = report.Skipped
	run.BytesTransferred = report.Bytes
	run.Status = report.Status
	if err != nil {
		run.ErrorKind = cserrors.Kind(err)
		run.ErrorMessage = err.Error()
	}
	if err := m.history.UpdateSyncRun(run); err != nil {
		m.logger.Warn("failed to update sync run", "run", report.RunID, "error", err)
	}
}

func (m *SyncManager) recordFailure(report *SyncReport, run *store.SyncRun, a *Action) {
	if run == nil {
		return
	}
	rec := &store.FailedTransfer{
		SyncRunID: run.ID,
		Namespace: report.Namespace,
		Direction: string(report.Direction),
		Path:      a.Path,
		Error:     a.Error,
		FailedAt:  time.Now(),
	}
	if err := m.history.AddFailedTransfer(rec); err != nil {
		m.logger.Warn("failed to record failed transfer", "path", a.Path, "error", err)
	}
}

func (m *SyncManager) resolveFailures(report *SyncReport, path string) {
	if m.history == nil {
		return
	}
	n, err := m.history.ResolveFailedTransfers(report.Namespace, string(report.Direction), path)
	if err != nil {
		m.logger.Warn("failed to resolve failed transfers", "path", path, "error", err)
		return
	}
	if n > 0 {
		m.logger.Debug("resolved earlier failures", "path", path, "count", n)
	}
}
