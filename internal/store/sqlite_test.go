package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates an in-memory SQLite store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateRun(t *testing.T, s *Store, ns, status string, start time.Time) *SyncRun {
	t.Helper()
	run := &SyncRun{
		RunID:     fmt.Sprintf("%s-%d", ns, start.UnixNano()),
		Namespace: ns,
		Direction: "upload",
		StartTime: start,
		Status:    status,
	}
	if err := s.CreateSyncRun(run); err != nil {
		t.Fatalf("CreateSyncRun() failed: %v", err)
	}
	return run
}

// ============================================================================
// Store Lifecycle Tests
// ============================================================================

func TestNew(t *testing.T) {
	store, err := New(":memory:", nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Expected db to be initialized")
	}
	if store.logger == nil {
		t.Error("Expected logger to default when nil")
	}
}

func TestNewFileDatabaseReopens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "history.db")

	s, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	mustCreateRun(t, s, "survival", StatusSuccess, time.Now())
	s.Close()

	// Migrations must be idempotent across reopen.
	s, err = New(dbPath, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	runs, err := s.ListSyncRuns("", 0)
	if err != nil {
		t.Fatalf("ListSyncRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run after reopen, got %d", len(runs))
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&version); err != nil {
		t.Fatalf("query migrations: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

// ============================================================================
// SyncRun Tests
// ============================================================================

func TestSyncRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	run := &SyncRun{
		RunID:        "0b6c4a4e-run",
		Namespace:    "survival",
		Direction:    "upload",
		StartTime:    start,
		FilesPlanned: 3,
		Status:       StatusRunning,
	}
	if err := s.CreateSyncRun(run); err != nil {
		t.Fatalf("CreateSyncRun() failed: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("Expected ID to be set after CreateSyncRun")
	}

	got, err := s.GetSyncRun(run.ID)
	if err != nil {
		t.Fatalf("GetSyncRun() failed: %v", err)
	}
	if !got.EndTime.IsZero() {
		t.Errorf("EndTime = %v, want zero for running run", got.EndTime)
	}

	run.EndTime = start.Add(time.Minute)
	run.FilesTransferred = 2
	run.BytesTransferred = 4096
	run.Status = StatusPartial
	run.ErrorKind = "transport"
	run.ErrorMessage = "connection reset"
	if err := s.UpdateSyncRun(run); err != nil {
		t.Fatalf("UpdateSyncRun() failed: %v", err)
	}

	got, err = s.GetSyncRun(run.ID)
	if err != nil {
		t.Fatalf("GetSyncRun() failed: %v", err)
	}
	if got.RunID != "0b6c4a4e-run" || got.Namespace != "survival" || got.Direction != "upload" {
		t.Errorf("identity fields = %+v", got)
	}
	if got.FilesPlanned != 3 || got.FilesTransferred != 2 || got.BytesTransferred != 4096 {
		t.Errorf("counters = %+v", got)
	}
	if got.Status != StatusPartial || got.ErrorKind != "transport" || got.ErrorMessage != "connection reset" {
		t.Errorf("status fields = %+v", got)
	}
	if !got.EndTime.Equal(start.Add(time.Minute)) {
		t.Errorf("EndTime = %v", got.EndTime)
	}
}

func TestGetSyncRunNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSyncRun(999); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestUpdateSyncRunNotFound(t *testing.T) {
	s := newTestStore(t)
	run := &SyncRun{ID: 42, RunID: "x", Namespace: "n", Direction: "upload", StartTime: time.Now()}
	if err := s.UpdateSyncRun(run); err == nil {
		t.Error("expected error updating missing run")
	}
}

func TestListSyncRuns(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mustCreateRun(t, s, "survival", StatusSuccess, base)
	mustCreateRun(t, s, "creative", StatusFailed, base.Add(time.Hour))
	mustCreateRun(t, s, "survival", StatusUpToDate, base.Add(2*time.Hour))

	tests := []struct {
		name      string
		namespace string
		limit     int
		wantCount int
		wantFirst string
	}{
		{"all", "", 0, 3, StatusUpToDate},
		{"filtered", "survival", 0, 2, StatusUpToDate},
		{"limited", "", 1, 1, StatusUpToDate},
		{"unknown namespace", "modded", 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListSyncRuns(tt.namespace, tt.limit)
			if err != nil {
				t.Fatalf("ListSyncRuns() failed: %v", err)
			}
			if len(runs) != tt.wantCount {
				t.Fatalf("got %d runs, want %d", len(runs), tt.wantCount)
			}
			if tt.wantCount > 0 && runs[0].Status != tt.wantFirst {
				t.Errorf("first run status = %q, want %q", runs[0].Status, tt.wantFirst)
			}
		})
	}
}

func TestLastCompletedRun(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := s.LastCompletedRun("survival")
	if err != nil {
		t.Fatalf("LastCompletedRun() failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil with no runs, got %+v", got)
	}

	ok := mustCreateRun(t, s, "survival", StatusSuccess, base)
	mustCreateRun(t, s, "survival", StatusFailed, base.Add(time.Hour))
	mustCreateRun(t, s, "creative", StatusSuccess, base.Add(2*time.Hour))

	got, err = s.LastCompletedRun("survival")
	if err != nil {
		t.Fatalf("LastCompletedRun() failed: %v", err)
	}
	if got == nil || got.ID != ok.ID {
		t.Fatalf("LastCompletedRun() = %+v, want run %d", got, ok.ID)
	}
}

// ============================================================================
// FailedTransfer Tests
// ============================================================================

func TestFailedTransfers(t *testing.T) {
	s := newTestStore(t)
	run := mustCreateRun(t, s, "survival", StatusPartial, time.Now())
	other := mustCreateRun(t, s, "creative", StatusFailed, time.Now())

	failures := []*FailedTransfer{
		{SyncRunID: run.ID, Namespace: "survival", Direction: "upload", Path: "World.vcdbs", Error: "reset", FailedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{SyncRunID: run.ID, Namespace: "survival", Direction: "upload", Path: "World.vcdbs", Error: "timeout", FailedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{SyncRunID: other.ID, Namespace: "creative", Direction: "download", Path: "Flat.vcdbs", Error: "denied", FailedAt: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, f := range failures {
		if err := s.AddFailedTransfer(f); err != nil {
			t.Fatalf("AddFailedTransfer() failed: %v", err)
		}
		if f.ID == 0 {
			t.Fatal("expected ID to be set")
		}
	}

	all, err := s.ListFailedTransfers("", 0)
	if err != nil {
		t.Fatalf("ListFailedTransfers() failed: %v", err)
	}
	if len(all) != 3 || all[0].Path != "Flat.vcdbs" {
		t.Fatalf("unexpected failures: %+v", all)
	}

	n, err := s.ResolveFailedTransfers("survival", "upload", "World.vcdbs")
	if err != nil {
		t.Fatalf("ResolveFailedTransfers() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("resolved %d records, want 2", n)
	}

	open, err := s.ListFailedTransfers("survival", 10)
	if err != nil {
		t.Fatalf("ListFailedTransfers() failed: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open survival failures, got %+v", open)
	}

	// Direction is part of the key.
	n, err = s.ResolveFailedTransfers("creative", "upload", "Flat.vcdbs")
	if err != nil {
		t.Fatalf("ResolveFailedTransfers() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("resolved %d records for wrong direction", n)
	}
}
