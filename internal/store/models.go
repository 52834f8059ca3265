package store

import "time"

// Run statuses
const (
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusUpToDate = "up_to_date"
	StatusDryRun   = "dry_run"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// SyncRun records one upload or download run
type SyncRun struct {
	ID               int64
	RunID            string // uuid shared with log lines
	Namespace        string
	Direction        string // "upload" or "download"
	StartTime        time.Time
	EndTime          time.Time
	FilesPlanned     int
	FilesTransferred int
	FilesSkipped     int
	BytesTransferred int64
	Status           string
	ErrorKind        string
	ErrorMessage     string
}

// FailedTransfer records a file whose transfer aborted a run
type FailedTransfer struct {
	ID        int64
	SyncRunID int64
	Namespace string
	Direction string
	Path      string
	Error     string
	FailedAt  time.Time
	Resolved  bool
}
