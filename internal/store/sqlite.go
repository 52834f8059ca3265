package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive across queries and
	// serializes writers on file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("history store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// SyncRun Operations
// ============================================================================

const syncRunColumns = `
	id, run_id, namespace, direction, start_time, end_time, files_planned,
	files_transferred, files_skipped, bytes_transferred, status, error_kind, error_message
`

func scanSyncRun(row interface{ Scan(...any) error }) (*SyncRun, error) {
	run := &SyncRun{}
	var errKind, errMsg sql.NullString
	var endTime sql.NullTime
	err := row.Scan(
		&run.ID, &run.RunID, &run.Namespace, &run.Direction, &run.StartTime, &endTime,
		&run.FilesPlanned, &run.FilesTransferred, &run.FilesSkipped,
		&run.BytesTransferred, &run.Status, &errKind, &errMsg,
	)
	if err != nil {
		return nil, err
	}
	run.EndTime = endTime.Time
	run.ErrorKind = errKind.String
	run.ErrorMessage = errMsg.String
	return run, nil
}

// CreateSyncRun inserts a new SyncRun and sets its ID
func (s *Store) CreateSyncRun(run *SyncRun) error {
	const query = `
		INSERT INTO sync_runs (
			run_id, namespace, direction, start_time, end_time, files_planned,
			files_transferred, files_skipped, bytes_transferred, status, error_kind, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.RunID, run.Namespace, run.Direction, run.StartTime, nullTime(run),
		run.FilesPlanned, run.FilesTransferred, run.FilesSkipped,
		run.BytesTransferred, run.Status, run.ErrorKind, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateSyncRun updates an existing SyncRun by ID
func (s *Store) UpdateSyncRun(run *SyncRun) error {
	const query = `
		UPDATE sync_runs SET
			namespace = ?, direction = ?, start_time = ?, end_time = ?, files_planned = ?,
			files_transferred = ?, files_skipped = ?, bytes_transferred = ?,
			status = ?, error_kind = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.Namespace, run.Direction, run.StartTime, nullTime(run), run.FilesPlanned,
		run.FilesTransferred, run.FilesSkipped, run.BytesTransferred,
		run.Status, run.ErrorKind, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("sync run not found: %d", run.ID)
	}

	return nil
}

// GetSyncRun retrieves a SyncRun by ID
func (s *Store) GetSyncRun(id int64) (*SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = ?`

	run, err := scanSyncRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to query sync run: %w", err)
	}

	return run, nil
}

// ListSyncRuns retrieves SyncRuns newest first, optionally filtered by namespace
func (s *Store) ListSyncRuns(namespace string, limit int) ([]SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs`
	var args []interface{}

	if namespace != "" {
		query += " WHERE namespace = ?"
		args = append(args, namespace)
	}

	query += " ORDER BY start_time DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// LastCompletedRun returns the newest run for namespace that finished
// successfully or found nothing to do. It returns nil when there is none.
func (s *Store) LastCompletedRun(namespace string) (*SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs
		WHERE namespace = ? AND status IN (?, ?)
		ORDER BY start_time DESC, id DESC LIMIT 1`

	run, err := scanSyncRun(s.db.QueryRow(query, namespace, StatusSuccess, StatusUpToDate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	return run, nil
}

func nullTime(run *SyncRun) sql.NullTime {
	return sql.NullTime{Time: run.EndTime, Valid: !run.EndTime.IsZero()}
}

// ============================================================================
// FailedTransfer Operations
// ============================================================================

// AddFailedTransfer records a failed file transfer
func (s *Store) AddFailedTransfer(rec *FailedTransfer) error {
	const query = `
		INSERT INTO failed_transfers (
			sync_run_id, namespace, direction, path, error, failed_at, resolved
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		rec.SyncRunID, rec.Namespace, rec.Direction, rec.Path,
		rec.Error, rec.FailedAt, rec.Resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to add failed transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// ListFailedTransfers retrieves unresolved failures newest first,
// optionally filtered by namespace
func (s *Store) ListFailedTransfers(namespace string, limit int) ([]FailedTransfer, error) {
	query := `
		SELECT id, sync_run_id, namespace, direction, path, error, failed_at, resolved
		FROM failed_transfers WHERE resolved = 0
	`
	var args []interface{}

	if namespace != "" {
		query += " AND namespace = ?"
		args = append(args, namespace)
	}

	query += " ORDER BY failed_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed transfers: %w", err)
	}
	defer rows.Close()

	var records []FailedTransfer
	for rows.Next() {
		rec := FailedTransfer{}
		var errMsg sql.NullString
		err := rows.Scan(
			&rec.ID, &rec.SyncRunID, &rec.Namespace, &rec.Direction, &rec.Path,
			&errMsg, &rec.FailedAt, &rec.Resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed transfer: %w", err)
		}
		rec.Error = errMsg.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed transfers: %w", err)
	}

	return records, nil
}

// ResolveFailedTransfers marks open failures for a path as resolved after
// it transfers successfully. It returns how many records changed.
func (s *Store) ResolveFailedTransfers(namespace, direction, path string) (int64, error) {
	const query = `
		UPDATE failed_transfers SET resolved = 1
		WHERE namespace = ? AND direction = ? AND path = ? AND resolved = 0
	`

	result, err := s.db.Exec(query, namespace, direction, path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve failed transfers: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
