// Package statusstore tracks every document the pipeline has seen in a
// SQLite table keyed by filepath. The manager consults it to decide what
// to dispatch, workers refresh it as the attempt moves through the
// stages, and operators read it through the status CLI.
package statusstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a filepath has no status record.
var ErrNotFound = errors.New("document not found")

// Store is the status and trace database for pipeline documents.
type Store interface {
	// Add inserts a new record, or leaves an existing one untouched.
	// The returned trace id is the one actually stored; inserted reports
	// whether this call created the row.
	Add(ctx context.Context, filename, filepath string, status Status, traceID string) (canonicalTrace string, inserted bool, err error)

	// Update sets the status and error message for a filepath and stamps
	// the processed date.
	Update(ctx context.Context, filepath string, status Status, errorMessage *string) error

	// UpdateByTrace is Update keyed by trace id. Zero rows matched is
	// reported, not an error: a reclaimed row carries a newer trace and
	// stale updates must not land on it.
	UpdateByTrace(ctx context.Context, traceID string, status Status, errorMessage *string) (matched bool, err error)

	// GetStatus returns the status for a filepath, or ErrNotFound.
	GetStatus(ctx context.Context, filepath string) (Status, error)

	// Get returns the full record for a filepath, or ErrNotFound.
	Get(ctx context.Context, filepath string) (*Record, error)

	// List returns records, optionally filtered by status (empty matches all).
	List(ctx context.Context, filterStatus Status) ([]Record, error)

	// Stats summarizes the table by status.
	Stats(ctx context.Context) (*Stats, error)

	// Reclaim moves processing → queued with a fresh trace and cleared
	// error. Returns false when the row is not currently processing.
	Reclaim(ctx context.Context, filepath, newTraceID string) (bool, error)

	// Requeue moves error → queued with a fresh trace and cleared error.
	// Returns false when the row is not currently in error.
	Requeue(ctx context.Context, filepath, newTraceID string) (bool, error)

	// Flush deletes every record.
	Flush(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// SQLiteStore is the SQLite implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates a SQLiteStore at the given database path, running any
// pending migrations.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory; %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database; %w", err)
	}

	// Serialize access through one connection; several worker processes
	// share the file and WAL handles cross-process readers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys; %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode; %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout; %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations; %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add inserts a new record for a filepath, or returns the existing one's
// trace id when the row is already present.
func (s *SQLiteStore) Add(ctx context.Context, filename, fpath string, status Status, traceID string) (string, bool, error) {
	fpath = filepath.Clean(fpath)

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents (filename, filepath, status, trace_id, created_date, processed_date)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		filename, fpath, string(status), traceID,
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to add document; %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to get rows affected; %w", err)
	}
	if rows > 0 {
		return traceID, true, nil
	}

	// Conflict: the stored trace id is canonical for this document.
	var stored string
	err = s.db.QueryRowContext(ctx,
		"SELECT trace_id FROM documents WHERE filepath = ?", fpath,
	).Scan(&stored)
	if err != nil {
		return "", false, fmt.Errorf("failed to read stored trace id; %w", err)
	}
	return stored, false, nil
}

// Update sets status and error message for a filepath.
func (s *SQLiteStore) Update(ctx context.Context, fpath string, status Status, errorMessage *string) error {
	fpath = filepath.Clean(fpath)

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, processed_date = CURRENT_TIMESTAMP
		 WHERE filepath = ?`,
		string(status), errorMessage, fpath,
	)
	if err != nil {
		return fmt.Errorf("failed to update document; %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected; %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateByTrace sets status and error message for the row carrying a
// trace id. A miss means the attempt was superseded; the caller decides
// whether that matters.
func (s *SQLiteStore) UpdateByTrace(ctx context.Context, traceID string, status Status, errorMessage *string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, processed_date = CURRENT_TIMESTAMP
		 WHERE trace_id = ?`,
		string(status), errorMessage, traceID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update document by trace; %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected; %w", err)
	}
	return rows > 0, nil
}

// GetStatus returns the status for a filepath.
func (s *SQLiteStore) GetStatus(ctx context.Context, fpath string) (Status, error) {
	fpath = filepath.Clean(fpath)

	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM documents WHERE filepath = ?", fpath,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get document status; %w", err)
	}
	return Status(status), nil
}

// Get returns the full record for a filepath.
func (s *SQLiteStore) Get(ctx context.Context, fpath string) (*Record, error) {
	fpath = filepath.Clean(fpath)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, filepath, status, trace_id, error_message, created_date, processed_date
		 FROM documents WHERE filepath = ?`,
		fpath,
	)

	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document; %w", err)
	}
	return rec, nil
}

// List returns records ordered by filepath, optionally filtered by status.
func (s *SQLiteStore) List(ctx context.Context, filterStatus Status) ([]Record, error) {
	query := `SELECT id, filename, filepath, status, trace_id, error_message, created_date, processed_date
	          FROM documents`
	args := []any{}
	if filterStatus != "" {
		query += " WHERE status = ?"
		args = append(args, string(filterStatus))
	}
	query += " ORDER BY filepath"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents; %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document; %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents; %w", err)
	}

	return records, nil
}

// Stats summarizes the documents table by status.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM documents GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats; %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByStatus: make(map[Status]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row; %w", err)
		}
		stats.ByStatus[Status(status)] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats; %w", err)
	}

	return stats, nil
}

// Reclaim moves a stale processing row back to queued under a fresh trace.
func (s *SQLiteStore) Reclaim(ctx context.Context, fpath, newTraceID string) (bool, error) {
	return s.transition(ctx, fpath, StatusProcessing, newTraceID)
}

// Requeue moves an errored row back to queued under a fresh trace.
func (s *SQLiteStore) Requeue(ctx context.Context, fpath, newTraceID string) (bool, error) {
	return s.transition(ctx, fpath, StatusError, newTraceID)
}

// transition resets a row to queued, guarded by its current status.
func (s *SQLiteStore) transition(ctx context.Context, fpath string, from Status, newTraceID string) (bool, error) {
	fpath = filepath.Clean(fpath)

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET status = ?, trace_id = ?, error_message = NULL, processed_date = CURRENT_TIMESTAMP
		 WHERE filepath = ? AND status = ?`,
		string(StatusQueued), newTraceID, fpath, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition document; %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected; %w", err)
	}
	return rows > 0, nil
}

// Flush deletes every record. Operator use only.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to flush documents; %w", err)
	}
	return nil
}

// scanRecord scans one documents row via the given scan function.
func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var status string
	var errorMessage sql.NullString

	err := scan(&rec.ID, &rec.Filename, &rec.Filepath, &status, &rec.TraceID,
		&errorMessage, &rec.CreatedDate, &rec.ProcessedDate)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	if errorMessage.Valid {
		rec.ErrorMessage = &errorMessage.String
	}

	return &rec, nil
}
