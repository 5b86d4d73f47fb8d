// ABOUTME: SQLite implementation of the JobLedger interface using modernc.org/sqlite
// ABOUTME: Keeps the dispatched-job history with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements JobLedger using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == MemoryPath {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			job_id       TEXT NOT NULL,
			tool         TEXT NOT NULL,
			source       TEXT NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT,
			reported     INTEGER NOT NULL DEFAULT 0,
			report_error TEXT,
			duration_ms  INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,

			CHECK (source IN ('poll', 'push', 'direct')),
			CHECK (status IN ('ok', 'error', 'unknown_tool'))
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_job_id ON jobs(job_id);
		CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordJob appends a job record.
func (s *SQLiteStore) RecordJob(ctx context.Context, rec *JobRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO jobs (id, job_id, tool, source, status, error, reported, report_error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.JobID,
		rec.Tool,
		rec.Source,
		rec.Status,
		nullString(rec.Error),
		rec.Reported,
		nullString(rec.ReportError),
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", rec.JobID, err)
	}
	return nil
}

// GetJob returns the newest record for jobID.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	query := `
		SELECT id, job_id, tool, source, status, error, reported, report_error, duration_ms, created_at
		FROM jobs
		WHERE job_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	rec, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job %s: %w", jobID, err)
	}
	return rec, nil
}

// RecentJobs returns up to limit records, newest first.
func (s *SQLiteStore) RecentJobs(ctx context.Context, limit int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, job_id, tool, source, status, error, reported, report_error, duration_ms, created_at
		FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent jobs: %w", err)
	}
	defer rows.Close()

	var out []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return out, nil
}

// Stats returns ledger totals.
func (s *SQLiteStore) Stats(ctx context.Context) (*JobStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status != 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reported = 0 AND source != 'direct' THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM jobs
	`
	var stats JobStats
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Failed, &stats.Unreported, &last); err != nil {
		return nil, fmt.Errorf("querying job stats: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(timeLayout, last.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last job time: %w", err)
		}
		stats.LastJobTime = &t
	}
	return &stats, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*JobRecord, error) {
	var rec JobRecord
	var errMsg, reportErr sql.NullString
	var durationMS int64
	var createdAt string

	if err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.Tool,
		&rec.Source,
		&rec.Status,
		&errMsg,
		&rec.Reported,
		&reportErr,
		&durationMS,
		&createdAt,
	); err != nil {
		return nil, err
	}

	rec.Error = errMsg.String
	rec.ReportError = reportErr.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = t
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ JobLedger = (*SQLiteStore)(nil)
