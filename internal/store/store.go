// ABOUTME: JobLedger interface and the JobRecord type for dispatched-job history
// ABOUTME: Backed by SQLite in production and by MockStore in tests

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Job sources
const (
	SourcePoll   = "poll"   // fetched from the hive's pending queue
	SourcePush   = "push"   // pushed to /invoke
	SourceDirect = "direct" // local /mcp/invoke or tools/call
)

// Job outcomes
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusUnknownTool = "unknown_tool"
)

// JobRecord is one dispatched job and how it ended.
type JobRecord struct {
	ID          string
	JobID       string
	Tool        string
	Source      string
	Status      string
	Error       string // handler error message, empty on success
	Reported    bool   // result accepted by the hive; direct calls have nothing to report
	ReportError string
	Duration    time.Duration
	CreatedAt   time.Time
}

// JobStats aggregates the ledger.
type JobStats struct {
	Total       int64
	Failed      int64
	Unreported  int64 // hive jobs whose report failed
	LastJobTime *time.Time
}

// JobLedger persists the history of dispatched jobs.
type JobLedger interface {
	// RecordJob appends a record. ID and CreatedAt are filled in when empty.
	RecordJob(ctx context.Context, rec *JobRecord) error

	// GetJob returns the most recent record for a hive job id.
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)

	// RecentJobs returns up to limit records, newest first.
	RecentJobs(ctx context.Context, limit int) ([]*JobRecord, error)

	// Stats returns ledger totals.
	Stats(ctx context.Context) (*JobStats, error)

	// Close releases resources.
	Close() error
}
