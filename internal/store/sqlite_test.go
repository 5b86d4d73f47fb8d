// ABOUTME: Tests for the SQLite job ledger and its mock
// ABOUTME: Covers schema creation, recording, ordering, lookup and stats

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "jobs.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	s, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.RecordJob(ctx, &JobRecord{JobID: "j1", Tool: "filesystem", Source: SourcePoll, Status: StatusOK}); err != nil {
		t.Fatalf("RecordJob failed: %v", err)
	}
	jobs, err := s.RecentJobs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs))
	}
}

func TestRecordAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &JobRecord{
		JobID:       "job-42",
		Tool:        "local_exec",
		Source:      SourcePush,
		Status:      StatusError,
		Error:       "command blocked",
		Reported:    false,
		ReportError: "hive report: status 502",
		Duration:    1500 * time.Millisecond,
	}
	if err := s.RecordJob(ctx, rec); err != nil {
		t.Fatalf("RecordJob failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be assigned")
	}

	got, err := s.GetJob(ctx, "job-42")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Tool != "local_exec" || got.Source != SourcePush || got.Status != StatusError {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Error != "command blocked" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.ReportError != "hive report: status 502" {
		t.Errorf("ReportError = %q", got.ReportError)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", got.Duration)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordJob_RejectsUnknownSource(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordJob(context.Background(), &JobRecord{JobID: "j", Tool: "t", Source: "carrier-pigeon", Status: StatusOK})
	if err == nil {
		t.Error("expected constraint violation")
	}
}

func TestRecentJobs_NewestFirstAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		rec := &JobRecord{
			JobID:     fmt.Sprintf("job-%d", i),
			Tool:      "filesystem",
			Source:    SourcePoll,
			Status:    StatusOK,
			Reported:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordJob(ctx, rec); err != nil {
			t.Fatalf("RecordJob failed: %v", err)
		}
	}

	jobs, err := s.RecentJobs(ctx, 3)
	if err != nil {
		t.Fatalf("RecentJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{"job-4", "job-3", "job-2"} {
		if jobs[i].JobID != want {
			t.Errorf("jobs[%d] = %s, want %s", i, jobs[i].JobID, want)
		}
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 || stats.LastJobTime != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	recs := []*JobRecord{
		{JobID: "a", Tool: "filesystem", Source: SourcePoll, Status: StatusOK, Reported: true},
		{JobID: "b", Tool: "nope", Source: SourcePoll, Status: StatusUnknownTool, Reported: true},
		{JobID: "c", Tool: "local_exec", Source: SourcePush, Status: StatusError, Reported: false},
	}
	for _, r := range recs {
		if err := s.RecordJob(ctx, r); err != nil {
			t.Fatalf("RecordJob failed: %v", err)
		}
	}

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Failed != 2 {
		t.Errorf("Failed = %d, want 2", stats.Failed)
	}
	if stats.Unreported != 1 {
		t.Errorf("Unreported = %d, want 1", stats.Unreported)
	}
	if stats.LastJobTime == nil {
		t.Error("expected LastJobTime")
	}
}

func TestMockStore(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "a"} {
		if err := m.RecordJob(ctx, &JobRecord{JobID: id, Tool: "t", Status: StatusOK, Reported: true}); err != nil {
			t.Fatalf("RecordJob failed: %v", err)
		}
	}
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}

	recent, _ := m.RecentJobs(ctx, 2)
	if len(recent) != 2 || recent[0].JobID != "a" || recent[1].JobID != "b" {
		t.Errorf("unexpected recent jobs: %+v", recent)
	}

	m.FailWith(ErrMockFailure)
	if err := m.RecordJob(ctx, &JobRecord{JobID: "c"}); !errors.Is(err, ErrMockFailure) {
		t.Errorf("expected ErrMockFailure, got %v", err)
	}
	if _, err := m.GetJob(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
