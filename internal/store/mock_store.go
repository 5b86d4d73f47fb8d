// ABOUTME: Mock JobLedger implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory JobLedger implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	records []*JobRecord // append order
	failErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// FailWith makes every subsequent write return err. Pass nil to clear.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// RecordJob stores a copy of rec.
func (m *MockStore) RecordJob(ctx context.Context, rec *JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	// Make a copy to avoid external modification
	r := *rec
	m.records = append(m.records, &r)
	return nil
}

// GetJob returns the newest record for jobID.
func (m *MockStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].JobID == jobID {
			r := *m.records[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// RecentJobs returns up to limit records, newest first.
func (m *MockStore) RecentJobs(ctx context.Context, limit int) ([]*JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var out []*JobRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := *m.records[i]
		out = append(out, &r)
	}
	return out, nil
}

// Stats returns ledger totals.
func (m *MockStore) Stats(ctx context.Context) (*JobStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats JobStats
	for _, r := range m.records {
		stats.Total++
		if r.Status != StatusOK {
			stats.Failed++
		}
		if !r.Reported && r.Source != SourceDirect {
			stats.Unreported++
		}
		if stats.LastJobTime == nil || r.CreatedAt.After(*stats.LastJobTime) {
			t := r.CreatedAt
			stats.LastJobTime = &t
		}
	}
	return &stats, nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Len returns the number of stored records.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// ErrMockFailure is a convenience error for FailWith.
var ErrMockFailure = errors.New("mock store failure")

var _ JobLedger = (*MockStore)(nil)
