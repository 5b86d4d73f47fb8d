// ABOUTME: Dispatcher runs hive jobs against the tool registry and reports results
// ABOUTME: Never fails: unknown tools and handler errors become structured error results

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hivenode/internal/dedupe"
	"github.com/2389/hivenode/internal/hive"
	"github.com/2389/hivenode/internal/store"
)

// UnknownToolMessage is the error text reported for jobs naming an unregistered tool.
const UnknownToolMessage = "Unknown tool"

var (
	// ErrDispatcherClosed is returned by Submit after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrDuplicateJob is returned by Submit for a job id that is already
	// claimed inside the dedupe window.
	ErrDuplicateJob = errors.New("duplicate job")
)

// Invoker runs tools by name. *tools.Registry satisfies it.
type Invoker interface {
	Has(name string) bool
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Outcome describes what happened to one job.
type Outcome struct {
	JobID     string
	Result    any
	Failed    bool  // Result is an {"error": ...} object
	ReportErr error // nil when the hive accepted the result
	Duplicate bool  // skipped: the job id was already dispatched
}

// DispatcherConfig configures a Dispatcher. Ledger and Dedupe are optional.
type DispatcherConfig struct {
	Tools  Invoker
	Hive   Hive
	State  *State
	Ledger store.JobLedger
	Dedupe *dedupe.Cache
	Logger *slog.Logger
}

// Dispatcher executes jobs one at a time per caller.
type Dispatcher struct {
	tools  Invoker
	hive   Hive
	state  *State
	ledger store.JobLedger
	seen   *dedupe.Cache
	logger *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex // guards closed against wg.Add
	closed atomic.Bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tools:  cfg.Tools,
		hive:   cfg.Hive,
		state:  cfg.State,
		ledger: cfg.Ledger,
		seen:   cfg.Dedupe,
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch runs a polled job to completion and reports its result.
func (d *Dispatcher) Dispatch(ctx context.Context, job hive.Job) Outcome {
	return d.dispatch(ctx, job, store.SourcePoll)
}

// Submit runs a pushed job in the background and returns its id without
// waiting for the handler. Jobs without an id get a generated one.
func (d *Dispatcher) Submit(ctx context.Context, job hive.Job) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	} else if d.seen != nil && d.seen.Seen(job.JobID) {
		return job.JobID, ErrDuplicateJob
	}

	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return "", ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	// The push request returns immediately; the job must outlive it.
	jobCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		d.dispatch(jobCtx, job, store.SourcePush)
	}()
	return job.JobID, nil
}

// Close stops accepting pushed jobs and waits for running ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed.Store(true)
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until every submitted job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, job hive.Job, source string) Outcome {
	logger := d.logger.With("job_id", job.JobID, "tool", job.Tool, "source", source)

	if d.seen != nil && job.JobID != "" && !d.seen.Claim(job.JobID) {
		logger.Info("skipping duplicate job")
		return Outcome{JobID: job.JobID, Duplicate: true}
	}

	logger.Info("processing job")
	start := time.Now()
	result, status, errMsg := d.run(ctx, job)
	elapsed := time.Since(start)

	out := Outcome{JobID: job.JobID, Result: result, Failed: status != store.StatusOK}

	out.ReportErr = d.hive.Report(ctx, job.JobID, result)
	if out.ReportErr != nil {
		logger.Error("failed to report result", "error", out.ReportErr)
		// The hive never saw a result, so a redelivery must run again.
		if d.seen != nil && job.JobID != "" {
			d.seen.Release(job.JobID)
		}
	} else {
		logger.Info("job reported", "status", status, "duration", elapsed)
	}
	d.state.incProcessed()

	d.record(ctx, logger, &store.JobRecord{
		JobID:       job.JobID,
		Tool:        job.Tool,
		Source:      source,
		Status:      status,
		Error:       errMsg,
		Reported:    out.ReportErr == nil,
		ReportError: errString(out.ReportErr),
		Duration:    elapsed,
	})
	return out
}

// run invokes the tool and maps every failure to an error result.
func (d *Dispatcher) run(ctx context.Context, job hive.Job) (result any, status, errMsg string) {
	if !d.tools.Has(job.Tool) {
		return errorResult(UnknownToolMessage), store.StatusUnknownTool, UnknownToolMessage
	}

	result, err := d.tools.Invoke(ctx, job.Tool, job.Args)
	if err != nil {
		d.logger.Warn("job handler failed", "job_id", job.JobID, "tool", job.Tool, "error", err)
		return errorResult(err.Error()), store.StatusError, err.Error()
	}
	return result, store.StatusOK, ""
}

func (d *Dispatcher) record(ctx context.Context, logger *slog.Logger, rec *store.JobRecord) {
	if d.ledger == nil {
		return
	}
	if err := d.ledger.RecordJob(ctx, rec); err != nil {
		logger.Warn("failed to record job", "error", err)
	}
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
