// ABOUTME: Poller fetches pending jobs from the hive on a fixed interval
// ABOUTME: Batches run sequentially in hive order; errors are logged and polling continues

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 5 * time.Second

// ErrPollerRunning is returned by Start when the loop is already active.
var ErrPollerRunning = errors.New("poller already running")

// Poller is the Stopped -> Active -> Stopped polling loop.
type Poller struct {
	hive       Hive
	dispatcher *Dispatcher
	state      *State
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewPoller creates a stopped Poller.
func NewPoller(h Hive, dispatcher *Dispatcher, state *State, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		hive:       h,
		dispatcher: dispatcher,
		state:      state,
		interval:   interval,
		logger:     logger.With("component", "poller"),
		now:        time.Now,
	}
}

// Start launches the polling goroutine and returns immediately. The loop
// also ends when ctx is done, after the current poll finishes.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		return ErrPollerRunning
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.state.setPollActive(true)

	go p.run(ctx, p.stop, p.done)

	p.logger.Info("polling started", "interval", p.interval)
	return nil
}

// Stop ends the loop and waits for it. An in-flight poll and its batch
// finish first; a pending sleep is cut short. Safe to call when stopped.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	p.state.setPollActive(false)
	close(stop)
	<-done
	p.logger.Info("polling stopped")
}

func (p *Poller) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Network calls run to completion even when the loop is told to stop.
	workCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.release(stop)
			return
		case <-timer.C:
		}

		if err := p.pollOnce(workCtx); err != nil {
			p.logger.Warn("poll failed", "error", err)
		}
		timer.Reset(p.interval)
	}
}

// release marks the loop stopped after ctx ends it, unless Stop (or a newer
// Start) already owns the fields.
func (p *Poller) release(stop <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != stop {
		return
	}
	p.stop, p.done = nil, nil
	p.state.setPollActive(false)
	p.logger.Info("polling stopped", "reason", "context done")
}

// pollOnce fetches one batch and dispatches it in order.
func (p *Poller) pollOnce(ctx context.Context) error {
	jobs, err := p.hive.Pending(ctx)
	if err != nil {
		return err
	}
	p.state.markSynced(p.now())

	if len(jobs) > 0 {
		p.logger.Info("received jobs", "count", len(jobs))
	}
	for _, job := range jobs {
		p.dispatcher.Dispatch(ctx, job)
	}
	return nil
}
