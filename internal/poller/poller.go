package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"valvecloud/internal/tuya"
	"valvecloud/internal/valve"
)

const (
	maxAttempts    = 3
	defaultBackoff = time.Second
)

// Source is the controller surface the poller drives
type Source interface {
	PollState(ctx context.Context) (valve.State, error)
	State() (valve.State, time.Time)
}

// Poller drives periodic state polls. At most one cycle runs at a time; a
// tick arriving while a cycle is still in flight is dropped, never queued, so
// a degraded network cannot build a backlog.
type Poller struct {
	source   Source
	interval time.Duration
	backoff  time.Duration
	clock    Clock
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	busy     atomic.Bool
}

// NewPoller creates a poller. clock may be nil to use the system clock.
func NewPoller(source Source, interval time.Duration, clock Clock, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		interval: interval,
		backoff:  defaultBackoff,
		clock:    clock,
		logger:   logger.With("component", "poller"),
		stopChan: make(chan struct{}),
	}
}

// Start runs the polling loop until Stop is called or ctx is cancelled.
// Blocking; run it in its own goroutine. An initial cycle fires immediately.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval)
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", "context cancelled")
			p.wg.Wait()
			return
		case <-p.stopChan:
			p.logger.Info("poller stopped")
			p.wg.Wait()
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// Stop signals the loop to exit. Safe to call more than once. The in-flight
// cycle, if any, is allowed to finish before Start returns.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
}

// State returns the latest committed valve state
func (p *Poller) State() (valve.State, time.Time) {
	return p.source.State()
}

// dispatch starts one poll cycle unless one is already in flight
func (p *Poller) dispatch(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Warn("previous poll cycle still running, skipping tick")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.cycle(ctx)
	}()
}

// cycle performs one poll with bounded retry. Only transport failures are
// retried; everything else logs and waits for the next scheduled tick. No
// failure terminates the loop.
func (p *Poller) cycle(ctx context.Context) {
	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		state, err := p.source.PollState(ctx)
		if err == nil {
			p.logger.Debug("poll cycle complete", "state", state.String(), "attempt", attempt)
			return
		}
		if !tuya.IsRetryable(err) {
			p.logger.Error("poll cycle failed", "error", err, "attempt", attempt)
			return
		}
		if attempt >= maxAttempts {
			p.logger.Error("poll cycle gave up", "error", err, "attempts", attempt)
			return
		}

		p.logger.Warn("poll attempt failed, backing off",
			"error", err,
			"attempt", attempt,
			"backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		}
		backoff *= 2
	}
}
