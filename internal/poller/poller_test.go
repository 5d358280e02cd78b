package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valvecloud/internal/tuya"
	"valvecloud/internal/valve"
)

// slowSource simulates a controller whose polls take a configurable time and
// records how many polls ever ran concurrently
type slowSource struct {
	pollDelay time.Duration
	pollErr   error

	polls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu        sync.Mutex
	state     valve.State
	updatedAt time.Time
}

func (s *slowSource) PollState(ctx context.Context) (valve.State, error) {
	s.polls.Add(1)
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if current <= seen || s.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	if s.pollDelay > 0 {
		select {
		case <-time.After(s.pollDelay):
		case <-ctx.Done():
			return valve.StateUnknown, ctx.Err()
		}
	}
	if s.pollErr != nil {
		return valve.StateUnknown, s.pollErr
	}

	s.mu.Lock()
	s.state = valve.StateOpen
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return valve.StateOpen, nil
}

func (s *slowSource) State() (valve.State, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.updatedAt
}

func TestPoller_SkipsTickWhileCycleInFlight(t *testing.T) {
	// Each poll outlasts several ticks; overlapping cycles would show up as
	// maxSeen > 1 and a runaway poll count
	source := &slowSource{pollDelay: 100 * time.Millisecond}
	p := NewPoller(source, 20*time.Millisecond, nil, nil)

	go p.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	p.Stop()

	assert.Equal(t, int32(1), source.maxSeen.Load(), "no two cycles may overlap")
	assert.LessOrEqual(t, source.polls.Load(), int32(2))
}

func TestPoller_PollsOnInterval(t *testing.T) {
	source := &slowSource{}
	p := NewPoller(source, 20*time.Millisecond, nil, nil)

	go p.Start(context.Background())
	time.Sleep(110 * time.Millisecond)
	p.Stop()

	// Immediate first cycle plus roughly one per tick
	assert.GreaterOrEqual(t, source.polls.Load(), int32(3))

	state, updatedAt := p.State()
	assert.Equal(t, valve.StateOpen, state)
	assert.False(t, updatedAt.IsZero())
}

func TestPoller_RetriesTransportFailures(t *testing.T) {
	source := &slowSource{pollErr: &tuya.TransportError{Err: errors.New("timeout")}}
	p := NewPoller(source, time.Hour, nil, nil)
	p.backoff = time.Millisecond

	go p.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	// One cycle, maxAttempts attempts, then give up until the next tick
	assert.Equal(t, int32(maxAttempts), source.polls.Load())
}

func TestPoller_NoRetryForNonTransportFailures(t *testing.T) {
	source := &slowSource{pollErr: tuya.ErrMalformedProperty}
	p := NewPoller(source, time.Hour, nil, nil)
	p.backoff = time.Millisecond

	go p.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	assert.Equal(t, int32(1), source.polls.Load())
}

func TestPoller_FailingCyclesDoNotStopTheLoop(t *testing.T) {
	source := &slowSource{pollErr: &tuya.VendorError{Code: 1109, Msg: "param illegal"}}
	p := NewPoller(source, 20*time.Millisecond, nil, nil)

	go p.Start(context.Background())
	time.Sleep(110 * time.Millisecond)
	p.Stop()

	// The loop keeps scheduling cycles despite every one failing
	assert.GreaterOrEqual(t, source.polls.Load(), int32(3))
}

func TestPoller_StopWaitsForInFlightCycle(t *testing.T) {
	source := &slowSource{pollDelay: 80 * time.Millisecond}
	p := NewPoller(source, time.Hour, nil, nil)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond) // cycle is now in flight
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	require.Equal(t, int32(0), source.inFlight.Load())
	assert.Equal(t, int32(1), source.polls.Load())
}

func TestPoller_ContextCancelStopsLoop(t *testing.T) {
	source := &slowSource{}
	p := NewPoller(source, time.Hour, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	p := NewPoller(&slowSource{}, time.Hour, nil, nil)
	p.Stop()
	p.Stop()
}
