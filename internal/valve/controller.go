package valve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"valvecloud/internal/tuya"
)

// Property codes for the remote water valve
const (
	PropMainSwitch    = "main_switch"           // rw, raw {"totalswitch": bool}
	PropGetStateTotal = "get_valve_state_total" // wr, bool
	PropStateList     = "valve_state_list"      // ro, raw {"valvestatelist": [bool...]}
)

// DefaultSettleDelay is how long to give the device to publish fresh state
// after a trigger before reading it back
const DefaultSettleDelay = 800 * time.Millisecond

// CloudAPI is the slice of the cloud client the controller needs
type CloudAPI interface {
	IssueProperties(ctx context.Context, props map[string]any) error
	QueryProperties(ctx context.Context, codes ...string) ([]tuya.Property, error)
}

// Controller drives one water valve through the cloud. It owns the derived
// valve state; transitions happen only after a successful read, never
// optimistically on a command.
type Controller struct {
	api         CloudAPI
	settleDelay time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	state     State
	updatedAt time.Time
}

// NewController creates a controller. A negative settleDelay selects the
// default; zero disables the delay entirely.
func NewController(api CloudAPI, settleDelay time.Duration, logger *slog.Logger) *Controller {
	if settleDelay < 0 {
		settleDelay = DefaultSettleDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		api:         api,
		settleDelay: settleDelay,
		logger:      logger.With("component", "valve-controller"),
		state:       StateUnknown,
	}
}

// Open commands the valve to open
func (c *Controller) Open(ctx context.Context) error {
	return c.setSwitch(ctx, true)
}

// Close commands the valve to close
func (c *Controller) Close(ctx context.Context) error {
	return c.setSwitch(ctx, false)
}

func (c *Controller) setSwitch(ctx context.Context, on bool) error {
	raw, err := tuya.EncodeRaw(map[string]bool{"totalswitch": on})
	if err != nil {
		return fmt.Errorf("failed to encode switch command: %w", err)
	}

	c.logger.Info("issuing switch command", "open", on)
	return c.api.IssueProperties(ctx, map[string]any{PropMainSwitch: raw})
}

// TriggerStateQuery asks the device to publish fresh valve state. The publish
// itself is asynchronous; there is no acknowledgment to wait on.
func (c *Controller) TriggerStateQuery(ctx context.Context) error {
	return c.api.IssueProperties(ctx, map[string]any{PropGetStateTotal: true})
}

// ReadState fetches the reported valve state and commits it. On any transport
// or decode failure the stored state is left untouched and the error surfaces
// to the caller.
func (c *Controller) ReadState(ctx context.Context) (State, error) {
	props, err := c.api.QueryProperties(ctx, PropStateList)
	if err != nil {
		return StateUnknown, err
	}

	var raw string
	found := false
	for _, p := range props {
		if p.Code == PropStateList {
			raw, err = p.StringValue()
			if err != nil {
				return StateUnknown, err
			}
			found = true
			break
		}
	}
	if !found {
		return StateUnknown, fmt.Errorf("%w: %s not reported", tuya.ErrMalformedProperty, PropStateList)
	}

	open, err := tuya.StateFlag(raw)
	if err != nil {
		return StateUnknown, err
	}
	state := stateFromFlag(open)

	c.mu.Lock()
	c.state = state
	c.updatedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("valve state read", "state", state.String())
	return state, nil
}

// PollState triggers a fresh device publish, waits out the settle delay, and
// reads the result. A single poll can occasionally return state from before
// the trigger; callers tolerate one interval of staleness.
func (c *Controller) PollState(ctx context.Context) (State, error) {
	if err := c.TriggerStateQuery(ctx); err != nil {
		return StateUnknown, err
	}
	if c.settleDelay > 0 {
		select {
		case <-time.After(c.settleDelay):
		case <-ctx.Done():
			return StateUnknown, ctx.Err()
		}
	}
	return c.ReadState(ctx)
}

// State returns the last committed state and when it was read. The zero time
// means no read has succeeded yet.
func (c *Controller) State() (State, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.updatedAt
}
