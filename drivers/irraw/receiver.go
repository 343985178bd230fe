package irraw

import (
	"context"
	"sync"
	"time"
)

// Config controls timing and integration hooks. All fields are optional.
type Config struct {
	// QuietTimeout without edges ends a capture. Default 100 ms.
	QuietTimeout time.Duration
	// SettleTimeout is waited after QuietTimeout before validation. Default 100 ms.
	SettleTimeout time.Duration
	// Clock defaults to MonotonicClock.
	Clock Clock
	// Mask guards state shared with the edge handler. On a microcontroller
	// it disables interrupts; on a host a mutex is enough. Default *sync.Mutex.
	Mask sync.Locker
	// OnOutcome is called from Poll, never from the edge handler.
	OnOutcome func(o Outcome, size int)
}

// Device is one IR receive/transmit pair.
type Device struct {
	rx  InputPin
	tx  Modulator
	cfg Config
	clk Clock

	quiet  uint32
	settle uint32

	// shared with the edge handler, guarded by cfg.Mask
	mask     sync.Locker
	state    State
	lastEdge uint32
	buf      buffer

	sendMu sync.Mutex
}

// New creates a Device in StateOff. The pins are not touched until Configure.
func New(rx InputPin, tx Modulator, cfg Config) *Device {
	if cfg.QuietTimeout <= 0 {
		cfg.QuietTimeout = DefaultQuietTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = MonotonicClock
	}
	if cfg.Mask == nil {
		cfg.Mask = &sync.Mutex{}
	}
	return &Device{
		rx:     rx,
		tx:     tx,
		cfg:    cfg,
		clk:    cfg.Clock,
		quiet:  durMicros(cfg.QuietTimeout),
		settle: durMicros(cfg.SettleTimeout),
		mask:   cfg.Mask,
		state:  StateOff,
	}
}

// Configure sets up both pins, arms the receiver and installs the edge handler.
func (d *Device) Configure() error {
	if err := d.rx.ConfigureInput(); err != nil {
		return wrapConfig("rx", err)
	}
	if d.tx != nil {
		if err := d.tx.Configure(); err != nil {
			return wrapConfig("tx", err)
		}
		d.tx.Idle()
	}

	d.mask.Lock()
	d.state = StateReady
	d.lastEdge = d.clk.Micros()
	d.buf.reset()
	d.mask.Unlock()

	if err := d.rx.SetIRQ(d.handleEdge); err != nil {
		d.setState(StateOff)
		return wrapConfig("irq", err)
	}
	return nil
}

// handleEdge runs in interrupt context. It must not allocate, block or log.
func (d *Device) handleEdge() {
	now := d.clk.Micros()
	d.mask.Lock()
	switch d.state {
	case StateReady:
		d.buf.reset()
		d.state = StateReceiving
	case StateReceiving:
		d.buf.push(now - d.lastEdge)
	}
	d.lastEdge = now
	d.mask.Unlock()
}

// Poll advances Receiving -> Finalizing after the quiet timeout and validates
// once the settle time has also elapsed. Both steps may happen in one call.
func (d *Device) Poll() {
	d.mask.Lock()
	now := d.clk.Micros()
	idle := now - d.lastEdge
	if d.state == StateReceiving && idle > d.quiet {
		d.state = StateFinalizing
	}
	if d.state != StateFinalizing || idle <= d.quiet+d.settle {
		d.mask.Unlock()
		return
	}
	size := d.buf.len()
	var o Outcome
	switch {
	case size < MinSize:
		o = OutcomeTooShort
		d.state = StateReady
	case d.buf.overflowed():
		o = OutcomeOverflow
		d.state = StateReady
	default:
		o = OutcomeValid
		d.state = StateAvailable
	}
	d.mask.Unlock()

	if d.cfg.OnOutcome != nil {
		d.cfg.OnOutcome(o, size)
	}
}

// Available finalises any pending capture and reports whether one is ready.
func (d *Device) Available() bool {
	d.Poll()
	return d.State() == StateAvailable
}

// Get returns a copy of the finished capture.
func (d *Device) Get() (Signal, error) {
	d.mask.Lock()
	defer d.mask.Unlock()
	if d.state != StateAvailable {
		return nil, ErrNotAvailable
	}
	return d.buf.snapshot(), nil
}

// Take returns the finished capture and re-arms the receiver in one masked
// step, so no edge can land between reading and clearing.
func (d *Device) Take() (Signal, error) {
	d.Poll()
	d.mask.Lock()
	defer d.mask.Unlock()
	if d.state != StateAvailable {
		return nil, ErrNotAvailable
	}
	s := d.buf.snapshot()
	d.state = StateReady
	d.buf.reset()
	return s, nil
}

// Clear discards any capture and re-arms the receiver. It has no effect when Off.
func (d *Device) Clear() {
	d.mask.Lock()
	defer d.mask.Unlock()
	if d.state == StateOff {
		return
	}
	d.state = StateReady
	d.buf.reset()
}

// WaitForAvailable polls every millisecond until a capture is ready, the
// timeout elapses or ctx is done. timeout <= 0 waits on ctx alone. It
// returns false once the wait has expired, even if a capture finalises on
// that tick; nothing is consumed either way.
func (d *Device) WaitForAvailable(ctx context.Context, timeout time.Duration) bool {
	if d.Available() {
		return true
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
			if ctx.Err() != nil {
				return false
			}
			if d.Available() {
				return true
			}
		}
	}
}

func (d *Device) State() State {
	d.mask.Lock()
	defer d.mask.Unlock()
	return d.state
}

// Close detaches the edge handler and turns the receiver off.
func (d *Device) Close() error {
	err := d.rx.ClearIRQ()
	d.setState(StateOff)
	if d.tx != nil {
		d.tx.Idle()
	}
	return err
}

func (d *Device) setState(s State) {
	d.mask.Lock()
	d.state = s
	d.mask.Unlock()
}

type configError struct {
	pin string
	err error
}

func (e *configError) Error() string { return ErrConfig.Error() + " (" + e.pin + "): " + e.err.Error() }

func (e *configError) Unwrap() []error { return []error{ErrConfig, e.err} }

func wrapConfig(pin string, err error) error { return &configError{pin: pin, err: err} }
