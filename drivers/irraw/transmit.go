package irraw

import (
	"errors"
	"time"
)

// DefaultCarrierHz is the usual consumer IR carrier.
const DefaultCarrierHz = 38_000

var ErrNoTransmitter = errors.New("irraw: no transmitter configured")

// Modulator drives the IR LED. Hold keeps the output marking (carrier on)
// or spacing until clk reaches deadline.
type Modulator interface {
	Configure() error
	Hold(mark bool, deadline uint32, clk Clock)
	Idle()
}

// waitUntil busy-waits; int32 subtraction keeps it correct across wraparound.
func waitUntil(clk Clock, deadline uint32) {
	for int32(deadline-clk.Micros()) > 0 {
	}
}

// Send replays s. The receiver is off for the duration so the device does
// not capture its own output; afterwards it is restored:
//
//	Ready, Receiving, Finalizing -> Ready (a partial capture is dropped)
//	Available                    -> Available (the capture is kept)
//	Off                          -> Off
//
// Interval boundaries are absolute deadlines from the start of playback, so
// per-interval overhead does not accumulate. Sends are serialised.
func (d *Device) Send(s Signal) error {
	if len(s) == 0 {
		return nil
	}
	if d.tx == nil {
		return ErrNoTransmitter
	}
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	d.mask.Lock()
	prev := d.state
	d.state = StateOff
	d.mask.Unlock()
	defer d.restoreAfterSend(prev)

	deadline := d.clk.Micros()
	for i, v := range s {
		deadline += uint32(v)
		d.tx.Hold(i%2 == 0, deadline, d.clk)
	}
	return nil
}

func (d *Device) restoreAfterSend(prev State) {
	d.tx.Idle()
	d.mask.Lock()
	defer d.mask.Unlock()
	switch prev {
	case StateReceiving, StateFinalizing:
		d.state = StateReady
		d.buf.reset()
	default:
		d.state = prev
	}
	d.lastEdge = d.clk.Micros()
}

// -----------------------------------------------------------------------------
// Hardware carrier
// -----------------------------------------------------------------------------

// Carrier is a PWM channel producing the modulation frequency.
type Carrier interface {
	Configure(hz uint32) error
	// Enable switches between 50% duty and a constant low output.
	Enable(on bool)
}

// CarrierModulator gates a hardware PWM carrier.
type CarrierModulator struct {
	Out Carrier
	Hz  uint32
}

func (m *CarrierModulator) Configure() error {
	if m.Hz == 0 {
		m.Hz = DefaultCarrierHz
	}
	return m.Out.Configure(m.Hz)
}

func (m *CarrierModulator) Hold(mark bool, deadline uint32, clk Clock) {
	m.Out.Enable(mark)
	waitUntil(clk, deadline)
}

func (m *CarrierModulator) Idle() { m.Out.Enable(false) }

// -----------------------------------------------------------------------------
// Software carrier
// -----------------------------------------------------------------------------

// OutputPin is a plain GPIO output.
type OutputPin interface {
	ConfigureOutput() error
	Set(high bool)
}

// SoftModulator bit-bangs the carrier on a GPIO: while marking it repeats
// High on, Low off. Defaults are 8 us and 16 us (about 41.7 kHz, 33% duty).
// Only the interval boundaries are exact; the last sub-cycle is cut short.
type SoftModulator struct {
	Pin  OutputPin
	High time.Duration
	Low  time.Duration

	high, low uint32
}

func (m *SoftModulator) Configure() error {
	if m.High <= 0 {
		m.High = 8 * time.Microsecond
	}
	if m.Low <= 0 {
		m.Low = 16 * time.Microsecond
	}
	m.high, m.low = durMicros(m.High), durMicros(m.Low)
	return m.Pin.ConfigureOutput()
}

func (m *SoftModulator) Hold(mark bool, deadline uint32, clk Clock) {
	if !mark {
		m.Pin.Set(false)
		waitUntil(clk, deadline)
		return
	}
	for int32(deadline-clk.Micros()) > 0 {
		m.Pin.Set(true)
		waitUntil(clk, earlier(clk.Micros()+m.high, deadline))
		m.Pin.Set(false)
		waitUntil(clk, earlier(clk.Micros()+m.low, deadline))
	}
}

func (m *SoftModulator) Idle() { m.Pin.Set(false) }

// earlier picks whichever deadline comes first, wrap-safe.
func earlier(a, b uint32) uint32 {
	if int32(a-b) < 0 {
		return a
	}
	return b
}
