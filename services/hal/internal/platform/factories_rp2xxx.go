//go:build rp2040

package platform

import (
	"machine"
	"runtime/interrupt"

	"github.com/sparques/pwm"

	"irlearn-go/drivers/irraw"
	"irlearn-go/services/hal/internal/core"
	"irlearn-go/x/timex"
)

// Default configures i2c0 for the EEPROM at 400 kHz and maps logical pin
// numbers directly to GP numbers.
func Default() core.Resources {
	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	r := NewRegistry(rp2PinFactory{}, rp2PWMFactory{}, b0)
	// the part of on-chip flash after the firmware image
	r.UseFlash(machine.Flash)
	return r.Resources(irraw.MonotonicClock.Micros, &interruptMask{})
}

// interruptMask excludes pin interrupt handlers from main-context critical
// sections. The RP2040 build runs on one core.
type interruptMask struct {
	state interrupt.State
}

func (m *interruptMask) Lock()   { m.state = interrupt.Disable() }
func (m *interruptMask) Unlock() { interrupt.Restore(m.state) }

// ---- GPIO ----

type rp2PinFactory struct{}

func (rp2PinFactory) ByNumber(n int) (core.GPIOHandle, bool) {
	// GP0..GP28.
	if n < 0 || n > 28 {
		return nil, false
	}
	return &rp2Pin{p: machine.Pin(n), n: n}, true
}

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) Number() int { return r.n }

func (r *rp2Pin) ConfigureInput(pull core.Pull) error {
	var mode machine.PinMode
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }

func (r *rp2Pin) SetIRQ(edge core.Edge, handler func()) error {
	return r.p.SetInterrupt(toPinChange(edge), func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

func toPinChange(e core.Edge) machine.PinChange {
	switch e {
	case core.EdgeRising:
		return machine.PinRising
	case core.EdgeFalling:
		return machine.PinFalling
	case core.EdgeBoth:
		return machine.PinToggle
	default:
		var zero machine.PinChange
		return zero
	}
}

// ---- PWM carrier ----

type rp2PWMFactory struct{}

func (rp2PWMFactory) ByNumber(n int) (core.PWMHandle, bool) {
	if n < 0 || n > 28 {
		return nil, false
	}
	return &rp2PWM{pin: machine.Pin(n)}, true
}

// rp2PWM drives a slice channel at 50% duty while enabled and 0% otherwise.
type rp2PWM struct {
	pin  machine.Pin
	g    pwm.Group
	ch   uint8
	duty uint32
}

func (c *rp2PWM) Configure(hz uint32) error {
	c.pin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	c.g = pwm.Get(c.pin)
	c.g.Configure(machine.PWMConfig{Period: timex.PeriodFromHz(hz)})
	ch, err := c.g.Channel(c.pin)
	if err != nil {
		return err
	}
	c.ch = ch
	c.duty = c.g.Top() / 2
	c.g.Set(c.ch, 0)
	return nil
}

func (c *rp2PWM) Enable(on bool) {
	if c.g == nil {
		return
	}
	if on {
		c.g.Set(c.ch, c.duty)
	} else {
		c.g.Set(c.ch, 0)
	}
}
