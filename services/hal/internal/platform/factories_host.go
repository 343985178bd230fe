//go:build !rp2040

package platform

import (
	"sync"
	"time"

	"irlearn-go/drivers/irraw"
	"irlearn-go/services/hal/internal/core"
)

// Default returns host resources: simulated pins, inert carriers, an
// emulated 24xx EEPROM and a mutex standing in for the interrupt mask.
func Default() core.Resources {
	r, _ := NewHost()
	return r.Resources(irraw.MonotonicClock.Micros, &sync.Mutex{})
}

// NewHost builds a host Registry and returns its pin factory so callers can
// drive receiver edges.
func NewHost() (*Registry, *HostPinFactory) {
	pins := &HostPinFactory{pins: make(map[int]*FakePin)}
	return NewRegistry(pins, &HostPWMFactory{}, NewHostEEPROM(32*1024, 64)), pins
}

// ----------------------------- I²C (host) ------------------------------------

// HostEEPROM emulates a 24xx part on drivers.I2C. A write sets the address
// pointer and stores data wrapping inside the current page; a read continues
// from the pointer.
type HostEEPROM struct {
	mu   sync.Mutex
	mem  []byte
	page int
	ptr  int
}

func NewHostEEPROM(size, page int) *HostEEPROM {
	m := make([]byte, size)
	for i := range m {
		m[i] = 0xFF
	}
	return &HostEEPROM{mem: m, page: page}
}

func (h *HostEEPROM) Tx(_ uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(w) >= 2 {
		h.ptr = (int(w[0])<<8 | int(w[1])) % len(h.mem)
		base := h.ptr - h.ptr%h.page
		off := h.ptr % h.page
		for _, b := range w[2:] {
			h.mem[base+off] = b
			off = (off + 1) % h.page
		}
	}
	for i := range r {
		r[i] = h.mem[h.ptr%len(h.mem)]
		h.ptr++
	}
	return nil
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin is a host GPIO. Set fires the installed handler on matching edges,
// which is how a simulated demodulator feeds the receiver.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	irqEdge core.Edge
	irqFunc func()
}

func (p *FakePin) Number() int { return p.number }

func (p *FakePin) ConfigureInput(pull core.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	// Demodulator output idles high; PullUp models that.
	p.level = pull == core.PullUp
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	irq := p.irqFunc
	want := irqWanted(p.irqEdge, edgeFrom(old, level))
	p.mu.Unlock()
	if want && irq != nil {
		irq()
	}
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *FakePin) SetIRQ(edge core.Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = core.EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

// Play toggles the pin once per sample, holding each level for the sample's
// duration in microseconds. It runs on its own goroutine, the host stand-in
// for an interrupt source, and closes the returned channel when done.
func (p *FakePin) Play(samples []uint16) <-chan struct{} {
	done := make(chan struct{})
	s := append([]uint16(nil), samples...)
	go func() {
		defer close(done)
		for _, us := range s {
			p.Set(!p.Get())
			time.Sleep(time.Duration(us) * time.Microsecond)
		}
		p.Set(!p.Get())
	}()
	return done
}

func edgeFrom(old, new bool) core.Edge {
	switch {
	case !old && new:
		return core.EdgeRising
	case old && !new:
		return core.EdgeFalling
	default:
		return core.EdgeNone
	}
}

func irqWanted(cfg, seen core.Edge) bool {
	switch cfg {
	case core.EdgeBoth:
		return seen == core.EdgeRising || seen == core.EdgeFalling
	default:
		return cfg != core.EdgeNone && cfg == seen
	}
}

// HostPinFactory returns stable *FakePin instances per number.
type HostPinFactory struct {
	mu   sync.Mutex
	pins map[int]*FakePin
}

func (f *HostPinFactory) ByNumber(n int) (core.GPIOHandle, bool) {
	if n < 0 {
		return nil, false
	}
	return f.Pin(n), true
}

// Pin exposes the underlying *FakePin, creating it on first use.
func (f *HostPinFactory) Pin(n int) *FakePin {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins == nil {
		f.pins = make(map[int]*FakePin)
	}
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{number: n}
		f.pins[n] = p
	}
	return p
}

// ----------------------------- PWM (host) ------------------------------------

// FakePWM records carrier configuration and gating.
type FakePWM struct {
	mu    sync.Mutex
	Hz    uint32
	On    bool
	Marks int
}

func (c *FakePWM) Configure(hz uint32) error {
	c.mu.Lock()
	c.Hz = hz
	c.mu.Unlock()
	return nil
}

func (c *FakePWM) Enable(on bool) {
	c.mu.Lock()
	if on && !c.On {
		c.Marks++
	}
	c.On = on
	c.mu.Unlock()
}

type HostPWMFactory struct {
	mu   sync.Mutex
	outs map[int]*FakePWM
}

func (f *HostPWMFactory) ByNumber(n int) (core.PWMHandle, bool) {
	if n < 0 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outs == nil {
		f.outs = make(map[int]*FakePWM)
	}
	c, ok := f.outs[n]
	if !ok {
		c = &FakePWM{}
		f.outs[n] = c
	}
	return c, true
}
