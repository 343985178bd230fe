package irraw

import (
	"errors"
	"sync"
)

// fakeClock returns now and then advances by step, so busy-waits terminate.
type fakeClock struct {
	mu   sync.Mutex
	now  uint32
	step uint32
}

func (c *fakeClock) Micros() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.now
	c.now += c.step
	return v
}

func (c *fakeClock) advance(us uint32) {
	c.mu.Lock()
	c.now += us
	c.mu.Unlock()
}

// fakeIRQPin stands in for the receiver line; fire() plays the interrupt.
type fakeIRQPin struct {
	mu      sync.Mutex
	handler func()
	cfgErr  error
	irqErr  error
}

func (p *fakeIRQPin) ConfigureInput() error { return p.cfgErr }

func (p *fakeIRQPin) SetIRQ(h func()) error {
	if p.irqErr != nil {
		return p.irqErr
	}
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return nil
}

func (p *fakeIRQPin) ClearIRQ() error {
	p.mu.Lock()
	p.handler = nil
	p.mu.Unlock()
	return nil
}

func (p *fakeIRQPin) fire() {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

type hold struct {
	mark     bool
	deadline uint32
}

// fakeModulator records every Hold and can run a hook inside it.
type fakeModulator struct {
	mu      sync.Mutex
	holds   []hold
	idles   int
	active  int
	overlap bool
	during  func(i int)
	cfgErr  error
}

func (m *fakeModulator) Configure() error { return m.cfgErr }

func (m *fakeModulator) Hold(mark bool, deadline uint32, clk Clock) {
	m.mu.Lock()
	m.active++
	if m.active > 1 {
		m.overlap = true
	}
	i := len(m.holds)
	m.holds = append(m.holds, hold{mark, deadline})
	hook := m.during
	m.mu.Unlock()

	if hook != nil {
		hook(i)
	}
	waitUntil(clk, deadline)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}

func (m *fakeModulator) Idle() {
	m.mu.Lock()
	m.idles++
	m.mu.Unlock()
}

// fakeOut records GPIO writes for SoftModulator.
type fakeOut struct {
	sets  []bool
	level bool
}

func (o *fakeOut) ConfigureOutput() error { return nil }
func (o *fakeOut) Set(high bool)          { o.level = high; o.sets = append(o.sets, high) }

type fakeCarrier struct {
	hz      uint32
	enables []bool
}

func (c *fakeCarrier) Configure(hz uint32) error { c.hz = hz; return nil }
func (c *fakeCarrier) Enable(on bool)            { c.enables = append(c.enables, on) }

// shortStore reports fewer bytes than it was given.
type shortStore struct{ cut int }

func (s shortStore) Put(_ string, p []byte) (int, error) { return len(p) - s.cut, nil }
func (s shortStore) Get(string) ([]byte, error)          { return nil, errors.New("unused") }

type failStore struct{}

var errBackend = errors.New("backend down")

func (failStore) Put(string, []byte) (int, error) { return 0, errBackend }
func (failStore) Get(string) ([]byte, error)      { return nil, errBackend }
