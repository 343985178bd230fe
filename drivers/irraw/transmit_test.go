package irraw

import (
	"sync"
	"testing"
)

func newSendRig(t *testing.T) (*Device, *fakeIRQPin, *fakeClock, *fakeModulator) {
	t.Helper()
	clk := &fakeClock{now: 5000}
	rx := &fakeIRQPin{}
	tx := &fakeModulator{}
	d := New(rx, tx, Config{Clock: clk})
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	return d, rx, clk, tx
}

func TestSendUsesCumulativeDeadlines(t *testing.T) {
	d, _, clk, tx := newSendRig(t)
	clk.step = 1

	s := Signal{9000, 4500, 560, 560, 560, 1690}
	start := clk.now
	if err := d.Send(s); err != nil {
		t.Fatal(err)
	}
	if len(tx.holds) != len(s) {
		t.Fatalf("holds = %d", len(tx.holds))
	}
	want := start
	for i, h := range tx.holds {
		want += uint32(s[i])
		if h.mark != (i%2 == 0) {
			t.Fatalf("hold %d mark=%v", i, h.mark)
		}
		if h.deadline != want {
			t.Fatalf("hold %d deadline=%d want %d", i, h.deadline, want)
		}
	}
	if clk.now < want {
		t.Fatalf("returned before the last boundary: now=%d want>=%d", clk.now, want)
	}
	if tx.idles == 0 {
		t.Fatal("output not left idle")
	}
	if d.State() != StateReady {
		t.Fatalf("state = %v", d.State())
	}
}

func TestSendDeadlinesSurviveWrap(t *testing.T) {
	d, _, clk, tx := newSendRig(t)
	clk.now = 0xFFFF_FF00
	clk.step = 1
	if err := d.Send(Signal{200, 200}); err != nil {
		t.Fatal(err)
	}
	want := uint32(0xFFFF_FF00)
	want += 400
	if got := tx.holds[1].deadline; got != want {
		t.Fatalf("deadline = %#x, want %#x", got, want)
	}
}

func TestSendWhileReceivingDropsPartial(t *testing.T) {
	d, rx, clk, tx := newSendRig(t)
	inject(rx, clk, 9000, 4500, 560)
	if d.State() != StateReceiving {
		t.Fatalf("state = %v", d.State())
	}

	clk.step = 1
	// edges produced during playback must be ignored
	tx.during = func(int) { rx.fire() }
	if err := d.Send(sample); err != nil {
		t.Fatal(err)
	}
	clk.step = 0

	if d.State() != StateReady {
		t.Fatalf("state = %v, want ready", d.State())
	}
	// a fresh session starts from scratch
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	if !d.Available() {
		t.Fatalf("state %v", d.State())
	}
	got, _ := d.Get()
	if len(got) != len(sample) || got[0] != sample[0] {
		t.Fatalf("got %v", got)
	}
}

func TestSendKeepsAvailableCapture(t *testing.T) {
	d, rx, clk, tx := newSendRig(t)
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	if !d.Available() {
		t.Fatal("setup")
	}
	clk.step = 1
	tx.during = func(int) { rx.fire() }
	if err := d.Send(Signal{100, 100}); err != nil {
		t.Fatal(err)
	}
	if d.State() != StateAvailable {
		t.Fatalf("state = %v", d.State())
	}
	got, _ := d.Get()
	if !Equal(got, sample, 0) {
		t.Fatalf("capture changed: %v", got)
	}
}

func TestSendWhileOffStaysOff(t *testing.T) {
	d, _, clk, _ := newSendRig(t)
	_ = d.Close()
	clk.step = 1
	if err := d.Send(Signal{10, 10}); err != nil {
		t.Fatal(err)
	}
	if d.State() != StateOff {
		t.Fatalf("state = %v", d.State())
	}
}

func TestSendEmptyIsNoop(t *testing.T) {
	d, _, _, tx := newSendRig(t)
	idles := tx.idles
	if err := d.Send(nil); err != nil {
		t.Fatal(err)
	}
	if len(tx.holds) != 0 || tx.idles != idles {
		t.Fatal("empty send touched the output")
	}
}

func TestSendWithoutTransmitter(t *testing.T) {
	d := New(&fakeIRQPin{}, nil, Config{Clock: &fakeClock{}})
	if err := d.Send(Signal{1}); err != ErrNoTransmitter {
		t.Fatalf("err = %v", err)
	}
}

func TestSendRestoresAfterPanic(t *testing.T) {
	d, rx, clk, tx := newSendRig(t)
	inject(rx, clk, 9000, 4500)
	clk.step = 1
	tx.during = func(i int) {
		if i == 1 {
			panic("modulator fault")
		}
	}
	func() {
		defer func() { _ = recover() }()
		_ = d.Send(sample)
	}()
	if d.State() != StateReady {
		t.Fatalf("state = %v", d.State())
	}
	if tx.idles < 2 {
		t.Fatal("output not idled on panic")
	}
}

func TestSendsAreSerialised(t *testing.T) {
	d, _, clk, tx := newSendRig(t)
	clk.step = 1
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Send(Signal{300, 300, 300, 300})
		}()
	}
	wg.Wait()
	if tx.overlap {
		t.Fatal("two sends interleaved")
	}
	if len(tx.holds) != 16 {
		t.Fatalf("holds = %d", len(tx.holds))
	}
}

func TestSoftModulator(t *testing.T) {
	out := &fakeOut{}
	m := &SoftModulator{Pin: out}
	if err := m.Configure(); err != nil {
		t.Fatal(err)
	}
	clk := &fakeClock{now: 100, step: 1}

	m.Hold(true, 200, clk)
	if clk.now < 200 {
		t.Fatalf("mark ended early at %d", clk.now)
	}
	highs := 0
	for _, s := range out.sets {
		if s {
			highs++
		}
	}
	// 100 us of marking at 24 us per cycle
	if highs < 4 || highs > 5 {
		t.Fatalf("sub-cycles = %d", highs)
	}
	if out.level {
		t.Fatal("mark left the pin high")
	}

	out.sets = nil
	m.Hold(false, clk.now+50, clk)
	if len(out.sets) != 1 || out.sets[0] {
		t.Fatalf("space writes %v", out.sets)
	}
}

func TestCarrierModulator(t *testing.T) {
	c := &fakeCarrier{}
	m := &CarrierModulator{Out: c}
	if err := m.Configure(); err != nil {
		t.Fatal(err)
	}
	if c.hz != DefaultCarrierHz {
		t.Fatalf("hz = %d", c.hz)
	}
	clk := &fakeClock{step: 1}
	m.Hold(true, 10, clk)
	m.Hold(false, 20, clk)
	m.Idle()
	want := []bool{true, false, false}
	for i := range want {
		if c.enables[i] != want[i] {
			t.Fatalf("enables = %v", c.enables)
		}
	}
}
