package irraw

import (
	"context"
	"errors"
	"testing"
	"time"
)

var sample = Signal{3519, 1707, 471, 400, 471, 1290, 471, 400, 471, 1290, 471, 400}

type outcomeLog struct {
	o    []Outcome
	size []int
}

func newRig(t *testing.T) (*Device, *fakeIRQPin, *fakeClock, *outcomeLog) {
	t.Helper()
	clk := &fakeClock{now: 1000}
	rx := &fakeIRQPin{}
	log := &outcomeLog{}
	d := New(rx, &fakeModulator{}, Config{
		Clock: clk,
		OnOutcome: func(o Outcome, n int) {
			log.o = append(log.o, o)
			log.size = append(log.size, n)
		},
	})
	if err := d.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return d, rx, clk, log
}

// inject fires a starting edge and then one edge after each delta.
func inject(rx *fakeIRQPin, clk *fakeClock, deltas ...uint32) {
	rx.fire()
	for _, d := range deltas {
		clk.advance(d)
		rx.fire()
	}
}

func u32(s Signal) []uint32 {
	out := make([]uint32, len(s))
	for i, v := range s {
		out[i] = uint32(v)
	}
	return out
}

const pastQuiet = 100_001
const pastSettle = 100_000

func TestCaptureBecomesAvailable(t *testing.T) {
	d, rx, clk, log := newRig(t)
	if d.State() != StateReady {
		t.Fatalf("state after Configure = %v", d.State())
	}

	inject(rx, clk, u32(sample)...)
	if d.State() != StateReceiving {
		t.Fatalf("state = %v, want receiving", d.State())
	}
	if d.Available() {
		t.Fatal("available before quiet timeout")
	}

	clk.advance(pastQuiet)
	if d.Available() {
		t.Fatal("available before settle timeout")
	}
	if d.State() != StateFinalizing {
		t.Fatalf("state = %v, want finalizing", d.State())
	}

	clk.advance(pastSettle)
	if !d.Available() {
		t.Fatalf("not available, state %v", d.State())
	}
	got, err := d.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, sample, 0) || len(got) != len(sample) {
		t.Fatalf("got %v, want %v", got, sample)
	}
	if len(log.o) != 1 || log.o[0] != OutcomeValid || log.size[0] != len(sample) {
		t.Fatalf("outcomes %+v", log)
	}
}

func TestPollFinalizesInOneCall(t *testing.T) {
	d, rx, clk, _ := newRig(t)
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	if !d.Available() {
		t.Fatalf("state %v", d.State())
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	d, rx, clk, _ := newRig(t)
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	d.Available()

	a, _ := d.Get()
	a[0] = 1
	b, _ := d.Get()
	if b[0] != sample[0] {
		t.Fatal("Get exposed the live buffer")
	}
}

func TestTooShortIsDropped(t *testing.T) {
	d, rx, clk, log := newRig(t)
	inject(rx, clk, 900, 450, 560, 560, 560)
	clk.advance(pastQuiet + pastSettle)

	if d.Available() {
		t.Fatal("short capture must not become available")
	}
	if d.State() != StateReady {
		t.Fatalf("state = %v", d.State())
	}
	if _, err := d.Get(); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("Get err = %v", err)
	}
	if len(log.o) != 1 || log.o[0] != OutcomeTooShort || log.size[0] != 5 {
		t.Fatalf("outcomes %+v", log)
	}
}

func TestOverflowIsDroppedAndRearms(t *testing.T) {
	d, rx, clk, log := newRig(t)
	deltas := make([]uint32, Capacity+20)
	for i := range deltas {
		deltas[i] = 500
	}
	inject(rx, clk, deltas...)
	clk.advance(pastQuiet + pastSettle)

	if d.Available() {
		t.Fatal("overflowed capture must not become available")
	}
	if len(log.o) != 1 || log.o[0] != OutcomeOverflow || log.size[0] != Capacity {
		t.Fatalf("outcomes %+v", log)
	}

	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	if !d.Available() {
		t.Fatal("receiver did not re-arm after overflow")
	}
	got, _ := d.Get()
	if len(got) != len(sample) {
		t.Fatalf("len = %d", len(got))
	}
}

func TestExactlyCapacityIsOverflow(t *testing.T) {
	d, rx, clk, log := newRig(t)
	deltas := make([]uint32, Capacity)
	for i := range deltas {
		deltas[i] = 300
	}
	inject(rx, clk, deltas...)
	clk.advance(pastQuiet + pastSettle)
	if d.Available() || log.o[0] != OutcomeOverflow {
		t.Fatalf("outcomes %+v", log)
	}
}

func TestEdgesIgnoredWhileAvailable(t *testing.T) {
	d, rx, clk, _ := newRig(t)
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	d.Available()

	inject(rx, clk, 100, 200, 300)
	got, err := d.Get()
	if err != nil || len(got) != len(sample) {
		t.Fatalf("capture disturbed: %v %v", got, err)
	}
}

func TestClear(t *testing.T) {
	d, rx, clk, _ := newRig(t)
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	d.Available()

	d.Clear()
	if d.State() != StateReady {
		t.Fatalf("state = %v", d.State())
	}
	if _, err := d.Get(); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("Get after Clear: %v", err)
	}

	_ = d.Close()
	d.Clear()
	if d.State() != StateOff {
		t.Fatalf("Clear must not arm a closed device, state %v", d.State())
	}
}

func TestCloseStopsCapture(t *testing.T) {
	d, rx, clk, _ := newRig(t)
	_ = d.Close()
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)
	if d.Available() || d.State() != StateOff {
		t.Fatalf("state = %v", d.State())
	}
}

func TestWaitForAvailable(t *testing.T) {
	d, rx, clk, _ := newRig(t)

	start := time.Now()
	if d.WaitForAvailable(context.Background(), 20*time.Millisecond) {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned before the timeout")
	}

	inject(rx, clk, u32(sample)...)
	go func() {
		time.Sleep(5 * time.Millisecond)
		clk.advance(pastQuiet + pastSettle)
	}()
	if !d.WaitForAvailable(context.Background(), time.Second) {
		t.Fatal("expected capture")
	}
	// Waiting consumes nothing.
	if !d.Available() {
		t.Fatal("capture consumed by WaitForAvailable")
	}
}

func TestWaitForAvailableHonoursContext(t *testing.T) {
	d, _, _, _ := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	done := make(chan bool, 1)
	go func() { done <- d.WaitForAvailable(ctx, 0) }()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("unexpected capture")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForAvailable ignored cancellation")
	}
}

func TestWaitForAvailableFalseAfterExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	// The capture finalises only once the wait has expired.
	base := &fakeClock{now: 1000}
	clk := ClockFunc(func() uint32 {
		v := base.Micros()
		if ctx.Err() != nil {
			v += pastQuiet + pastSettle
		}
		return v
	})
	rx := &fakeIRQPin{}
	d := New(rx, &fakeModulator{}, Config{Clock: clk})
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	inject(rx, base, u32(sample)...)

	if d.WaitForAvailable(ctx, 0) {
		t.Fatal("reported a capture after the wait expired")
	}
	if !d.Available() {
		t.Fatalf("capture should still be there, state %v", d.State())
	}
}

func TestTakeReturnsAndRearms(t *testing.T) {
	d, rx, clk, _ := newRig(t)
	if _, err := d.Take(); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("empty take: %v", err)
	}
	inject(rx, clk, u32(sample)...)
	clk.advance(pastQuiet + pastSettle)

	got, err := d.Take()
	if err != nil || !Equal(got, sample, 0) {
		t.Fatalf("take = %v, %v", got, err)
	}
	if d.State() != StateReady {
		t.Fatalf("state after take = %v", d.State())
	}
	if _, err := d.Get(); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("capture still readable: %v", err)
	}
}

func TestConfigureErrors(t *testing.T) {
	pinErr := errors.New("no such pin")
	d := New(&fakeIRQPin{cfgErr: pinErr}, &fakeModulator{}, Config{})
	err := d.Configure()
	if !errors.Is(err, ErrConfig) || !errors.Is(err, pinErr) {
		t.Fatalf("err = %v", err)
	}
	if d.State() != StateOff {
		t.Fatalf("state = %v", d.State())
	}

	d = New(&fakeIRQPin{irqErr: pinErr}, &fakeModulator{}, Config{})
	if err := d.Configure(); !errors.Is(err, ErrConfig) {
		t.Fatalf("irq err = %v", err)
	}
	if d.State() != StateOff {
		t.Fatalf("state after irq failure = %v", d.State())
	}

	d = New(&fakeIRQPin{}, &fakeModulator{cfgErr: pinErr}, Config{})
	if err := d.Configure(); !errors.Is(err, ErrConfig) {
		t.Fatalf("tx err = %v", err)
	}
}

func TestStateAndOutcomeStrings(t *testing.T) {
	if StateFinalizing.String() != "finalizing" || OutcomeOverflow.String() != "overflow" {
		t.Fatal("unexpected names")
	}
}
