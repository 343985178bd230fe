// Package irraw captures, compares, replays and persists raw infrared pulse
// timings. It knows nothing about IR protocols: a Signal is just the
// sequence of mark/space durations seen on a demodulating receiver.
//
// A Device owns one receive pin and one transmit modulator. The receive side
// is a small state machine driven by an edge interrupt and finalised lazily
// from the main context:
//
//	Off --Configure--> Ready --edge--> Receiving --quiet--> Finalizing
//	                     ^                                      |
//	                     +---- too short / overflow <-----------+
//	                     |                                      v
//	                     +----------- Clear ---------------- Available
//
// Available() is the finalisation trigger; there is no background task.
package irraw

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"irlearn-go/x/conv"
)

const (
	// Capacity is the number of samples the capture buffer holds.
	Capacity = 800
	// MinSize is the smallest capture accepted as a signal.
	MinSize = 8
	// Placeholder marks a saturated interval; it is always followed by 0.
	Placeholder = 0xFFFF

	DefaultQuietTimeout  = 100 * time.Millisecond
	DefaultSettleTimeout = 100 * time.Millisecond
)

var (
	ErrConfig       = errors.New("irraw: pin configuration failed")
	ErrNotAvailable = errors.New("irraw: no capture available")
	ErrAbsent       = errors.New("irraw: no stored signal")
	ErrShortWrite   = errors.New("irraw: short write")
)

// Signal is a sequence of microsecond intervals, alternating mark and space
// and starting with a mark.
type Signal []uint16

func (s Signal) Clone() Signal {
	if s == nil {
		return nil
	}
	return append(Signal(nil), s...)
}

// Duration is the total elapsed time covered, placeholders included.
func (s Signal) Duration() time.Duration {
	var us uint64
	for _, v := range s {
		us += uint64(v)
	}
	return time.Duration(us) * time.Microsecond
}

// String renders the samples comma separated, the format used in capture dumps.
func (s Signal) String() string {
	return string(conv.AppendList(make([]byte, 0, len(s)*5), s, ','))
}

// ParseSignal reads the String format back. Blank input yields an empty signal.
func ParseSignal(text string) (Signal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Signal{}, nil
	}
	parts := strings.Split(text, ",")
	out := make(Signal, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return nil, err
		}
		out = append(out, uint16(v))
	}
	return out, nil
}

// State of the receive state machine.
type State uint8

const (
	StateOff State = iota
	StateReady
	StateReceiving
	StateFinalizing
	StateAvailable
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateReady:
		return "ready"
	case StateReceiving:
		return "receiving"
	case StateFinalizing:
		return "finalizing"
	case StateAvailable:
		return "available"
	default:
		return "unknown"
	}
}

// Outcome of validating a finished capture.
type Outcome uint8

const (
	OutcomeValid Outcome = iota
	OutcomeTooShort
	OutcomeOverflow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeTooShort:
		return "too_short"
	case OutcomeOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Clock is a free-running 32-bit microsecond counter. Differences are taken
// with unsigned subtraction so wraparound is harmless.
type Clock interface {
	Micros() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

func (f ClockFunc) Micros() uint32 { return f() }

var epoch = time.Now()

// MonotonicClock derives microseconds from the runtime's monotonic time.
var MonotonicClock Clock = ClockFunc(func() uint32 {
	return uint32(time.Since(epoch) / time.Microsecond)
})

// InputPin is the receiver line. SetIRQ must fire on both edges.
type InputPin interface {
	ConfigureInput() error
	SetIRQ(handler func()) error
	ClearIRQ() error
}

func durMicros(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Microsecond)
}
