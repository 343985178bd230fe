package core

import (
	"context"
	"sync"
	"time"

	"irlearn-go/errcode"
	"irlearn-go/types"
	"irlearn-go/x/kvstore"
)

// ---- Capability & device model ----

// CapAddr is the (domain, kind, name) triple a capability is published under.
type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string
	Kind   types.Kind
	Name   string
	Info   types.Info

	// PollEvery > 0 makes the HAL call Control(PollVerb) on that period.
	PollVerb  string
	PollEvery time.Duration
}

// EnqueueResult is the immediate answer to a control. Reply, when set,
// replaces the default OK reply.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
	Reply any
}

// Device is owned by the HAL. Control runs on the HAL goroutine and must
// not block; long work is handed to the device's own worker.
type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Device -> HAL telemetry (single shape) ----
// An Event with an empty EventTag is a value update, published retained to
// .../value. With a tag it goes to .../event/<tag>, not retained. Err, when
// non-empty, publishes only .../status=degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64
	Err      string
	EventTag string
}

// EventEmitter must be non-blocking; false means the event was dropped.
type EventEmitter interface {
	Emit(ev Event) bool
}

// ---- GPIO / PWM handles ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(bool)
	Get() bool
	// SetIRQ installs handler for edge. It runs in interrupt context on
	// hardware and must not block or allocate.
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

// PWMHandle is a carrier output: a fixed frequency at 50% duty, gated on/off.
type PWMHandle interface {
	Configure(hz uint32) error
	Enable(on bool)
}

// ---- HAL-injected resources ----

type ResourceRegistry interface {
	ClaimGPIO(devID string, pin int) (GPIOHandle, error)
	ClaimPWM(devID string, pin int) (PWMHandle, error)
	ReleasePin(devID string, pin int)

	// OpenStore returns the key-value store kind ("mem", "flash", "eeprom", "file").
	OpenStore(devID, kind, path string) (kvstore.Store, error)
}

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL

	// Micros is a free-running microsecond counter.
	Micros func() uint32
	// Mask serialises main-context code against interrupt handlers.
	Mask sync.Locker
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
