package ir_remote

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"irlearn-go/drivers/irraw"
	"irlearn-go/errcode"
	"irlearn-go/services/hal/internal/core"
	"irlearn-go/types"
	"irlearn-go/x/kvstore"
	"irlearn-go/x/logx"
)

// keyPrefix namespaces learned signals inside a shared store ("ir_on", "ir_off").
const keyPrefix = "ir_"

// sendReq is queued for the worker; playback busy-waits.
type sendReq struct {
	name    string
	samples irraw.Signal
}

type Device struct {
	id      string
	p       types.IRParams
	addr    core.CapAddr
	pub     core.EventEmitter
	reg     core.ResourceRegistry
	store   kvstore.Store
	closer  io.Closer
	log     *logx.Logger
	ir      *irraw.Device
	tol     float32
	sendGap time.Duration

	mu      sync.Mutex
	learned map[string]irraw.Signal
	pending string
	learnBy time.Time
	arms    uint32 // bumped whenever a learn re-arms the receiver

	sends  chan sendReq
	poke   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.addr.Domain,
		Kind:   types.KindIR,
		Name:   d.addr.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "ir_remote",
			Detail: types.IRInfo{
				RxPin:      d.p.RxPin,
				TxPin:      d.p.TxPin,
				Modulation: d.p.Modulation,
				CarrierHz:  d.p.CarrierHz,
				Capacity:   irraw.Capacity,
				MinSize:    irraw.MinSize,
				Tolerance:  d.tol,
				Store:      d.p.Store,
			},
		},
		PollVerb:  "poll",
		PollEvery: time.Duration(d.p.PollMs) * time.Millisecond,
	}}
}

func (d *Device) Init(ctx context.Context) error {
	if err := d.loadLearned(); err != nil {
		return errcode.Wrap(errcode.Config, "load learned", err)
	}
	if err := d.ir.Configure(); err != nil {
		return errcode.Wrap(errcode.Config, "configure", err)
	}
	wctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(wctx)

	d.log.Info("ready", "rx", d.p.RxPin, "tx", d.p.TxPin, "learned", len(d.learned))
	d.emitValue()
	return nil
}

func (d *Device) loadLearned() error {
	for _, key := range d.store.Keys() {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		s, err := irraw.Load(d.store, key)
		if errors.Is(err, irraw.ErrAbsent) {
			continue
		}
		if err != nil {
			return err
		}
		d.learned[strings.TrimPrefix(key, keyPrefix)] = s
	}
	return nil
}

func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	err := d.ir.Close()
	d.reg.ReleasePin(d.id, d.p.RxPin)
	d.reg.ReleasePin(d.id, d.p.TxPin)
	if d.closer != nil {
		err = errors.Join(err, d.closer.Close())
	}
	return err
}

// Control runs on the HAL goroutine. State changes take effect before the
// reply; only playback is queued for the worker.
func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "poll":
		select {
		case d.poke <- struct{}{}:
		default:
		}
		return core.EnqueueResult{OK: true}, nil

	case "read":
		d.emitValue()
		return core.EnqueueResult{OK: true}, nil

	case "list":
		return core.EnqueueResult{OK: true, Reply: types.IRList{Names: d.names()}}, nil

	case "learn":
		req, code := core.Decode[types.IRLearn](payload)
		if code != "" || req.Name == "" {
			return core.EnqueueResult{Error: errcode.InvalidParams}, nil
		}
		d.startLearn(req.Name, time.Duration(req.TimeoutMs)*time.Millisecond)
		return core.EnqueueResult{OK: true}, nil

	case "send":
		req, code := core.Decode[types.IRSend](payload)
		if code != "" || (req.Name == "" && len(req.Samples) == 0) {
			return core.EnqueueResult{Error: errcode.InvalidParams}, nil
		}
		if req.Name != "" {
			if _, ok := d.lookup(req.Name); !ok {
				return core.EnqueueResult{Error: errcode.Absent}, nil
			}
		}
		return d.enqueue(sendReq{name: req.Name, samples: irraw.Signal(req.Samples)}), nil

	case "forget":
		req, code := core.Decode[types.IRForget](payload)
		if code != "" || req.Name == "" {
			return core.EnqueueResult{Error: errcode.InvalidParams}, nil
		}
		if code := d.forget(req.Name); code != "" {
			return core.EnqueueResult{Error: code}, nil
		}
		return core.EnqueueResult{OK: true}, nil

	case "clear":
		d.ir.Clear()
		d.emitValue()
		return core.EnqueueResult{OK: true}, nil

	default:
		return core.EnqueueResult{Error: errcode.Unsupported}, nil
	}
}

func (d *Device) enqueue(r sendReq) core.EnqueueResult {
	select {
	case d.sends <- r:
		return core.EnqueueResult{OK: true}
	default:
		return core.EnqueueResult{Error: errcode.Busy}
	}
}

// ---- worker ----

func (d *Device) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.poke:
			d.service()
		case r := <-d.sends:
			d.send(r)
		}
	}
}

// service is the main-loop body: expire a stale learn, then take the
// capture (re-arming the receiver) and act on it.
func (d *Device) service() {
	d.learnExpired()

	// A learn clears the receiver before it sets pending, so a capture
	// taken after seeing pending was recorded after the learn began.
	d.mu.Lock()
	pending := d.pending
	d.mu.Unlock()

	s, err := d.ir.Take()
	if err != nil {
		return
	}
	d.log.Info("capture", "size", len(s), "raw", s.String())

	d.mu.Lock()
	if pending != "" && d.pending == pending {
		d.pending = ""
	} else {
		pending = ""
	}
	refs := make(map[string]irraw.Signal, len(d.learned))
	for k, v := range d.learned {
		refs[k] = v
	}
	d.mu.Unlock()

	name, hit := irraw.Match(s, d.tol, refs)
	d.emit("rx", types.IRCapture{Size: len(s), DurationUs: s.Duration().Microseconds(), Samples: s, Match: name})

	if pending != "" {
		d.learn(pending, s)
		return
	}
	if hit {
		d.emit("match", types.IRMatch{Name: name})
	} else {
		d.emit("unknown", types.IRCapture{Size: len(s)})
	}
}

// startLearn re-arms the receiver and marks the next capture for name.
func (d *Device) startLearn(name string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultLearn
	}
	d.ir.Clear()
	d.mu.Lock()
	d.pending = name
	d.learnBy = time.Now().Add(timeout)
	d.arms++
	d.mu.Unlock()
	d.log.Info("learning", "name", name, "timeout_ms", timeout.Milliseconds())
	d.emitValue()
}

func (d *Device) learn(name string, s irraw.Signal) {
	if err := irraw.Save(d.store, keyPrefix+name, s); err != nil {
		d.log.Error("save failed", "name", name, "err", err)
		d.emit("error", types.IRFailure{Name: name, Error: string(errcode.MapDriverErr(err,
			errcode.Mapping{Err: irraw.ErrShortWrite, Code: errcode.ShortWrite},
			errcode.Mapping{Err: kvstore.ErrKey, Code: errcode.InvalidParams}))})
		d.emitValue()
		return
	}
	d.mu.Lock()
	d.learned[name] = s.Clone()
	d.mu.Unlock()
	d.log.Info("learned", "name", name, "size", len(s))
	d.emit("learned", types.IRLearned{Name: name, Size: len(s)})
	d.emitValue()
}

func (d *Device) learnExpired() {
	d.mu.Lock()
	name := d.pending
	if name == "" || time.Now().Before(d.learnBy) {
		d.mu.Unlock()
		return
	}
	d.pending = ""
	d.mu.Unlock()
	d.log.Warn("learn timed out", "name", name)
	d.emit("learn_timeout", types.IRFailure{Name: name, Error: string(errcode.Timeout)})
	d.emitValue()
}

func (d *Device) send(r sendReq) {
	s := r.samples
	if r.name != "" {
		var ok bool
		if s, ok = d.lookup(r.name); !ok {
			d.emit("error", types.IRFailure{Name: r.name, Error: string(errcode.Absent)})
			return
		}
	}
	if len(s) == 0 {
		d.emit("error", types.IRFailure{Name: r.name, Error: string(errcode.NoSignal)})
		return
	}
	d.mu.Lock()
	arms := d.arms
	d.mu.Unlock()
	if err := d.ir.Send(s); err != nil {
		d.emit("error", types.IRFailure{Name: r.name, Error: string(errcode.Of(err))})
		return
	}
	d.log.Info("sent", "name", r.name, "size", len(s))

	// let reflections die down, then drop anything the receiver caught
	// unless a learn re-armed it meanwhile
	time.Sleep(d.sendGap)
	d.mu.Lock()
	rearmed := d.arms != arms
	d.mu.Unlock()
	if !rearmed && d.ir.State() != irraw.StateAvailable {
		d.ir.Clear()
	}
	d.emit("sent", types.IRSent{Name: r.name, Size: len(s)})
}

// forget drops name from the store and from memory before Control replies.
func (d *Device) forget(name string) errcode.Code {
	if _, ok := d.lookup(name); !ok {
		return errcode.Absent
	}
	if err := d.store.Delete(keyPrefix + name); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		d.log.Error("forget failed", "name", name, "err", err)
		return errcode.Of(err)
	}
	d.mu.Lock()
	delete(d.learned, name)
	d.mu.Unlock()
	d.log.Info("forgot", "name", name)
	d.emitValue()
	return ""
}

// ---- helpers ----

func (d *Device) onOutcome(o irraw.Outcome, size int) {
	switch o {
	case irraw.OutcomeTooShort:
		d.log.Info("capture skipped", "size", size, "reason", o.String())
	case irraw.OutcomeOverflow:
		d.log.Error("capture overflow", "size", size)
	}
}

func (d *Device) lookup(name string) (irraw.Signal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.learned[name]
	return s, ok
}

func (d *Device) names() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.learned))
	for k := range d.learned {
		out = append(out, k)
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}

func (d *Device) emit(tag string, payload any) {
	if !d.pub.Emit(core.Event{Addr: d.addr, EventTag: tag, Payload: payload}) {
		d.log.Warn("event dropped", "tag", tag)
	}
}

func (d *Device) emitValue() {
	d.mu.Lock()
	v := types.IRValue{State: d.ir.State().String(), Learned: len(d.learned), Pending: d.pending}
	d.mu.Unlock()
	_ = d.pub.Emit(core.Event{Addr: d.addr, Payload: v})
}
