package core

import (
	"context"
	"time"

	"irlearn-go/bus"
	"irlearn-go/errcode"
	"irlearn-go/types"
	"irlearn-go/x/logx"
	"irlearn-go/x/timex"
)

const (
	eventQueueLen = 32
	pollQueueLen  = 8
)

var log = logx.New("hal")

type HAL struct {
	conn *bus.Connection
	res  Resources

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: addr -> devID
	capIndex map[CapAddr]string

	poller *Poller
	pollCh chan PollReq

	// Single-threaded publication of device events
	evCh chan Event
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		pollCh:   make(chan PollReq, pollQueueLen),
		evCh:     make(chan Event, eventQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(topicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)
	defer h.closeAll()

	go h.poller.Run(ctx)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-cfgSub.Channel():
			cfg, code := Decode[types.HALConfig](msg.Payload)
			if code != "" {
				log.Warn("bad hal config", "err", string(code))
				continue
			}
			// applyConfig is additive: existing devices are left alone.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m)
		case pr := <-h.pollCh:
			h.handlePoll(pr)
		case ev := <-h.evCh:
			// All device->HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			log.Warn("no builder", "type", dc.Type, "id", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{ID: dc.ID, Type: dc.Type, Params: dc.Params, Res: h.res})
		if err != nil {
			log.Error("build failed", "id", dc.ID, "err", err)
			continue
		}

		// Register capabilities first so Init can emit against them.
		caps := dev.Capabilities()
		for _, cs := range caps {
			a := CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
			if a.Domain == "" {
				a.Domain = "io"
			}
			if a.Name == "" {
				a.Name = dev.ID()
			}
			h.capIndex[a] = dev.ID()
			h.conn.Publish(h.conn.NewMessage(capInfo(a), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(capStatus(a),
				types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()}, true))
		}

		if err := dev.Init(ctx); err != nil {
			log.Error("init failed", "id", dc.ID, "err", err)
			for _, cs := range caps {
				a := CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
				delete(h.capIndex, a)
				h.conn.Publish(h.conn.NewMessage(capStatus(a), types.CapabilityStatus{
					Link: types.LinkDegraded, TSms: timex.NowMs(), Error: string(errcode.Of(err)),
				}, true))
			}
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev
		for _, cs := range caps {
			if cs.PollEvery > 0 && cs.PollVerb != "" {
				h.poller.Upsert(CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}, cs.PollVerb, cs.PollEvery, 0)
			}
		}
		log.Info("device up", "id", dev.ID(), "type", dc.Type)
	}

	for _, ps := range cfg.Pollers {
		a := CapAddr{Domain: ps.Domain, Kind: ps.Kind, Name: ps.Name}
		verb := ps.Verb
		if verb == "" {
			verb = "poll"
		}
		h.poller.Upsert(a, verb,
			time.Duration(ps.IntervalMs)*time.Millisecond,
			time.Duration(ps.JitterMs)*time.Millisecond)
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)
	a := CapAddr{Domain: domain, Kind: types.Kind(kind), Name: name}

	dev, ok := h.owner(a)
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	res, err := dev.Control(a, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if !msg.CanReply() {
		return
	}
	if !res.OK {
		code := res.Error
		if code == "" {
			code = errcode.Busy
		}
		h.replyErr(msg, code)
		return
	}
	if res.Reply != nil {
		h.conn.Reply(msg, res.Reply, false)
		return
	}
	h.replyOK(msg)
}

func (h *HAL) handlePoll(pr PollReq) {
	dev, ok := h.owner(pr.Addr)
	if !ok {
		return
	}
	if _, err := dev.Control(pr.Addr, pr.Verb, nil); err != nil {
		log.Debug("poll failed", "cap", pr.Addr.Name, "err", err)
	}
}

func (h *HAL) owner(a CapAddr) (Device, bool) {
	id, ok := h.capIndex[a]
	if !ok {
		return nil, false
	}
	dev := h.dev[id]
	return dev, dev != nil
}

func (h *HAL) handleEvent(ev Event) {
	a := ev.Addr
	ts := ev.TSms
	if ts == 0 {
		ts = timex.NowMs()
	}

	// Error: retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(capStatus(a),
			types.CapabilityStatus{Link: types.LinkDegraded, TSms: ts, Error: ev.Err}, true))
		return
	}

	if ev.EventTag != "" {
		h.conn.Publish(h.conn.NewMessage(capEvent(a, ev.EventTag), ev.Payload, false))
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(a), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(capStatus(a),
		types.CapabilityStatus{Link: types.LinkUp, TSms: ts}, true))
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(topicHALState(),
		types.HALState{Level: level, Status: status, TSms: timex.NowMs()}, true))
}

func (h *HAL) closeAll() {
	for id, d := range h.dev {
		if err := d.Close(); err != nil {
			log.Warn("close failed", "id", id, "err", err)
		}
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
