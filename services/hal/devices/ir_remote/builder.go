package ir_remote

import (
	"context"
	"io"
	"time"

	"irlearn-go/drivers/irraw"
	"irlearn-go/errcode"
	"irlearn-go/services/hal/internal/core"
	"irlearn-go/types"
	"irlearn-go/x/logx"
	"irlearn-go/x/mathx"
	"irlearn-go/x/strx"
)

func init() { core.RegisterBuilder("ir_remote", builder{}) }

const (
	defaultPollMs    = 5
	defaultSendGapMs = 100
	defaultLearn     = 10 * time.Second
)

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.Decode[types.IRParams](in.Params)
	if code != "" {
		return nil, code
	}
	if p.RxPin < 0 || p.TxPin < 0 || p.RxPin == p.TxPin {
		return nil, errcode.InvalidParams
	}
	p.Modulation = strx.Coalesce(p.Modulation, "carrier")
	if p.Modulation != "carrier" && p.Modulation != "soft" {
		return nil, errcode.InvalidParams
	}
	if p.Modulation == "carrier" && p.CarrierHz == 0 {
		p.CarrierHz = irraw.DefaultCarrierHz
	}
	p.Store = strx.Coalesce(p.Store, "mem")
	p.Domain = strx.Coalesce(p.Domain, "io")
	p.Name = strx.Coalesce(p.Name, in.ID)
	tol := irraw.DefaultTolerance
	if p.Tolerance != nil {
		tol = mathx.Clamp(*p.Tolerance, 0, 100)
	}
	if p.PollMs == 0 {
		p.PollMs = defaultPollMs
	}
	if p.SendGapMs == 0 {
		p.SendGapMs = defaultSendGapMs
	}

	reg := in.Res.Reg
	rx, err := reg.ClaimGPIO(in.ID, p.RxPin)
	if err != nil {
		return nil, err
	}
	var mod irraw.Modulator
	if p.Modulation == "carrier" {
		pwm, err := reg.ClaimPWM(in.ID, p.TxPin)
		if err != nil {
			reg.ReleasePin(in.ID, p.RxPin)
			return nil, err
		}
		mod = &irraw.CarrierModulator{Out: pwm, Hz: p.CarrierHz}
	} else {
		tx, err := reg.ClaimGPIO(in.ID, p.TxPin)
		if err != nil {
			reg.ReleasePin(in.ID, p.RxPin)
			return nil, err
		}
		mod = &irraw.SoftModulator{Pin: txPin{tx}}
	}

	st, err := reg.OpenStore(in.ID, p.Store, p.StorePath)
	if err != nil {
		reg.ReleasePin(in.ID, p.RxPin)
		reg.ReleasePin(in.ID, p.TxPin)
		return nil, errcode.Wrap(errcode.Config, "open store", err)
	}

	d := &Device{
		id:      in.ID,
		p:       p,
		addr:    core.CapAddr{Domain: p.Domain, Kind: types.KindIR, Name: p.Name},
		pub:     in.Res.Pub,
		reg:     reg,
		store:   st,
		log:     logx.New("ir"),
		tol:     tol,
		sendGap: time.Duration(p.SendGapMs) * time.Millisecond,
		learned: map[string]irraw.Signal{},
		sends:   make(chan sendReq, 4),
		poke:    make(chan struct{}, 1),
	}
	if c, ok := st.(io.Closer); ok {
		d.closer = c
	}

	cfg := irraw.Config{
		QuietTimeout:  time.Duration(p.QuietMs) * time.Millisecond,
		SettleTimeout: time.Duration(p.SettleMs) * time.Millisecond,
		Mask:          in.Res.Mask,
		OnOutcome:     d.onOutcome,
	}
	if in.Res.Micros != nil {
		cfg.Clock = irraw.ClockFunc(in.Res.Micros)
	}
	d.ir = irraw.New(rxPin{rx}, mod, cfg)
	return d, nil
}

// rxPin adapts a HAL GPIO to the receiver line: both edges, pulled up like
// the open-collector output of a demodulating receiver.
type rxPin struct{ h core.GPIOHandle }

func (p rxPin) ConfigureInput() error       { return p.h.ConfigureInput(core.PullUp) }
func (p rxPin) SetIRQ(handler func()) error { return p.h.SetIRQ(core.EdgeBoth, handler) }
func (p rxPin) ClearIRQ() error             { return p.h.ClearIRQ() }

type txPin struct{ h core.GPIOHandle }

func (p txPin) ConfigureOutput() error { return p.h.ConfigureOutput(false) }
func (p txPin) Set(high bool)          { p.h.Set(high) }
