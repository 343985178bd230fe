package core

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// PollReq is delivered to the HAL loop when a schedule fires.
type PollReq struct {
	Addr  CapAddr
	Verb  string
	Every time.Duration
}

type pollKey struct {
	a    CapAddr
	verb string
}

type schedule struct {
	every  time.Duration
	jitter time.Duration
	due    time.Time
	missed uint32
}

// Poller drives periodic control verbs, typically one receiver poll per IR
// device every few milliseconds. Ticks stay on a fixed grid from the first
// due time. A tick the HAL cannot take at once is dropped and counted.
type Poller struct {
	mu    sync.Mutex
	wake  chan struct{}
	sched map[pollKey]*schedule
	rand  *rand.Rand
	out   chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		wake:  make(chan struct{}, 1),
		sched: make(map[pollKey]*schedule),
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		out:   out,
	}
}

// Upsert adds or replaces a schedule. The first tick is due after interval
// plus a random jitter in [0, jitter]; jitter also offsets later ticks.
func (p *Poller) Upsert(a CapAddr, verb string, interval, jitter time.Duration) {
	if interval <= 0 || verb == "" {
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	p.mu.Lock()
	p.sched[pollKey{a, verb}] = &schedule{
		every:  interval,
		jitter: jitter,
		due:    time.Now().Add(interval + p.jitterLocked(jitter)),
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Poller) Stop(a CapAddr, verb string) {
	p.mu.Lock()
	delete(p.sched, pollKey{a, verb})
	p.mu.Unlock()
	p.wakeup()
}

// Missed reports how many ticks of a schedule were dropped.
func (p *Poller) Missed(a CapAddr, verb string) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.sched[pollKey{a, verb}]; s != nil {
		return s.missed
	}
	return 0
}

func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		fire, wait := p.next(time.Now())
		for _, r := range fire {
			select {
			case p.out <- r:
			default:
				p.countMiss(r)
			}
		}
		if len(fire) > 0 {
			continue
		}

		var tc <-chan time.Time
		if wait > 0 {
			timer.Reset(wait)
			tc = timer.C
		}
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			// a stale tick only costs one extra pass
			timer.Stop()
		case <-tc:
		}
	}
}

// next collects the schedules due at now and advances them. With nothing
// due it returns the time until the earliest tick, or 0 when idle.
func (p *Poller) next(now time.Time) ([]PollReq, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var fire []PollReq
	var wait time.Duration
	for k, s := range p.sched {
		if !s.due.After(now) {
			fire = append(fire, PollReq{Addr: k.a, Verb: k.verb, Every: s.every})
			s.due = s.due.Add(s.every + p.jitterLocked(s.jitter))
			if !s.due.After(now) {
				// fell more than a period behind; resume from now
				s.missed++
				s.due = now.Add(s.every)
			}
			continue
		}
		if d := s.due.Sub(now); wait == 0 || d < wait {
			wait = d
		}
	}
	return fire, wait
}

func (p *Poller) countMiss(r PollReq) {
	p.mu.Lock()
	if s := p.sched[pollKey{r.Addr, r.Verb}]; s != nil {
		s.missed++
	}
	p.mu.Unlock()
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) jitterLocked(jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return 0
	}
	return time.Duration(p.rand.Int63n(int64(jitter) + 1))
}
