// Package collector is the host side of the bridge: it decodes event frames
// from the device link, keeps recent captures per source and serves them
// over HTTP and a websocket stream.
package collector

import (
	"sort"
	"sync"
)

// DefaultKeep is the number of captures kept per source.
const DefaultKeep = 32

// Capture is one received signal as seen by the collector.
type Capture struct {
	Source     string   `json:"source"`
	TSms       int64    `json:"ts_ms"`
	Size       int      `json:"size"`
	DurationUs int64    `json:"duration_us"`
	Samples    []uint16 `json:"samples"`
	Match      string   `json:"match,omitempty"`
	Learned    string   `json:"learned,omitempty"`
}

// Store is a bounded per-source history with change fan-out.
type Store struct {
	mu    sync.Mutex
	keep  int
	bySrc map[string][]Capture
	subs  map[int]chan Capture
	next  int
}

func NewStore(keep int) *Store {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Store{keep: keep, bySrc: map[string][]Capture{}, subs: map[int]chan Capture{}}
}

// Add appends c, dropping the oldest capture of its source beyond the limit.
func (s *Store) Add(c Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := append(s.bySrc[c.Source], c)
	if len(l) > s.keep {
		l = append([]Capture(nil), l[len(l)-s.keep:]...)
	}
	s.bySrc[c.Source] = l
	s.notifyLocked(c)
}

// annotate updates the newest capture of src and re-announces it.
func (s *Store) annotate(src string, f func(*Capture)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.bySrc[src]
	if len(l) == 0 {
		return false
	}
	f(&l[len(l)-1])
	s.notifyLocked(l[len(l)-1])
	return true
}

// notifyLocked never blocks; a slow subscriber misses updates.
func (s *Store) notifyLocked(c Capture) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Snapshot returns copies of the captures for source, or for every source
// when source is empty.
func (s *Store) Snapshot(source string) map[string][]Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]Capture{}
	for src, l := range s.bySrc {
		if source != "" && src != source {
			continue
		}
		out[src] = append([]Capture(nil), l...)
	}
	return out
}

// Sources lists known sources in order.
func (s *Store) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bySrc))
	for src := range s.bySrc {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Subscribe returns a channel of new and updated captures and a cancel func.
func (s *Store) Subscribe() (<-chan Capture, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan Capture, 16)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
