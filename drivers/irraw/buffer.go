package irraw

// buffer is the fixed capture store shared with the edge handler. Once full
// it drops further samples and remembers that it did.
type buffer struct {
	data [Capacity]uint16
	n    int
	full bool
}

func (b *buffer) reset() {
	b.n = 0
	b.full = false
}

// push records one interval, splitting anything above 0xFFFF into
// (Placeholder, 0) pairs followed by the remainder. A zero delta is stored as 1.
func (b *buffer) push(delta uint32) {
	if b.full {
		return
	}
	for delta > Placeholder {
		if b.n > Capacity-2 {
			b.full = true
			return
		}
		b.data[b.n] = Placeholder
		b.data[b.n+1] = 0
		b.n += 2
		delta -= Placeholder
	}
	if b.n >= Capacity {
		b.full = true
		return
	}
	if delta == 0 {
		delta = 1
	}
	b.data[b.n] = uint16(delta)
	b.n++
	if b.n == Capacity {
		b.full = true
	}
}

func (b *buffer) len() int { return b.n }

func (b *buffer) overflowed() bool { return b.full || b.n >= Capacity }

func (b *buffer) snapshot() Signal {
	out := make(Signal, b.n)
	copy(out, b.data[:b.n])
	return out
}
