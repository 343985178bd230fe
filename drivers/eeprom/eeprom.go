// Package eeprom drives 24xx-series I2C EEPROMs (24C32 .. 24C512) with
// two-byte word addressing. Device implements io.ReaderAt and io.WriterAt
// so kvstore.Blocks can present it to littlefs as a block device.
//
// Writes are split on page boundaries; after each page the driver polls for
// the acknowledge that ends the internal write cycle.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package eeprom

import (
	"errors"
	"io"
	"time"

	"tinygo.org/x/drivers"
)

// Address is the default 7-bit bus address (A2..A0 tied low).
const Address = 0x50

var (
	ErrTimeout = errors.New("eeprom: write cycle timeout")
	ErrRange   = errors.New("eeprom: out of range")
)

// Config controls geometry and timing. All fields are optional.
type Config struct {
	// Address defaults to 0x50.
	Address uint16
	// Size in bytes. Default 32768 (24C256).
	Size int64
	// PageSize defaults to 64.
	PageSize int
	// WriteTimeout bounds ack polling after a page write. Default 10 ms.
	WriteTimeout time.Duration
	// ReadChunk caps bytes per read transaction. Default 64.
	ReadChunk int
}

type Device struct {
	bus drivers.I2C
	cfg Config

	wbuf []byte
}

// New creates a Device. The I2C bus must already be configured.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus}
}

// Configure applies cfg with defaults. It does not touch the bus.
func (d *Device) Configure(cfg Config) {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.Size <= 0 {
		cfg.Size = 32768
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Millisecond
	}
	if cfg.ReadChunk <= 0 {
		cfg.ReadChunk = 64
	}
	d.cfg = cfg
	d.wbuf = make([]byte, 2+cfg.PageSize)
}

func (d *Device) Size() int64 { return d.cfg.Size }

// ReadAt reads len(p) bytes from off. Reads past the end return io.EOF.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrRange
	}
	if off >= d.cfg.Size {
		return 0, io.EOF
	}
	want := len(p)
	if rem := d.cfg.Size - off; int64(want) > rem {
		want = int(rem)
	}
	var addr [2]byte
	n := 0
	for n < want {
		chunk := want - n
		if chunk > d.cfg.ReadChunk {
			chunk = d.cfg.ReadChunk
		}
		a := off + int64(n)
		addr[0], addr[1] = byte(a>>8), byte(a)
		if err := d.bus.Tx(d.cfg.Address, addr[:], p[n:n+chunk]); err != nil {
			return n, err
		}
		n += chunk
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off, page by page.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.cfg.Size {
		return 0, ErrRange
	}
	ps := int64(d.cfg.PageSize)
	n := 0
	for n < len(p) {
		a := off + int64(n)
		room := int(ps - a%ps)
		chunk := len(p) - n
		if chunk > room {
			chunk = room
		}
		w := d.wbuf[:2+chunk]
		w[0], w[1] = byte(a>>8), byte(a)
		copy(w[2:], p[n:n+chunk])
		if err := d.bus.Tx(d.cfg.Address, w, nil); err != nil {
			return n, err
		}
		if err := d.waitReady(); err != nil {
			return n, err
		}
		n += chunk
	}
	return n, nil
}

// waitReady polls until the chip acknowledges again.
func (d *Device) waitReady() error {
	var one [1]byte
	deadline := time.Now().Add(d.cfg.WriteTimeout)
	for {
		if err := d.bus.Tx(d.cfg.Address, nil, one[:]); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(200 * time.Microsecond)
	}
}
