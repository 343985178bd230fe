// Package platform supplies the board resources the HAL hands to devices:
// pin claims, carrier outputs, persistent stores, a microsecond clock and
// the interrupt mask.
package platform

import (
	"errors"
	"sync"

	"irlearn-go/drivers/eeprom"
	"irlearn-go/errcode"
	"irlearn-go/services/hal/internal/core"
	"irlearn-go/x/kvstore"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfs"
)

// DefaultFileSize caps a "file" store on hosts.
const DefaultFileSize = 32 * 1024

var ErrStoreKind = errors.New("platform: unknown store kind")

// PinFactory maps a logical GPIO number to a handle.
type PinFactory interface {
	ByNumber(n int) (core.GPIOHandle, bool)
}

// PWMFactory maps a logical GPIO number to a carrier output.
type PWMFactory interface {
	ByNumber(n int) (core.PWMHandle, bool)
}

// Registry is the core.ResourceRegistry shared by host and board builds.
// Pins are exclusive per device; the eeprom and flash volumes are mounted
// once and shared.
type Registry struct {
	mu      sync.Mutex
	pins    PinFactory
	pwms    PWMFactory
	i2c     drivers.I2C
	flash   tinyfs.BlockDevice
	used    map[int]string // pin -> devID
	volumes map[string]*kvstore.FS
}

func NewRegistry(pins PinFactory, pwms PWMFactory, i2c drivers.I2C) *Registry {
	return &Registry{
		pins: pins,
		pwms: pwms,
		i2c:  i2c,
		used:    make(map[int]string),
		volumes: make(map[string]*kvstore.FS),
	}
}

// UseFlash makes the "flash" store kind available on dev.
func (r *Registry) UseFlash(dev tinyfs.BlockDevice) {
	r.mu.Lock()
	r.flash = dev
	r.mu.Unlock()
}

func (r *Registry) claim(devID string, pin int) error {
	if owner, ok := r.used[pin]; ok && owner != devID {
		return errcode.PinInUse
	}
	r.used[pin] = devID
	return nil
}

func (r *Registry) ClaimGPIO(devID string, pin int) (core.GPIOHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.pins.ByNumber(pin)
	if !ok {
		return nil, errcode.UnknownPin
	}
	if err := r.claim(devID, pin); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Registry) ClaimPWM(devID string, pin int) (core.PWMHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pwms == nil {
		return nil, errcode.Unsupported
	}
	h, ok := r.pwms.ByNumber(pin)
	if !ok {
		return nil, errcode.UnknownPin
	}
	if err := r.claim(devID, pin); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Registry) ReleasePin(devID string, pin int) {
	r.mu.Lock()
	if r.used[pin] == devID {
		delete(r.used, pin)
	}
	r.mu.Unlock()
}

// shared hides Close so one device cannot unmount a volume others use.
type shared struct{ kvstore.Store }

// OpenStore returns the store of the given kind. A "file" store belongs to
// the device and is closed with it.
func (r *Registry) OpenStore(devID, kind, path string) (kvstore.Store, error) {
	switch kind {
	case "", "mem":
		return kvstore.NewMem(), nil
	case "file":
		if path == "" {
			return nil, errcode.InvalidParams
		}
		return kvstore.OpenFile(path, DefaultFileSize)
	case "eeprom", "flash":
		fs, err := r.volume(kind)
		if err != nil {
			return nil, err
		}
		return shared{fs}, nil
	default:
		return nil, ErrStoreKind
	}
}

func (r *Registry) volume(kind string) (*kvstore.FS, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fs := r.volumes[kind]; fs != nil {
		return fs, nil
	}
	var dev tinyfs.BlockDevice
	switch kind {
	case "eeprom":
		if r.i2c == nil {
			return nil, errcode.Unsupported
		}
		chip := eeprom.New(r.i2c)
		chip.Configure(eeprom.Config{})
		dev = kvstore.Blocks{Medium: chip}
	case "flash":
		if r.flash == nil {
			return nil, errcode.Unsupported
		}
		dev = r.flash
	}
	fs, err := kvstore.Mount(dev)
	if err != nil {
		return nil, err
	}
	r.volumes[kind] = fs
	return fs, nil
}

// Resources bundles what hal.Run passes to the HAL.
func (r *Registry) Resources(micros func() uint32, mask sync.Locker) core.Resources {
	return core.Resources{Reg: r, Micros: micros, Mask: mask}
}
