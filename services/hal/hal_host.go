//go:build !rp2040

package hal

import (
	"sync"

	"irlearn-go/drivers/irraw"
	"irlearn-go/services/hal/internal/platform"
)

// Player replays a raw capture as edges on a receiver pin.
type Player func(pin int, samples []uint16) <-chan struct{}

// HostResources returns simulated resources and a Player that feeds their
// receiver pins, for demos and tests on a workstation.
func HostResources() (Resources, Player) {
	reg, pins := platform.NewHost()
	play := func(pin int, samples []uint16) <-chan struct{} {
		return pins.Pin(pin).Play(samples)
	}
	return reg.Resources(irraw.MonotonicClock.Micros, &sync.Mutex{}), play
}
