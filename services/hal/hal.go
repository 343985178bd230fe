// Package hal owns the board's devices and exposes them on the bus under
// hal/cap/<domain>/<kind>/<name>/... It waits for a retained config/hal
// message before building anything.
package hal

import (
	"context"

	"irlearn-go/bus"
	"irlearn-go/services/hal/internal/core"
	"irlearn-go/services/hal/internal/platform"
	"irlearn-go/types"

	// Device builders register themselves.
	_ "irlearn-go/services/hal/devices/ir_remote"
)

// Resources is what the HAL hands to device builders.
type Resources = core.Resources

// Run drives the HAL with the platform's default resources until ctx ends.
func Run(ctx context.Context, conn *bus.Connection) {
	RunWith(ctx, conn, DefaultResources())
}

// DefaultResources returns the resources of the board being built for.
func DefaultResources() Resources { return platform.Default() }

// RunWith is Run with caller-supplied resources.
func RunWith(ctx context.Context, conn *bus.Connection, res Resources) {
	core.NewHAL(conn, res).Run(ctx)
}

// CtrlTopic is hal/cap/<domain>/<kind>/<name>/control/<verb>.
func CtrlTopic(domain string, kind types.Kind, name, verb string) bus.Topic {
	return core.CtrlTopic(domain, kind, name, verb)
}

// EventTopic is hal/cap/<domain>/<kind>/<name>/event/<tag>; tag may be "+".
func EventTopic(domain string, kind types.Kind, name, tag string) bus.Topic {
	return core.EventTopic(domain, kind, name, tag)
}

// StateTopic carries the retained HAL lifecycle state.
func StateTopic() bus.Topic { return bus.T("hal", "state") }
