// Command irlearn runs the IR learning device: HAL with the ir_remote
// device, operator console, event bridge and embedded config.
package main

import (
	"context"
	"io"

	"irlearn-go/bus"
	"irlearn-go/services/bridge"
	"irlearn-go/services/config"
	"irlearn-go/services/console"
	"irlearn-go/services/hal"
	"irlearn-go/x/logx"
)

var log = logx.New("main")

// start wires the services onto one bus. The config service runs last so
// every subscriber sees its retained messages.
func start(ctx context.Context, device string, term io.ReadWriter, res hal.Resources) *bus.Bus {
	b := bus.NewBus(8)

	go hal.RunWith(ctx, b.NewConnection("hal"), res)
	go bridge.Start(ctx, b.NewConnection("bridge"))
	if term != nil {
		go console.Start(ctx, b.NewConnection("console"), term)
	}

	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, device), b.NewConnection("config"))
	log.Info("started", "device", device)
	return b
}
