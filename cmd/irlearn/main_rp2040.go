//go:build rp2040

package main

import (
	"context"
	"errors"
	"io"
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"irlearn-go/services/bridge"
	"irlearn-go/services/hal"
)

// uartPort adapts uartx to io.ReadWriteCloser.
type uartPort struct {
	u   *uartx.UART
	ctx context.Context
}

func (p *uartPort) Read(b []byte) (int, error)  { return p.u.RecvSomeContext(p.ctx, b) }
func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *uartPort) Close() error                { return nil }

func main() {
	time.Sleep(1500 * time.Millisecond)
	ctx := context.Background()

	// Operator console on UART0 (GP0/GP1).
	con := uartx.UART0
	_ = con.Configure(uartx.UARTConfig{BaudRate: 115200, TX: machine.GP0, RX: machine.GP1})

	bridge.UARTDial = func(ctx context.Context, c bridge.UARTConfig) (io.ReadWriteCloser, error) {
		if c.Number != 1 {
			return nil, errors.New("bridge link must use uart1")
		}
		hw := uartx.UART1
		if err := hw.Configure(uartx.UARTConfig{
			BaudRate: uint32(c.Baud),
			TX:       machine.Pin(c.TxPin),
			RX:       machine.Pin(c.RxPin),
		}); err != nil {
			return nil, err
		}
		return &uartPort{u: hw, ctx: ctx}, nil
	}

	start(ctx, "pico", &uartPort{u: con, ctx: ctx}, hal.DefaultResources())
	select {}
}
