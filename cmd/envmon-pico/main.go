//go:build rp2040

// Command envmon-pico is the Raspberry Pi Pico firmware: a DHT22 on GP15,
// the status LED on GP25 and the telemetry link on UART1.
package main

import (
	"context"
	"io"
	"machine"
	"sync"
	"time"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/services/hal"
	"envmon-go/services/heartbeat"
	"envmon-go/services/indicator"
	"envmon-go/services/telemetry"
	"envmon-go/types"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

const deviceID = "pico"

// UART pins per port.
var uartPins = map[string]struct{ tx, rx machine.Pin }{
	"uart0": {tx: machine.GP0, rx: machine.GP1},
	"uart1": {tx: machine.GP4, rx: machine.GP5},
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] envmon-pico boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)
	b := bus.NewBus(4)

	telemetry.UARTDial = dialUART

	go hal.Run(ctx, b.NewConnection("hal"))
	envstate.New().Start(ctx, b.NewConnection("envstate"))
	indicator.New().Start(ctx, b.NewConnection("indicator"))
	telemetry.New().Start(ctx, b.NewConnection("telemetry"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	// Consumers are subscribed; publish configuration last.
	time.Sleep(100 * time.Millisecond)
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	select {}
}

func dialUART(ctx context.Context, cfg types.LinkConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch cfg.UART {
	case "uart0":
		hw = uartx.UART0
	case "uart1", "":
		hw = uartx.UART1
		cfg.UART = "uart1"
	default:
		return nil, errUnknownUART
	}
	pins := uartPins[cfg.UART]
	if err := hw.Configure(uartx.UARTConfig{BaudRate: cfg.Baud, TX: pins.tx, RX: pins.rx}); err != nil {
		return nil, err
	}
	if cfg.Baud != 0 {
		hw.SetBaudRate(cfg.Baud)
	}
	rctx, cancel := context.WithCancel(ctx)
	return &uartConn{u: hw, ctx: rctx, cancel: cancel}, nil
}

type uartError string

func (e uartError) Error() string { return string(e) }

const errUnknownUART = uartError("unknown uart")

// uartConn adapts a UART to io.ReadWriteCloser. Close unblocks a pending
// Read; the port itself stays configured for the next dial.
type uartConn struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (c *uartConn) Read(p []byte) (int, error) {
	n, err := c.u.RecvSomeContext(c.ctx, p)
	if err != nil && c.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (c *uartConn) Write(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, io.ErrClosedPipe
	}
	return c.u.Write(p)
}

func (c *uartConn) Close() error {
	c.once.Do(c.cancel)
	return nil
}
