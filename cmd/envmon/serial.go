//go:build !tinygo

package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"envmon-go/types"

	"github.com/goburrow/serial"
)

// serialPoll bounds how long a Read waits before re-checking Close.
const serialPoll = 500 * time.Millisecond

// dialSerial opens the link's UART as a tty device, eg. /dev/ttyUSB0.
func dialSerial(ctx context.Context, cfg types.LinkConfig) (io.ReadWriteCloser, error) {
	if cfg.UART == "" {
		return nil, errors.New("link uart path not set")
	}
	baud := int(cfg.Baud)
	if baud == 0 {
		baud = 115200
	}
	p, err := serial.Open(&serial.Config{
		Address:  cfg.UART,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  serialPoll,
	})
	if err != nil {
		return nil, err
	}
	return &serialConn{p: p}, nil
}

// serialConn hides read timeouts so the link sees a blocking stream.
type serialConn struct {
	p      serial.Port
	closed atomic.Bool
}

func (c *serialConn) Read(b []byte) (int, error) {
	for {
		n, err := c.p.Read(b)
		if c.closed.Load() {
			return n, io.EOF
		}
		if n > 0 || !errors.Is(err, serial.ErrTimeout) {
			return n, err
		}
	}
}

func (c *serialConn) Write(b []byte) (int, error) { return c.p.Write(b) }

func (c *serialConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.p.Close()
}
