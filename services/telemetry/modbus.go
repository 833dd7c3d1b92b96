//go:build !tinygo

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"envmon-go/errcode"
	"envmon-go/types"

	"github.com/goburrow/modbus"
)

func init() { RegisterSink("modbus", newModbusSink) }

// Holding register layout, relative to ModbusConfig.BaseReg.
const (
	RegFlags = iota // bit0 valid, bit1 sensor online
	RegTemp         // int16 tenths of °C
	RegHum          // tenths of %RH
	RegError        // ErrorIndex of the last failure, 0 when none
	RegSeqLo        // reading sequence, low word
	RegSeqHi        // reading sequence, high word
	regCount
)

const (
	flagValid  = 1 << 0
	flagOnline = 1 << 1
)

// errorCodes fixes the numbering of failure codes on the register map.
var errorCodes = []errcode.Code{
	"",
	errcode.TimeoutResponseLow,
	errcode.TimeoutResponseHigh,
	errcode.TimeoutDataStart,
	errcode.TimeoutBit,
	errcode.ChecksumMismatch,
	errcode.InvalidSample,
	errcode.Timeout,
}

// ErrorIndex returns the register value for a failure code. Unknown codes
// map past the end of the table.
func ErrorIndex(code string) uint16 {
	for i, c := range errorCodes {
		if string(c) == code {
			return uint16(i)
		}
	}
	return uint16(len(errorCodes))
}

// Registers renders r into the register layout.
func Registers(r Reading) [regCount]uint16 {
	var regs [regCount]uint16
	regs[RegFlags] = flagValid
	if r.SensorOnline {
		regs[RegFlags] |= flagOnline
	}
	regs[RegTemp] = uint16(r.DeciC)
	regs[RegHum] = uint16(r.DeciRH)
	regs[RegError] = ErrorIndex(r.LastError)
	regs[RegSeqLo] = uint16(r.Seq)
	regs[RegSeqHi] = uint16(r.Seq >> 16)
	return regs
}

// registerWriter is the subset of modbus.Client the sink uses.
type registerWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) (results []byte, err error)
}

// modbusSink mirrors the latest reading into holding registers of a Modbus
// TCP server.
type modbusSink struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  registerWriter
	base    uint16
}

func newModbusSink(cfg types.TelemetryConfig) (Sink, error) {
	mc := cfg.Modbus
	if mc == nil || mc.Addr == "" {
		return nil, errors.New("modbus sink requires an address")
	}
	h := modbus.NewTCPClientHandler(mc.Addr)
	h.SlaveId = mc.UnitID
	h.Timeout = time.Second
	if mc.TimeoutMs > 0 {
		h.Timeout = time.Duration(mc.TimeoutMs) * time.Millisecond
	}
	return &modbusSink{handler: h, client: modbus.NewClient(h), base: mc.BaseReg}, nil
}

func (m *modbusSink) Name() string { return "modbus" }

func (m *modbusSink) Publish(ctx context.Context, r Reading) error {
	regs := Registers(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.client.WriteMultipleRegisters(m.base, regCount, packRegisters(regs[:]))
	return err
}

func (m *modbusSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, v := range regs {
		out[i*2] = byte(v >> 8)
		out[i*2+1] = byte(v)
	}
	return out
}
