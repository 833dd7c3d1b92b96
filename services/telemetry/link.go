package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"envmon-go/types"
)

func init() { RegisterSink("link", newLinkSink) }

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(types.LinkConfig) (Transport, error)

var (
	trMu       sync.RWMutex
	transports = map[string]transportFactory{}
	errNoDial  = errors.New("UARTDial not implemented")
	errDown    = errors.New("link down")
)

// RegisterTransport allows external packages to add transports (eg. "tcp").
func RegisterTransport(name string, f transportFactory) {
	trMu.Lock()
	defer trMu.Unlock()
	transports[name] = f
}

func newTransport(cfg types.LinkConfig) (Transport, error) {
	trMu.RLock()
	f, ok := transports[cfg.Transport]
	trMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Transport {
	case "uart":
		return &uartTransport{cfg: cfg}, nil
	default:
		return nil, errors.New("unknown transport type: " + cfg.Transport)
	}
}

// UARTDial is injected by platform code (eg. in main). It must open and
// return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, cfg types.LinkConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg types.LinkConfig
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Link sink
// -----------------------------------------------------------------------------

const pingEvery = 5 * time.Second

// linkSink sends framed publications over a supervised serial link to a
// gateway that forwards them to the broker.
type linkSink struct {
	tr       Transport
	cfg      types.TelemetryConfig
	min, max time.Duration

	mu sync.Mutex
	wr *framedWriter // nil while the link is down
}

func newLinkSink(cfg types.TelemetryConfig) (Sink, error) {
	if cfg.Link == nil {
		return nil, errors.New("link sink requires link config")
	}
	tr, err := newTransport(*cfg.Link)
	if err != nil {
		return nil, err
	}
	return &linkSink{
		tr:  tr,
		cfg: cfg,
		min: time.Duration(cfg.Link.BackoffMinMs) * time.Millisecond,
		max: time.Duration(cfg.Link.BackoffMaxMs) * time.Millisecond,
	}, nil
}

func (l *linkSink) Name() string { return "link" }

// Run dials, serves and redials the link until ctx ends.
func (l *linkSink) Run(ctx context.Context, report func(SinkState)) {
	backoff := backoffSeq(l.min, l.max)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := l.tr.Open(ctx)
		if err != nil {
			delay := backoff()
			report(SinkState{Status: "dial_failed_retrying", Err: err.Error()})
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		l.setWriter(newFramedWriter(rwc))
		report(SinkState{Up: true, Status: "established"})
		err = l.handleLink(ctx, rwc)
		l.setWriter(nil)
		_ = rwc.Close()
		if err == nil {
			return
		}
		backoff = backoffSeq(l.min, l.max)
		delay := backoff()
		report(SinkState{Status: "lost_retrying", Err: err.Error()})
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink owns the active link lifetime. It returns nil only when ctx
// ends.
func (l *linkSink) handleLink(ctx context.Context, rwc io.ReadWriteCloser) error {
	rd := newFramedReader(rwc)

	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case framePong:
			case frameClose:
				errCh <- io.EOF
				return
			default:
				// Downlink traffic is not used.
			}
		}
	}()

	tick := time.NewTicker(pingEvery)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort close.
			_ = l.write(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case <-tick.C:
			if err := l.write(Frame{Type: framePing}); err != nil {
				return err
			}
		}
	}
}

func (l *linkSink) setWriter(w *framedWriter) {
	l.mu.Lock()
	l.wr = w
	l.mu.Unlock()
}

func (l *linkSink) write(frames ...Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.wr == nil {
		return errDown
	}
	for _, f := range frames {
		if err := l.wr.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}

func (l *linkSink) Announce(ctx context.Context, ds []Discovery) error {
	msgs, err := discoveryMessages(ds)
	if err != nil {
		return err
	}
	return l.send(msgs)
}

func (l *linkSink) Publish(ctx context.Context, r Reading) error {
	return l.send(StateMessages(l.cfg, r))
}

func (l *linkSink) send(msgs []Message) error {
	frames := make([]Frame, 0, len(msgs))
	for _, m := range msgs {
		f, err := pubFrame(m)
		if err != nil {
			return err
		}
		frames = append(frames, f)
	}
	return l.write(frames...)
}

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Pub frame payload: flags(1) topicLen(1) topic payload.
const pubRetained byte = 0x01

// Frame is a very simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

var errTopicTooLong = errors.New("topic too long")

func pubFrame(m Message) (Frame, error) {
	if len(m.Topic) > 0xFF {
		return Frame{}, errTopicTooLong
	}
	var flags byte
	if m.Retained {
		flags |= pubRetained
	}
	p := make([]byte, 0, 2+len(m.Topic)+len(m.Payload))
	p = append(p, flags, byte(len(m.Topic)))
	p = append(p, m.Topic...)
	p = append(p, m.Payload...)
	return Frame{Type: framePub, Payload: p}, nil
}

// parsePub is the inverse of pubFrame.
func parsePub(f Frame) (Message, bool) {
	if f.Type != framePub || len(f.Payload) < 2 {
		return Message{}, false
	}
	n := int(f.Payload[1])
	if len(f.Payload) < 2+n {
		return Message{}, false
	}
	return Message{
		Topic:    string(f.Payload[2 : 2+n]),
		Payload:  f.Payload[2+n:],
		Retained: f.Payload[0]&pubRetained != 0,
	}, true
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

var errFrameTooLarge = errors.New("frame too large")

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return errFrameTooLarge
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
