package telemetry

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"envmon-go/types"
)

func linkConfig() types.TelemetryConfig {
	cfg := testConfig()
	cfg.Link = &types.LinkConfig{Transport: "uart", UART: "uart1", Baud: 115200, BackoffMinMs: 50, BackoffMaxMs: 200}
	return cfg
}

func TestLinkSink_EstablishesPublishesAndReportsLoss(t *testing.T) {
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()

	remotes := make(chan io.ReadWriteCloser, 4)
	pubs := make(chan Message, 16)
	UARTDial = func(ctx context.Context, _ types.LinkConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remotes <- rc
		go remotePeer(rc, pubs)
		return lc, nil
	}

	sk, err := newLinkSink(linkConfig())
	if err != nil {
		t.Fatal(err)
	}
	ls := sk.(*linkSink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := make(chan SinkState, 8)
	go ls.Run(ctx, func(st SinkState) { states <- st })

	if st := nextSinkState(t, states); !st.Up || st.Status != "established" {
		t.Fatalf("state = %+v", st)
	}

	if err := ls.Announce(ctx, Discoveries(ls.cfg)); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	for i := 0; i < 2; i++ {
		if m := nextPub(t, pubs); !m.Retained {
			t.Fatalf("discovery %s not retained", m.Topic)
		}
	}

	if err := ls.Publish(ctx, Reading{DeciC: 231, DeciRH: 543, Fresh: true, SensorOnline: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	m := nextPub(t, pubs)
	if m.Topic != "temperature/state" || string(m.Payload) != `{"temperature":23.1}` {
		t.Fatalf("first pub = %s %s", m.Topic, m.Payload)
	}
	nextPub(t, pubs)
	nextPub(t, pubs)

	// Drop the remote end.
	(<-remotes).Close()
	if st := nextSinkState(t, states); st.Up || st.Status != "lost_retrying" {
		t.Fatalf("state = %+v", st)
	}
	if err := ls.Publish(ctx, Reading{Fresh: true}); err == nil {
		t.Fatal("Publish on a lost link succeeded")
	}

	// Redial after backoff.
	if st := nextSinkState(t, states); !st.Up || st.Status != "established" {
		t.Fatalf("state = %+v", st)
	}
}

func TestLinkSink_DialFailureRetries(t *testing.T) {
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	UARTDial = nil

	sk, err := newLinkSink(linkConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := make(chan SinkState, 8)
	go sk.(Supervisor).Run(ctx, func(st SinkState) { states <- st })

	st := nextSinkState(t, states)
	if st.Up || st.Status != "dial_failed_retrying" || st.Err != errNoDial.Error() {
		t.Fatalf("state = %+v", st)
	}
}

func TestLinkSink_UnknownTransport(t *testing.T) {
	cfg := linkConfig()
	cfg.Link.Transport = "bogus"
	if _, err := newLinkSink(cfg); err == nil {
		t.Fatal("expected error for unknown transport")
	}
	cfg.Link = nil
	if _, err := newLinkSink(cfg); err == nil {
		t.Fatal("expected error without link config")
	}
}

func TestPubFrame(t *testing.T) {
	f, err := pubFrame(Message{Topic: "a/b", Payload: []byte("xyz"), Retained: true})
	if err != nil {
		t.Fatal(err)
	}
	if want := "\x01\x03a/bxyz"; string(f.Payload) != want || f.Type != framePub {
		t.Fatalf("frame = %#x %q", f.Type, f.Payload)
	}
	m, ok := parsePub(f)
	if !ok || m.Topic != "a/b" || string(m.Payload) != "xyz" || !m.Retained {
		t.Fatalf("parsePub = %+v, %v", m, ok)
	}

	long := make([]byte, 256)
	if _, err := pubFrame(Message{Topic: string(long)}); err != errTopicTooLong {
		t.Fatalf("long topic err = %v", err)
	}
	if _, ok := parsePub(Frame{Type: framePub, Payload: []byte{0, 9, 'a'}}); ok {
		t.Fatal("short payload parsed")
	}
}

func TestBackoffSeq(t *testing.T) {
	next := backoffSeq(100*time.Millisecond, 350*time.Millisecond)
	want := []time.Duration{100, 200, 350, 350}
	for i, w := range want {
		if got := next(); got != w*time.Millisecond {
			t.Fatalf("step %d = %v, want %v", i, got, w*time.Millisecond)
		}
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// remotePeer services the gateway side of the link: it answers pings and
// forwards publications to pubs. It exits on read/write error.
func remotePeer(c io.ReadWriteCloser, pubs chan<- Message) {
	defer c.Close()
	rd := newFramedReader(c)
	wr := newFramedWriter(c)
	for {
		f, err := rd.ReadFrame()
		if err != nil {
			return
		}
		switch f.Type {
		case framePing:
			if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return
			}
		case framePub:
			if m, ok := parsePub(f); ok {
				pubs <- m
			}
		}
	}
}

func nextSinkState(t *testing.T, ch <-chan SinkState) SinkState {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sink state")
		return SinkState{}
	}
}

func nextPub(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publication")
		return Message{}
	}
}
