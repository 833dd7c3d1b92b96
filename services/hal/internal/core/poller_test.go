package core

import (
	"context"
	"testing"
	"time"
)

func TestPollerFiresAndStops(t *testing.T) {
	out := make(chan PollReq, 8)
	p := NewPoller(out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	addr := CapAddr{Domain: "env", Kind: "temperature", Name: "room"}
	p.Upsert(addr, "read", 10*time.Millisecond, 0)
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}

	select {
	case req := <-out:
		if req.Addr != addr || req.Verb != "read" || req.Every != 10*time.Millisecond {
			t.Fatalf("unexpected request %+v", req)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("poller did not fire")
	}

	p.Stop(addr, "read")
	if p.Len() != 0 {
		t.Fatalf("Len after Stop = %d, want 0", p.Len())
	}
	// Drain anything queued before Stop took effect.
	time.Sleep(20 * time.Millisecond)
	for len(out) > 0 {
		<-out
	}
	select {
	case req := <-out:
		t.Fatalf("fired after Stop: %+v", req)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollerUpsertReplacesSchedule(t *testing.T) {
	p := NewPoller(make(chan PollReq, 1))
	addr := CapAddr{Domain: "env", Kind: "humidity", Name: "room"}
	p.Upsert(addr, "read", time.Hour, 0)
	p.Upsert(addr, "read", time.Millisecond, 0)
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	time.Sleep(5 * time.Millisecond)
	req, ok := p.popDue()
	if !ok || req.Every != time.Millisecond {
		t.Fatalf("popDue = %+v, %v", req, ok)
	}
}

func TestPollerIgnoresInvalidSchedules(t *testing.T) {
	p := NewPoller(make(chan PollReq, 1))
	addr := CapAddr{Domain: "env", Kind: "humidity", Name: "room"}
	p.Upsert(addr, "read", 0, 0)
	p.Upsert(addr, "", time.Second, 0)
	if p.Len() != 0 {
		t.Fatalf("Len = %d, want 0", p.Len())
	}
}

func TestJitterBounded(t *testing.T) {
	p := NewPoller(make(chan PollReq, 1))
	for i := 0; i < 100; i++ {
		d := p.jittered(10*time.Millisecond, 5*time.Millisecond)
		if d < 10*time.Millisecond || d > 15*time.Millisecond {
			t.Fatalf("jittered = %v, want within [10ms,15ms]", d)
		}
	}
}

func TestAsAcceptsValueAndPointer(t *testing.T) {
	type params struct{ Pin int }
	if v, code := As[params](params{Pin: 3}); code != "" || v.Pin != 3 {
		t.Fatalf("value: %+v %q", v, code)
	}
	if v, code := As[params](&params{Pin: 4}); code != "" || v.Pin != 4 {
		t.Fatalf("pointer: %+v %q", v, code)
	}
	if _, code := As[params]("nope"); code == "" {
		t.Fatal("wrong type accepted")
	}
	var np *params
	if _, code := As[params](np); code == "" {
		t.Fatal("nil pointer accepted")
	}
}
