package core

import (
	"context"
	"time"

	"envmon-go/bus"
	"envmon-go/errcode"
	"envmon-go/types"
	"envmon-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 4
)

// HAL-handled control verbs; everything else goes to the owning device.
const (
	VerbPollStart = "poll_start"
	VerbPollStop  = "poll_stop"
	VerbRead      = "read"
)

type HAL struct {
	conn *bus.Connection
	res  Resources

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: addr -> devID
	capIndex map[CapAddr]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event

	pollCh chan PollReq
	poller *Poller
}

func NewHAL(conn *bus.Connection, reg ResourceRegistry) *HAL {
	h := &HAL{
		conn:     conn,
		res:      Resources{Reg: reg},
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   make(chan PollReq, pollQueueLen),
	}
	// HAL provides the emitter to devices.
	h.res.Pub = h
	h.poller = NewPoller(h.pollCh)
	return h
}

func (h *HAL) Run(ctx context.Context) {
	h.cfgSub = h.conn.Subscribe(topicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	go h.poller.Run(ctx)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			cfg, code := As[types.HALConfig](msg.Payload)
			if code != "" {
				println("[hal] ignoring config payload:", string(code))
				continue
			}
			// Additive and idempotent for existing devices.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-h.ctrlSub.Channel():
			if !ready {
				// Reject controls until HAL has a configuration.
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case req := <-h.pollCh:
			h.handlePoll(req)
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			println("[hal] build failed for:", dc.ID, "err:", err.Error())
			continue
		}
		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed for:", dc.ID, "err:", err.Error())
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev

		// Register capabilities, publish retained info + initial status:down
		for _, cs := range dev.Capabilities() {
			addr := resolveAddr(dev.ID(), cs)
			h.capIndex[addr] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(
				capInfo(addr.Domain, addr.Kind, addr.Name),
				cs.Info,
				true,
			))
			h.conn.Publish(h.conn.NewMessage(
				capStatus(addr.Domain, addr.Kind, addr.Name),
				types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()},
				true,
			))
		}
		println("[hal] device up:", dev.ID(), "type:", dc.Type)
	}

	for _, ps := range cfg.Pollers {
		verb := ps.Verb
		if verb == "" {
			verb = VerbRead
		}
		addr := CapAddr{Domain: ps.Domain, Kind: string(ps.Kind), Name: ps.Name}
		if _, ok := h.capIndex[addr]; !ok {
			println("[hal] poller for unknown capability:", ps.Domain, string(ps.Kind), ps.Name)
			continue
		}
		h.poller.Upsert(addr, verb,
			time.Duration(ps.IntervalMs)*time.Millisecond,
			time.Duration(ps.JitterMs)*time.Millisecond)
	}
}

func resolveAddr(devID string, cs CapabilitySpec) CapAddr {
	k := string(cs.Kind)
	a := CapAddr{Domain: cs.Domain, Kind: k, Name: cs.Name}
	if a.Domain == "" {
		a.Domain = defaultDomainFor(k)
	}
	if a.Name == "" {
		a.Name = devID
	}
	return a
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() != 7 {
		h.replyErr(msg, errcode.InvalidParams)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)
	addr := CapAddr{Domain: domain, Kind: kind, Name: name}

	ownerID, ok := h.capIndex[addr]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	switch verb {
	case VerbPollStart:
		p, code := As[types.PollStart](msg.Payload)
		if code != "" || p.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if p.Verb == "" {
			p.Verb = VerbRead
		}
		h.poller.Upsert(addr, p.Verb,
			time.Duration(p.IntervalMs)*time.Millisecond,
			time.Duration(p.JitterMs)*time.Millisecond)
		h.replyOK(msg)
		return
	case VerbPollStop:
		p, _ := As[types.PollStop](msg.Payload)
		if p.Verb == "" {
			p.Verb = VerbRead
		}
		h.poller.Stop(addr, p.Verb)
		h.replyOK(msg)
		return
	}

	res, err := h.dev[ownerID].Control(addr, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

// handlePoll dispatches a scheduled verb. A busy device simply skips a
// tick.
func (h *HAL) handlePoll(req PollReq) {
	ownerID, ok := h.capIndex[req.Addr]
	if !ok {
		h.poller.Stop(req.Addr, req.Verb)
		return
	}
	if _, err := h.dev[ownerID].Control(req.Addr, req.Verb, nil); err != nil {
		println("[hal] poll", req.Verb, "failed for:", ownerID, "err:", err.Error())
	}
}

func (h *HAL) handleEvent(ev Event) {
	d, k, n := ev.Addr.Domain, ev.Addr.Kind, ev.Addr.Name
	if ev.TSms == 0 {
		ev.TSms = timex.NowMs()
	}

	// 1) Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TSms: ev.TSms, Error: ev.Err},
			true,
		))
		return
	}

	// 2) Success: event vs value
	if ev.IsEvent {
		if ev.EventTag != "" {
			h.conn.Publish(h.conn.NewMessage(capEventTagged(d, k, n, ev.EventTag), ev.Payload, false))
		} else {
			h.conn.Publish(h.conn.NewMessage(capEvent(d, k, n), ev.Payload, false))
		}
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(d, k, n), ev.Payload, true))
	}
	// Retained status: up
	h.conn.Publish(h.conn.NewMessage(
		capStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TSms: ev.TSms},
		true,
	))
}

func (h *HAL) closeAll() {
	for id, d := range h.dev {
		if err := d.Close(); err != nil {
			println("[hal] close failed for:", id, "err:", err.Error())
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TSms: timex.NowMs()},
		true,
	))
}

func defaultDomainFor(kind string) string {
	switch kind {
	case string(types.KindTemperature), string(types.KindHumidity):
		return "env"
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
