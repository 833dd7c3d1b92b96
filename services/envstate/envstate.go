// Package envstate keeps the last good environmental reading together with
// sensor and uplink health. It is the single writer of env/state; readers
// either subscribe to that topic or call Snapshot.
package envstate

import (
	"context"
	"sync/atomic"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/types"
	"envmon-go/x/conv"
	"envmon-go/x/mathx"
	"envmon-go/x/timex"
)

// Topic is where the snapshot is published, retained.
func Topic() bus.Topic { return bus.T("env", "state") }

// LinkTopic carries the uplink supervisor state.
func LinkTopic() bus.Topic { return bus.T("telemetry", "state") }

// rateEvery is how many reads pass between success-rate log lines.
const rateEvery = 20

type Service struct {
	cell atomic.Pointer[types.EnvState]

	// Temperature of the read in progress; a reading is committed when its
	// humidity follows.
	pendTemp  int16
	pendValid bool
}

func New() *Service {
	s := &Service{}
	s.cell.Store(&types.EnvState{})
	return s
}

// Snapshot returns the current state. Safe from any goroutine.
func (s *Service) Snapshot() types.EnvState { return *s.cell.Load() }

func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.run(ctx, conn)
}

func (s *Service) run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(config.Topic(config.KeyEnvState))
	linkSub := conn.Subscribe(LinkTopic())
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(linkSub)

	var capSub *bus.Subscription
	defer func() {
		if capSub != nil {
			conn.Unsubscribe(capSub)
		}
	}()
	var capCh <-chan *bus.Message

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-cfgSub.Channel():
			cfg, ok := m.Payload.(types.EnvStateConfig)
			if !ok || cfg.Name == "" {
				println("[envstate] ignoring config")
				continue
			}
			if capSub != nil {
				conn.Unsubscribe(capSub)
			}
			// hal/cap/<domain>/+/<name>/+ keeps value and status of both
			// kinds in one ordered stream.
			capSub = conn.Subscribe(bus.T("hal", "cap", cfg.Domain, "+", cfg.Name, "+"))
			capCh = capSub.Channel()
			s.pendValid = false
			println("[envstate] following", cfg.Domain+"/"+cfg.Name)
		case m := <-capCh:
			if s.handleCap(m) {
				s.publish(conn)
			}
		case m := <-linkSub.Channel():
			if ls, ok := m.Payload.(types.LinkState); ok && s.setLink(ls.Level == "up") {
				s.publish(conn)
			}
		}
	}
}

// handleCap applies one capability message and reports whether the
// snapshot changed.
func (s *Service) handleCap(m *bus.Message) bool {
	if m.Topic.Len() != 6 {
		return false
	}
	kind, _ := m.Topic.At(3).(string)
	leaf, _ := m.Topic.At(5).(string)

	switch leaf {
	case "value":
		switch v := m.Payload.(type) {
		case types.TemperatureValue:
			s.pendTemp, s.pendValid = v.DeciC, true
		case types.HumidityValue:
			if !s.pendValid {
				return false
			}
			s.pendValid = false
			deciRH := int16(mathx.RoundDiv(uint32(v.RHx100), 10))
			s.good(s.pendTemp, deciRH)
			return true
		}
	case "status":
		st, ok := m.Payload.(types.CapabilityStatus)
		// Both capabilities degrade on a failed read; count it once.
		if !ok || st.Link != types.LinkDegraded || kind != string(types.KindTemperature) {
			return false
		}
		s.pendValid = false
		s.bad(st.Error)
		return true
	}
	return false
}

func (s *Service) good(deciC, deciRH int16) {
	prev := s.Snapshot()
	next := prev
	now := timex.NowMs()
	next.Valid = true
	next.DeciC, next.DeciRH = deciC, deciRH
	next.SensorOnline = true
	next.Reads++
	next.Successes++
	next.LastError = ""
	next.LastGoodMs, next.TSms = now, now
	next.Seq++
	s.cell.Store(&next)

	if !prev.SensorOnline {
		println("[envstate] sensor online")
	}
	logRate(next)
}

// bad records a failed read. The last good values stay in place.
func (s *Service) bad(code string) {
	prev := s.Snapshot()
	next := prev
	next.SensorOnline = false
	next.Reads++
	next.Failures++
	next.LastError = code
	next.TSms = timex.NowMs()
	s.cell.Store(&next)

	if prev.SensorOnline || prev.Reads == 0 {
		println("[envstate] sensor offline:", code)
	}
	logRate(next)
}

func (s *Service) setLink(up bool) bool {
	prev := s.Snapshot()
	if prev.LinkUp == up {
		return false
	}
	next := prev
	next.LinkUp = up
	next.TSms = timex.NowMs()
	s.cell.Store(&next)
	if up {
		println("[envstate] uplink up")
	} else {
		println("[envstate] uplink down")
	}
	return true
}

func (s *Service) publish(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(Topic(), s.Snapshot(), true))
}

func logRate(st types.EnvState) {
	if st.Reads == 0 || st.Reads%rateEvery != 0 {
		return
	}
	var a, b, c [20]byte
	pct := st.Successes * 100 / st.Reads
	println("[envstate] reads:", string(conv.Utoa(a[:], uint64(st.Reads))),
		"ok:", string(conv.Utoa(b[:], uint64(st.Successes))),
		"rate:", string(conv.Utoa(c[:], uint64(pct)))+"%")
}
