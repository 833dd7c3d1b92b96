// Package indicator drives the status LED from env/state: a fast toggle
// while the sensor or the uplink is down, otherwise one short blink per
// fresh reading.
package indicator

import (
	"context"
	"time"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/services/hal"
	"envmon-go/types"
	"envmon-go/x/timex"
)

func Topic() bus.Topic { return bus.T("indicator", "state") }

type Service struct {
	conn *bus.Connection
	cfg  types.IndicatorConfig

	configured bool
	active     bool // a mode has been entered
	errMode    bool
	lastSeq    uint32
}

func New() *Service { return &Service{} }

func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	s.conn = conn
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(config.Topic(config.KeyIndicator))
	envSub := s.conn.Subscribe(envstate.Topic())
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(envSub)

	toggle := time.NewTicker(time.Hour)
	toggle.Stop()
	defer toggle.Stop()
	blinkOff := time.NewTimer(time.Hour)
	blinkOff.Stop()
	defer blinkOff.Stop()

	var (
		last      types.EnvState
		haveState bool
	)

	for {
		select {
		case <-ctx.Done():
			println("[indicator] stopping")
			return

		case m := <-cfgSub.Channel():
			cfg, ok := m.Payload.(types.IndicatorConfig)
			if !ok || cfg.Name == "" || cfg.ErrorToggleMs == 0 {
				println("[indicator] ignoring config")
				continue
			}
			s.cfg = cfg
			s.configured = true
			if s.active && s.errMode {
				toggle.Reset(s.toggleEvery())
			}
			if haveState {
				s.apply(last, toggle, blinkOff)
			}

		case m := <-envSub.Channel():
			st, ok := m.Payload.(types.EnvState)
			if !ok {
				continue
			}
			last, haveState = st, true
			if s.configured {
				s.apply(st, toggle, blinkOff)
			}

		case <-toggle.C:
			s.led(hal.VerbToggle, nil)

		case <-blinkOff.C:
			if !s.errMode {
				s.led(hal.VerbSet, types.LEDSet{On: false})
			}
		}
	}
}

// apply switches mode on a health change and blinks for fresh readings.
func (s *Service) apply(st types.EnvState, toggle *time.Ticker, blinkOff *time.Timer) {
	if want := !healthy(st); !s.active || want != s.errMode {
		s.active = true
		s.errMode = want
		blinkOff.Stop()
		s.enterMode(toggle)
	}
	s.maybeBlink(st, blinkOff)
}

// maybeBlink flashes the LED once for a reading not seen before.
func (s *Service) maybeBlink(st types.EnvState, off *time.Timer) {
	if s.errMode || st.Seq == s.lastSeq {
		return
	}
	s.lastSeq = st.Seq
	s.led(hal.VerbSet, types.LEDSet{On: true})
	off.Reset(time.Duration(s.cfg.BlinkMs) * time.Millisecond)
}

func healthy(st types.EnvState) bool { return st.SensorOnline && st.LinkUp }

func (s *Service) toggleEvery() time.Duration {
	return time.Duration(s.cfg.ErrorToggleMs) * time.Millisecond
}

func (s *Service) enterMode(toggle *time.Ticker) {
	if s.errMode {
		toggle.Reset(s.toggleEvery())
		println("[indicator] error mode")
	} else {
		toggle.Stop()
		s.led(hal.VerbSet, types.LEDSet{On: false})
		println("[indicator] normal mode")
	}
	s.conn.Publish(s.conn.NewMessage(Topic(),
		types.IndicatorState{Error: s.errMode, TSms: timex.NowMs()}, true))
}

// led fires a control at the LED capability without waiting for a reply.
func (s *Service) led(verb string, payload any) {
	s.conn.Publish(s.conn.NewMessage(
		hal.ControlTopic(s.cfg.Domain, types.KindLED, s.cfg.Name, verb), payload, false))
}
