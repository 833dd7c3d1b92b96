package heartbeat

import (
	"context"
	"runtime"
	"time"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/services/indicator"
	"envmon-go/types"
	"envmon-go/x/conv"
)

const defaultInterval = config.DefaultHeartbeatS * time.Second

type Service struct {
	env    types.EnvState
	ledErr bool

	// Out receives each report line. Nil prints to the console.
	Out func(line string)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(config.Topic(config.KeyHeartbeat))
	envSub := conn.Subscribe(envstate.Topic())
	indSub := conn.Subscribe(indicator.Topic())
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(envSub)
	defer conn.Unsubscribe(indSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			s.emit(s.report())
		case msg := <-cfgSub.Channel():
			hc, ok := msg.Payload.(types.HeartbeatConfig)
			if !ok || hc.IntervalS == 0 {
				println("Info:", "heartbeat ignoring config")
				continue
			}
			tick.Reset(time.Duration(hc.IntervalS) * time.Second)
			println("Info:", "Heartbeat interval set to", hc.IntervalS, "seconds")
		case msg := <-envSub.Channel():
			if st, ok := msg.Payload.(types.EnvState); ok {
				s.env = st
			}
		case msg := <-indSub.Channel():
			if st, ok := msg.Payload.(types.IndicatorState); ok {
				s.ledErr = st.Error
			}
		}
	}
}

// report formats one status line without fmt.
func (s *Service) report() string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var nb [20]byte
	var tb, hb [12]byte
	line := "[status] link: " + onOff(s.env.LinkUp, "up", "down") +
		" sensor: " + onOff(s.env.SensorOnline, "ok", "fail") +
		" led_error: " + onOff(s.ledErr, "yes", "no")
	if s.env.Valid {
		line += " temp: " + string(conv.Tenths(tb[:], int32(s.env.DeciC))) + "C" +
			" hum: " + string(conv.Tenths(hb[:], int32(s.env.DeciRH))) + "%"
	} else {
		line += " temp: unknown hum: unknown"
	}
	free := uint64(0)
	if ms.HeapSys > ms.HeapInuse {
		free = ms.HeapSys - ms.HeapInuse
	}
	line += " free_heap: " + string(conv.Utoa(nb[:], free))
	return line
}

func (s *Service) emit(line string) {
	if s.Out != nil {
		s.Out(line)
		return
	}
	println(line)
}

func onOff(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
