// Package telemetry publishes readings to the configured uplinks (sinks)
// and reports their combined health on telemetry/state.
package telemetry

import (
	"context"
	"errors"
	"sync"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/types"
	"envmon-go/x/timex"
)

// -----------------------------------------------------------------------------
// Sinks
// -----------------------------------------------------------------------------

// Sink delivers readings to one uplink. Publish may block; each sink runs on
// its own goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Reading) error
}

// Announcer is implemented by sinks that publish discovery payloads. It is
// called whenever the sink (re)connects.
type Announcer interface {
	Announce(ctx context.Context, ds []Discovery) error
}

// Closer releases sink resources after its worker stops.
type Closer interface {
	Close() error
}

// Supervisor is implemented by sinks that own a connection. Run keeps the
// connection alive until ctx ends and reports every state change.
type Supervisor interface {
	Run(ctx context.Context, report func(SinkState))
}

type SinkState struct {
	Sink   string
	Up     bool
	Status string
	Err    string

	gen int // configuration generation that produced the report
}

type SinkFactory func(cfg types.TelemetryConfig) (Sink, error)

var (
	regMu     sync.RWMutex
	factories = map[string]SinkFactory{}

	errNoFactory = errors.New("sink not available in this build")
)

// RegisterSink makes a sink kind available to configurations.
func RegisterSink(name string, f SinkFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = f
}

func newSink(name string, cfg types.TelemetryConfig) (Sink, error) {
	regMu.RLock()
	f, ok := factories[name]
	regMu.RUnlock()
	if !ok {
		return nil, errNoFactory
	}
	return f(cfg)
}

// sinkNames lists the sinks cfg enables.
func sinkNames(cfg types.TelemetryConfig) []string {
	var names []string
	if cfg.Link != nil {
		names = append(names, "link")
	}
	if cfg.Redis != nil {
		names = append(names, "redis")
	}
	if cfg.Modbus != nil {
		names = append(names, "modbus")
	}
	return names
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

func Topic() bus.Topic { return envstate.LinkTopic() }

type Service struct {
	conn *bus.Connection
	cfg  types.TelemetryConfig

	workers []*worker
	stop    context.CancelFunc
	gen     int
	states  map[string]SinkState
	stateCh chan SinkState

	// Last env/state forwarded to the sinks.
	sentSeq    uint32
	sentOnline bool
	sent       bool

	lastLevel  string
	lastStatus string
}

func New() *Service {
	return &Service{
		states:  map[string]SinkState{},
		stateCh: make(chan SinkState, 8),
	}
}

func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	s.conn = conn
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(config.Topic(config.KeyTelemetry))
	envSub := s.conn.Subscribe(envstate.Topic())
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(envSub)

	s.publishState("down", "awaiting_config", "")

	for {
		select {
		case <-ctx.Done():
			s.stopWorkers()
			s.publishState("stopped", "context_cancelled", "")
			return
		case m := <-cfgSub.Channel():
			cfg, ok := m.Payload.(types.TelemetryConfig)
			if !ok {
				println("[telemetry] ignoring config")
				continue
			}
			s.reconfigure(ctx, cfg)
		case m := <-envSub.Channel():
			if st, ok := m.Payload.(types.EnvState); ok {
				s.forward(st)
			}
		case st := <-s.stateCh:
			s.onSinkState(st)
		}
	}
}

func (s *Service) reconfigure(parent context.Context, cfg types.TelemetryConfig) {
	s.stopWorkers()
	s.cfg = cfg
	s.states = map[string]SinkState{}
	s.sent = false
	s.gen++

	ctx, cancel := context.WithCancel(parent)
	s.stop = cancel
	discos := Discoveries(cfg)

	for _, name := range sinkNames(cfg) {
		sk, err := newSink(name, cfg)
		if err != nil {
			println("[telemetry] sink", name, "unavailable:", err.Error())
			s.states[name] = SinkState{Sink: name, Status: "init_failed", Err: err.Error()}
			continue
		}
		initial := SinkState{Sink: name, Up: true, Status: "ready"}
		if _, ok := sk.(Supervisor); ok {
			initial = SinkState{Sink: name, Status: "connecting"}
		}
		s.states[name] = initial
		w := &worker{sink: sk, gen: s.gen, in: make(chan Reading, 1), done: make(chan struct{})}
		s.workers = append(s.workers, w)
		go w.run(ctx, cfg, discos, s.stateCh)
	}
	s.publishAggregate()
}

func (s *Service) stopWorkers() {
	if s.stop == nil {
		return
	}
	s.stop()
	for _, w := range s.workers {
		<-w.done
	}
	s.workers, s.stop = nil, nil
}

// forward hands a reading to every sink when it is new or the sensor
// health changed. Nothing is sent before the first good reading.
func (s *Service) forward(st types.EnvState) {
	if !st.Valid {
		return
	}
	fresh := !s.sent || st.Seq != s.sentSeq
	if !fresh && st.SensorOnline == s.sentOnline {
		return
	}
	s.sent, s.sentSeq, s.sentOnline = true, st.Seq, st.SensorOnline
	r := readingFrom(st, fresh)
	for _, w := range s.workers {
		w.offer(r)
	}
}

func (s *Service) onSinkState(st SinkState) {
	prev, known := s.states[st.Sink]
	if !known || st.gen != s.gen {
		// Stale report from a stopped worker.
		return
	}
	s.states[st.Sink] = st
	if prev.Up != st.Up || prev.Status != st.Status {
		if st.Up {
			println("[telemetry]", st.Sink, "up:", st.Status)
		} else {
			println("[telemetry]", st.Sink, "down:", st.Status, st.Err)
		}
	}
	s.publishAggregate()
}

// publishAggregate reports up only when every configured sink is up.
func (s *Service) publishAggregate() {
	if len(s.states) == 0 {
		s.publishState("up", "no_sinks", "")
		return
	}
	for _, name := range sinkNames(s.cfg) {
		st := s.states[name]
		if !st.Up {
			s.publishState("down", name+"_"+st.Status, st.Err)
			return
		}
	}
	s.publishState("up", "all_sinks_up", "")
}

func (s *Service) publishState(level, status, errStr string) {
	if level == s.lastLevel && status == s.lastStatus {
		return
	}
	s.lastLevel, s.lastStatus = level, status
	s.conn.Publish(s.conn.NewMessage(Topic(),
		types.LinkState{Level: level, Status: status, Error: errStr, TSms: timex.NowMs()}, true))
}

// -----------------------------------------------------------------------------
// Per-sink worker
// -----------------------------------------------------------------------------

type worker struct {
	sink Sink
	gen  int
	in   chan Reading // latest reading wins
	done chan struct{}
}

func (w *worker) offer(r Reading) {
	for {
		select {
		case w.in <- r:
			return
		default:
		}
		select {
		case <-w.in:
		default:
		}
	}
}

func (w *worker) run(ctx context.Context, cfg types.TelemetryConfig, discos []Discovery, out chan<- SinkState) {
	defer close(w.done)
	name := w.sink.Name()

	report := func(st SinkState) {
		st.Sink, st.gen = name, w.gen
		select {
		case out <- st:
		case <-ctx.Done():
		}
	}

	supCh := make(chan SinkState, 4)
	supDone := make(chan struct{})
	sup, supervised := w.sink.(Supervisor)
	if supervised {
		go func() {
			defer close(supDone)
			sup.Run(ctx, func(st SinkState) {
				select {
				case supCh <- st:
				case <-ctx.Done():
				}
			})
		}()
	} else {
		close(supDone)
	}
	defer func() {
		<-supDone
		if c, ok := w.sink.(Closer); ok {
			_ = c.Close()
		}
	}()

	up := !supervised
	healthy := true
	announced := false
	announce := func() {
		a, ok := w.sink.(Announcer)
		if !ok || !up || announced {
			return
		}
		if err := a.Announce(ctx, discos); err != nil {
			println("[telemetry]", name, "announce failed:", err.Error())
			return
		}
		announced = true
	}
	announce()

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-supCh:
			up = st.Up
			if !up {
				announced = false
			}
			report(st)
			announce()
		case r := <-w.in:
			announce()
			err := w.sink.Publish(ctx, r)
			if supervised {
				if err != nil {
					println("[telemetry]", name, "publish failed:", err.Error())
				}
				continue
			}
			// Unsupervised sinks are as healthy as their last publish.
			if ok := err == nil; ok != healthy {
				healthy = ok
				if ok {
					report(SinkState{Up: true, Status: "publishing"})
				} else {
					announced = false
					report(SinkState{Up: false, Status: "publish_failed", Err: err.Error()})
				}
			}
		}
	}
}
