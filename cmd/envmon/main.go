//go:build !tinygo

// Command envmon runs the monitor on a Linux host: the DHT sensor on a GPIO
// line via periph.io (or a simulated sensor), telemetry sinks and the HTTP
// status server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"envmon-go/bus"
	"envmon-go/drivers/dht"
	"envmon-go/drivers/dht/dhttest"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/services/hal"
	"envmon-go/services/hal/halsim"
	"envmon-go/services/heartbeat"
	"envmon-go/services/httpstatus"
	"envmon-go/services/indicator"
	"envmon-go/services/metrics"
	"envmon-go/services/telemetry"
	"envmon-go/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := flag.String("config", "envmon.yaml", "path to the YAML configuration")
	flag.Parse()

	log := logrus.New()
	f, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := setupLogging(log, f.Log); err != nil {
		log.WithError(err).Fatal("configure logging")
	}
	log.WithFields(logrus.Fields{"config": *cfgPath, "provider": f.Provider}).Info("envmon starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(16)
	telemetry.UARTDial = dialSerial

	halDone := make(chan struct{})
	go func() {
		defer close(halDone)
		halConn := b.NewConnection("hal")
		if f.Provider == "sim" {
			hal.RunWith(ctx, halConn, simRegistry(ctx, f.Bundle.HAL, log.WithField("component", "sim")))
			return
		}
		hal.Run(ctx, halConn)
	}()

	env := envstate.New()
	env.Start(ctx, b.NewConnection("envstate"))
	indicator.New().Start(ctx, b.NewConnection("indicator"))
	telemetry.New().Start(ctx, b.NewConnection("telemetry"))

	hb := &heartbeat.Service{Out: func(line string) {
		log.WithField("component", "heartbeat").Info(line)
	}}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, log.WithField("component", "metrics"))
	m.Start(ctx, b.NewConnection("metrics"))

	httpDone := make(chan struct{})
	if f.HTTP.Addr != "" {
		srv := httpstatus.New(env, m.Handler(), log.WithField("component", "http"))
		go func() {
			defer close(httpDone)
			if err := srv.ListenAndServe(ctx, f.HTTP.Addr); err != nil {
				log.WithError(err).Error("http status server")
			}
		}()
	} else {
		close(httpDone)
	}

	go watchState(ctx, b.NewConnection("main"), log)

	// Consumers are subscribed; publish configuration last.
	time.Sleep(100 * time.Millisecond)
	config.NewConfigService().WithBundle(f.Bundle).Start(ctx, b.NewConnection("config"))

	<-ctx.Done()
	log.Info("shutting down")
	<-halDone
	<-httpDone
}

func setupLogging(log *logrus.Logger, cfg config.LogConfig) error {
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// watchState logs HAL and uplink state transitions.
func watchState(ctx context.Context, conn *bus.Connection, log *logrus.Logger) {
	halSub := conn.Subscribe(hal.StateTopic())
	linkSub := conn.Subscribe(telemetry.Topic())
	defer conn.Unsubscribe(halSub)
	defer conn.Unsubscribe(linkSub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-halSub.Channel():
			if st, ok := msg.Payload.(types.HALState); ok {
				log.WithFields(logrus.Fields{"component": "hal", "level": st.Level}).Info(st.Status)
			}
		case msg := <-linkSub.Channel():
			if st, ok := msg.Payload.(types.LinkState); ok {
				e := log.WithFields(logrus.Fields{"component": "telemetry", "level": st.Level})
				if st.Error != "" {
					e = e.WithField("error", st.Error)
				}
				e.Info(st.Status)
			}
		}
	}
}

// simRegistry attaches a simulated sensor to every configured dht pin. The
// readings drift slowly so consumers see changing values.
func simRegistry(ctx context.Context, hc types.HALConfig, log logrus.FieldLogger) *halsim.Registry {
	reg := halsim.NewRegistry()
	reg.SetDieTemp(27000)

	var sensors []*dhttest.Sensor
	for _, d := range hc.Devices {
		p, ok := d.Params.(types.DHTParams)
		if d.Type != "dht" || !ok {
			continue
		}
		v, err := dht.ParseVariant(p.Variant)
		if err != nil {
			continue
		}
		s := dhttest.NewSensor(v, 450, 215)
		reg.Attach(p.Pin, s)
		sensors = append(sensors, s)
		log.WithFields(logrus.Fields{"sensor": d.ID, "pin": p.Pin, "variant": v.String()}).Info("simulated sensor attached")
	}

	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		var step int16
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			step = (step + 1) % 20
			delta := step
			if delta > 10 {
				delta = 20 - delta
			}
			for _, s := range sensors {
				s.SetReading(450+delta*5, 215+delta)
			}
		}
	}()
	return reg
}
