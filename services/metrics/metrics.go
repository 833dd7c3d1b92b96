//go:build !tinygo

// Package metrics exports sensor reads and values as Prometheus collectors,
// fed from the HAL capability topics.
package metrics

import (
	"context"
	"net/http"

	"envmon-go/bus"
	"envmon-go/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collectors. Registered by New.
type Metrics struct {
	Reads       *prometheus.CounterVec
	Temperature *prometheus.GaugeVec
	Humidity    *prometheus.GaugeVec
	Online      *prometheus.GaugeVec

	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry, log logrus.FieldLogger) *Metrics {
	m := &Metrics{
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "envmon_reads_total",
			Help: "Sensor reads by outcome (ok or the failure code).",
		}, []string{"sensor", "result"}),
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "envmon_temperature_celsius",
			Help: "Last good temperature reading.",
		}, []string{"sensor"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "envmon_humidity_percent",
			Help: "Last good relative humidity reading.",
		}, []string{"sensor"}),
		Online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "envmon_sensor_online",
			Help: "1 when the last read of the sensor succeeded.",
		}, []string{"sensor"}),
		gatherer: reg,
		log:      log,
	}
	reg.MustRegister(m.Reads, m.Temperature, m.Humidity, m.Online)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Start follows hal/cap/+/+/+/+ until ctx ends.
func (m *Metrics) Start(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.T("hal", "cap", "+", "+", "+", "+"))
	go func() {
		defer conn.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.Channel():
				m.Observe(msg)
			}
		}
	}()
}

// Observe applies one capability message. Temperature values and statuses
// count reads; humidity only updates its gauge, so each read counts once.
func (m *Metrics) Observe(msg *bus.Message) {
	if msg.Topic.Len() != 6 {
		return
	}
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	leaf, _ := msg.Topic.At(5).(string)

	switch leaf {
	case "value":
		switch v := msg.Payload.(type) {
		case types.TemperatureValue:
			m.Temperature.WithLabelValues(name).Set(float64(v.DeciC) / 10)
			m.Reads.WithLabelValues(name, "ok").Inc()
			m.Online.WithLabelValues(name).Set(1)
		case types.HumidityValue:
			m.Humidity.WithLabelValues(name).Set(float64(v.RHx100) / 100)
		}
	case "status":
		st, ok := msg.Payload.(types.CapabilityStatus)
		if !ok || kind != string(types.KindTemperature) || st.Link != types.LinkDegraded {
			return
		}
		m.Reads.WithLabelValues(name, st.Error).Inc()
		m.Online.WithLabelValues(name).Set(0)
		m.log.WithFields(logrus.Fields{"sensor": name, "error": st.Error}).Debug("read failed")
	}
}
