//go:build !tinygo

// Package httpstatus serves the current reading and sensor health over
// HTTP/1.1 and cleartext HTTP/2.
package httpstatus

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"envmon-go/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Source provides the state to report. *envstate.Service satisfies it.
type Source interface {
	Snapshot() types.EnvState
}

type Server struct {
	src     Source
	metrics http.Handler
	log     logrus.FieldLogger
}

// New returns a server over src. metrics, when non-nil, is mounted on
// /metrics.
func New(src Source, metrics http.Handler, log logrus.FieldLogger) *Server {
	return &Server{src: src, metrics: metrics, log: log}
}

type temperatureDoc struct {
	Temperature *float64 `json:"temperature"`
	Unit        string   `json:"unit"`
}

type humidityDoc struct {
	Humidity *float64 `json:"humidity"`
	Unit     string   `json:"unit"`
}

type statusDoc struct {
	Temperature  *float64 `json:"temperature"`
	Humidity     *float64 `json:"humidity"`
	SensorOnline bool     `json:"sensor_online"`
	LinkUp       bool     `json:"link_up"`
	Reads        uint32   `json:"reads"`
	Successes    uint32   `json:"successes"`
	Failures     uint32   `json:"failures"`
	LastError    string   `json:"last_error,omitempty"`
	LastGoodMs   int64    `json:"last_good_ms,omitempty"`
}

// tenths converts to a unit value; nil until the first good reading.
func tenths(st types.EnvState, v int16) *float64 {
	if !st.Valid {
		return nil
	}
	f := float64(v) / 10
	return &f
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /temperature", func(w http.ResponseWriter, r *http.Request) {
		st := s.src.Snapshot()
		s.writeJSON(w, temperatureDoc{Temperature: tenths(st, st.DeciC), Unit: "°C"})
	})
	mux.HandleFunc("GET /humidity", func(w http.ResponseWriter, r *http.Request) {
		st := s.src.Snapshot()
		s.writeJSON(w, humidityDoc{Humidity: tenths(st, st.DeciRH), Unit: "%"})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		st := s.src.Snapshot()
		s.writeJSON(w, statusDoc{
			Temperature:  tenths(st, st.DeciC),
			Humidity:     tenths(st, st.DeciRH),
			SensorOnline: st.SensorOnline,
			LinkUp:       st.LinkUp,
			Reads:        st.Reads,
			Successes:    st.Successes,
			Failures:     st.Failures,
			LastError:    st.LastError,
			LastGoodMs:   st.LastGoodMs,
		})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("write response")
	}
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.WithField("addr", ln.Addr().String()).Info("http status server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serr := <-errCh; !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}
	return err
}
