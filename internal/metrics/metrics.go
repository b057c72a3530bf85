// Package metrics exposes bridge counters on an optional Prometheus
// endpoint. Collectors live on a private registry so repeated sessions in
// one process never trip duplicate registration.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ullo-labs/bbelt/internal/groutine"
)

// Metrics bundles the bridge collectors and the HTTP endpoint serving them.
type Metrics struct {
	registry *prometheus.Registry

	// SamplesPushed counts samples handed to the LSL outlet.
	SamplesPushed prometheus.Counter
	// SampleRate mirrors the 5-second diagnostic window in Hz.
	SampleRate prometheus.Gauge

	server   *http.Server
	listener net.Listener
	logger   *logrus.Logger
}

// New creates the collector set. Pull-style collectors for decoder and
// outlet state are added with RegisterCounterFunc/RegisterGaugeFunc.
func New(logger *logrus.Logger) *Metrics {
	if logger == nil {
		logger = logrus.New()
	}

	registry := prometheus.NewRegistry()

	samplesPushed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bbelt_samples_pushed_total",
		Help: "Samples forwarded to the LSL outlet.",
	})
	sampleRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bbelt_sample_rate_hz",
		Help: "Observed sample rate over the last diagnostic window.",
	})

	registry.MustRegister(samplesPushed, sampleRate)

	return &Metrics{
		registry:      registry,
		SamplesPushed: samplesPushed,
		SampleRate:    sampleRate,
		logger:        logger,
	}
}

// RegisterCounterFunc adds a cumulative collector backed by fn. The value
// fn reports must never decrease.
func (m *Metrics) RegisterCounterFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, fn))
}

// RegisterGaugeFunc adds an instantaneous collector backed by fn.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, fn))
}

// Serve binds addr and starts the /metrics and /healthz endpoints in the
// background. Bind failures surface immediately.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics endpoint %s: %w", addr, err)
	}

	m.listener = listener
	m.server = &http.Server{Handler: mux}

	groutine.Go(ctx, "metrics-server", func(context.Context) {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.WithField("error", err).Warn("Metrics server exited")
		}
	})

	m.logger.WithField("addr", listener.Addr().String()).Info("Metrics endpoint listening")
	return nil
}

// Addr returns the bound endpoint address, or "" before Serve.
func (m *Metrics) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Shutdown stops the endpoint, waiting for in-flight scrapes up to the
// context deadline. No-op when Serve was never called.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
