// Package metrics exposes Prometheus metrics for signing and for the HTTP
// sidecar, served on a dedicated listener.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/kms-identity/interfaces"
)

// Result labels.
const (
	ResultOK        = "ok"
	ResultLookup    = "key_lookup_error"
	ResultSigning   = "signing_error"
	ResultMalformed = "malformed_signature"
	ResultEncoding  = "encoding_error"
	ResultCanceled  = "canceled"
	ResultOther     = "error"
)

// MetricsServer owns the signing metrics and the /metrics listener.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	signTotal       *prometheus.CounterVec
	signDuration    *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	identitiesGauge prometheus.Gauge
}

// New creates the metrics registry and the server that exposes it on addr.
// The server is not started.
func New(namespace, addr string) (*MetricsServer, error) {
	m := &MetricsServer{
		registry: prometheus.NewRegistry(),

		signTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_total",
			Help:      "Sign operations by identity and result",
		}, []string{"identity", "result"}),

		signDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sign_duration_seconds",
			Help:      "Latency of sign operations including the remote key service round trip",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"identity"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		identitiesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identities",
			Help:      "Number of loaded identities",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.signTotal,
		m.signDuration,
		m.httpRequests,
		m.httpDuration,
		m.identitiesGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSign records one sign operation.
func (m *MetricsServer) ObserveSign(identity string, duration time.Duration, err error) {
	m.signTotal.WithLabelValues(identity, Result(err)).Inc()
	m.signDuration.WithLabelValues(identity).Observe(duration.Seconds())
}

// ObserveRequest records one HTTP request. route is the route pattern, not
// the concrete path.
func (m *MetricsServer) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetIdentities records the number of loaded identities.
func (m *MetricsServer) SetIdentities(n int) {
	m.identitiesGauge.Set(float64(n))
}

// ListenAndServe serves /metrics until Shutdown is called.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Result maps an identity error to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	case errors.Is(err, interfaces.ErrMalformedSignature):
		return ResultMalformed
	case errors.Is(err, interfaces.ErrKeyLookup):
		return ResultLookup
	case errors.Is(err, interfaces.ErrEncoding):
		return ResultEncoding
	case errors.Is(err, interfaces.ErrSigning):
		return ResultSigning
	default:
		return ResultOther
	}
}
