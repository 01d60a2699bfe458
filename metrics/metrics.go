// Package metrics declares the Prometheus collectors of the certificate trust
// backend and serves them on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "chain",
		Name:      "calls_total",
		Help:      "Ledger RPC calls by network, method and outcome.",
	}, []string{"network", "method", "outcome"})

	ChainCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "chain",
		Name:      "call_duration_seconds",
		Help:      "Ledger RPC call latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "method"})

	HandshakeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "coordinator",
		Name:      "handshakes_total",
		Help:      "Prepare and confirm outcomes of issuance, revocation and deployment.",
	}, []string{"kind", "phase", "outcome"})

	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "verification",
		Name:      "requests_total",
		Help:      "Verification requests by outcome.",
	}, []string{"outcome"})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notification attempts by notifier and outcome.",
	}, []string{"notifier", "outcome"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Requests rejected by the public rate limiter.",
	}, []string{"route"})

	UploadsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "storage",
		Name:      "uploads_swept_total",
		Help:      "Abandoned staged uploads removed by the sweeper.",
	})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New registers all collectors under the namespace and prepares a server on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWithPrefix(namespace+"_", registry)

	for _, c := range []prometheus.Collector{
		ChainCalls, ChainCallDuration, HandshakeOutcomes, Verifications,
		Notifications, RateLimited, UploadsSwept,
	} {
		if err := wrapped.Register(c); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
