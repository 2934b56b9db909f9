package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the credential gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Token issuance
	TokenRequestsTotal   *prometheus.CounterVec
	TokenRequestDuration *prometheus.HistogramVec

	// Broadcast hub
	HubClientsActive prometheus.Gauge
	HubClientsTotal  prometheus.Counter
	HubMessagesTotal *prometheus.CounterVec

	// Errors
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with everything registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "jarvis"
	}

	registry := prometheus.NewRegistry()

	tokenRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Total number of credential issuance requests",
		},
		[]string{"provider", "status"},
	)

	tokenRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_request_duration_seconds",
			Help:      "Credential issuance latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	hubClientsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_clients_active",
			Help:      "Number of websocket clients connected to the broadcast hub",
		},
	)

	hubClientsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_clients_total",
			Help:      "Total websocket clients accepted by the broadcast hub",
		},
	)

	hubMessagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_messages_total",
			Help:      "Messages processed by the broadcast hub",
		},
		[]string{"direction"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of gateway errors",
		},
		[]string{"endpoint", "error_type"},
	)

	registry.MustRegister(
		tokenRequestsTotal,
		tokenRequestDuration,
		hubClientsActive,
		hubClientsTotal,
		hubMessagesTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:             registry,
		TokenRequestsTotal:   tokenRequestsTotal,
		TokenRequestDuration: tokenRequestDuration,
		HubClientsActive:     hubClientsActive,
		HubClientsTotal:      hubClientsTotal,
		HubMessagesTotal:     hubMessagesTotal,
		ErrorsTotal:          errorsTotal,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTokenRequest records one completed credential issuance attempt.
func (m *Metrics) RecordTokenRequest(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TokenRequestsTotal.WithLabelValues(provider, status).Inc()
	m.TokenRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHubConnect records a hub client attaching.
func (m *Metrics) RecordHubConnect() {
	if m == nil {
		return
	}
	m.HubClientsActive.Inc()
	m.HubClientsTotal.Inc()
}

// RecordHubDisconnect records a hub client detaching.
func (m *Metrics) RecordHubDisconnect() {
	if m == nil {
		return
	}
	m.HubClientsActive.Dec()
}

// RecordHubMessage records one hub message in the given direction.
func (m *Metrics) RecordHubMessage(direction string) {
	if m == nil {
		return
	}
	m.HubMessagesTotal.WithLabelValues(direction).Inc()
}

// RecordError records one gateway error.
func (m *Metrics) RecordError(endpoint, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}
