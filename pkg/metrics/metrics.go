// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for gmqtt connections.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection status label values.
const (
	StatusMade   = "made"
	StatusLost   = "lost"
	StatusFailed = "failed"
)

// Metrics holds all Prometheus metrics for a gmqtt client.
type Metrics struct {
	// Connection metrics
	ActiveConnections  prometheus.Gauge
	Connections        *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram
	Reconnects         prometheus.Counter

	// Packet metrics
	PacketsReceived *prometheus.CounterVec
	PacketsSent     *prometheus.CounterVec
	BytesReceived   prometheus.Counter
	BytesSent       prometheus.Counter
	DecodeErrors    *prometheus.CounterVec
	DroppedWrites   prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState prometheus.Gauge
	CircuitBreakerTrips prometheus.Counter

	// Rate limiter metrics
	RateLimitedPublishes prometheus.Counter
}

// New creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gmqtt"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ActiveConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently established broker connections",
			},
		),
		Connections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of connection events",
			},
			[]string{"status"},
		),
		ConnectionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 3600},
			},
		),
		Reconnects: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Total number of reconnect attempts",
			},
		),
		PacketsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packets_received_total",
				Help:      "Total number of MQTT packets decoded from the broker",
			},
			[]string{"packet_type"},
		),
		PacketsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packets_sent_total",
				Help:      "Total number of MQTT packets written to the broker",
			},
			[]string{"packet_type"},
		),
		BytesReceived: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "received_bytes_total",
				Help:      "Total number of bytes read from the transport",
			},
		),
		BytesSent: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sent_bytes_total",
				Help:      "Total number of bytes written to the transport",
			},
		),
		DecodeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Total number of malformed inbound streams",
			},
			[]string{"reason"},
		),
		DroppedWrites: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_writes_total",
				Help:      "Total number of packets dropped because the transport was closing",
			},
		),
		CircuitBreakerState: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Dial circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
		),
		CircuitBreakerTrips: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of dial circuit breaker trips",
			},
		),
		RateLimitedPublishes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_publishes_total",
				Help:      "Total number of publishes rejected by the rate limiter",
			},
		),
	}
}

// ConnectionMade records a newly established connection.
func (m *Metrics) ConnectionMade() {
	m.ActiveConnections.Inc()
	m.Connections.WithLabelValues(StatusMade).Inc()
}

// ConnectionLost records the end of a connection that started at start.
func (m *Metrics) ConnectionLost(start time.Time) {
	m.ActiveConnections.Dec()
	m.Connections.WithLabelValues(StatusLost).Inc()
	m.ConnectionDuration.Observe(time.Since(start).Seconds())
}

// ObserveDial tracks a dial attempt.
func (m *Metrics) ObserveDial(f func() error) error {
	err := f()
	if err != nil {
		m.Connections.WithLabelValues(StatusFailed).Inc()
	}
	return err
}
