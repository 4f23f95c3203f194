// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	// Realtime Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_channels",
			Help: "Current number of channels with at least one joined connection",
		},
	)

	WSJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_joins_total",
			Help: "Total number of channel join attempts",
		},
		[]string{"outcome"}, // "joined", "denied", "invalid"
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_total",
			Help: "Total number of channel broadcasts",
		},
		[]string{"outcome"}, // "delivered", "noop"
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages queued for delivery",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"}, // "slow_consumer", "rate_limited", "decode", "write"
	)

	// Relay Metrics
	RelayPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_published_total",
			Help: "Total number of broadcasts published to the relay",
		},
		[]string{"outcome"}, // "success", "error"
	)

	RelayReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_received_total",
			Help: "Total number of relay messages received",
		},
		[]string{"outcome"}, // "delivered", "own", "invalid"
	)

	// Identity client metrics
	IdentityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_client_requests_total",
			Help: "Total number of identity REST requests made by the client",
		},
		[]string{"operation", "outcome"}, // operation: "sign_in", "refresh"; outcome: "success", "error", "rejected"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBroadcast records the outcome of a channel broadcast. A broadcast
// that reached no connection is a no-op, not an error.
func RecordBroadcast(recipients int) {
	if recipients == 0 {
		WSBroadcasts.WithLabelValues("noop").Inc()
		return
	}
	WSBroadcasts.WithLabelValues("delivered").Inc()
	WSMessagesSent.Add(float64(recipients))
}

// RecordRelayPublish records a relay publish attempt.
func RecordRelayPublish(err error) {
	if err != nil {
		RelayPublished.WithLabelValues("error").Inc()
		return
	}
	RelayPublished.WithLabelValues("success").Inc()
}

// UpdateHubGauges sets the realtime connection and channel gauges.
func UpdateHubGauges(connections, channels int) {
	WSConnections.Set(float64(connections))
	WSChannels.Set(float64(channels))
}

// RecordUptime sets the uptime gauge relative to start.
func RecordUptime(start time.Time) {
	AppUptime.Set(time.Since(start).Seconds())
}
