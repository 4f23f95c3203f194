// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package metrics provides Prometheus metrics for the API and realtime layers.

Collectors are registered on the default registry with promauto and exposed
by the metrics listener at /metrics in Prometheus text format:

	curl http://localhost:9090/metrics

# Available Metrics

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, route, status
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, route
  - api_active_requests: In-flight requests (gauge)
  - api_rate_limit_hits_total: Rate limited requests (counter)

Realtime Metrics:
  - websocket_connections: Active connections (gauge)
  - websocket_channels: Channels with at least one member (gauge)
  - websocket_joins_total: Join attempts by outcome (counter)
  - websocket_broadcasts_total: Broadcasts by outcome, "noop" when nobody listened (counter)
  - websocket_messages_sent_total / websocket_messages_received_total (counter)
  - websocket_errors_total: Errors by type (counter)

Relay Metrics:
  - realtime_relay_published_total: Relay publishes by outcome (counter)
  - realtime_relay_received_total: Relay deliveries by outcome (counter)

Authentication metrics (gate decisions, verification latency, signing key
refreshes) live in package auth next to the code that records them.

Route labels use the chi route pattern rather than the raw path so that
user ids and report ids do not explode label cardinality.
*/
package metrics
