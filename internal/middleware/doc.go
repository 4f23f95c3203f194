// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package middleware provides chi-compatible infrastructure middleware.

Key Components:

  - RequestID: request tracking through X-Request-ID and logging.Ctx
  - PrometheusMetrics: request count, latency and in-flight gauge labeled
    by chi route pattern

Both wrap http.Handler and compose with chi's Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

The metrics writer forwards Hijack so WebSocket upgrades work behind it.
Authentication is not a concern of this package; the route gate in package
auth runs after these.
*/
package middleware
