// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package api provides the HTTP surface of the Quality Pulse backend.

The package owns the route plan (which URL prefixes belong to which route
group and whether each group is public or protected), the Chi router that
enforces it, and the handlers the core itself serves:

  - GET /                      service banner (public)
  - GET /health                liveness (public)
  - POST /api/notifications    broadcast a notification to a user channel
  - DELETE /api/sessions       revoke the caller's sessions and drop their sockets
  - GET /ws                    realtime upgrade (credential may use ?access_token=)

Everything else (governance, sites, reports, analytics, audit) is a pluggable
collaborator mounted through Collaborators. An unplugged group answers 501
once the gate has let the request through.

# Route Plan

NewRouteTable registers the groups in a fixed order: the two public groups
first, then every protected group. The auth.RouteTable rejects any plan that
breaks that ordering, so a misordered plan fails at startup rather than
silently exposing a protected prefix. Paths outside every group are treated
as protected by the gate.

# Middleware Order

	RequestID -> RealIP -> Recoverer -> CORS -> security headers ->
	PrometheusMetrics -> rate limit -> auth gate -> routes

CORS runs before the gate so browser preflight requests are answered
without credentials.

# Responses

JSON responses use the APIResponse envelope written by ResponseWriter. The
banner and health payloads are written bare to stay compatible with existing
uptime probes.
*/
package api
