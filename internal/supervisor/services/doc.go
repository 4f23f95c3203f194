// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package services provides suture.Service wrappers for the server's
long-running components.

Each wrapper translates a component's own lifecycle (ListenAndServe, Run,
RunWithContext) into suture's context-aware Serve and names the service for
the supervisor's event log.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Used for both the API listener and the metrics listener

Realtime Hub (RealtimeHubService):
  - Wraps websocket.Hub
  - Closes every client when the tree stops

Relay (RelayService):
  - Wraps the NATS subscription of websocket.Relay
  - A subscription that ends on its own is reported as a failure so the
    supervisor restarts it with backoff

# Usage

	tree.AddMessagingService(services.NewRealtimeHubService(hub))
	if relay != nil {
	    tree.AddMessagingService(services.NewRelayService(relay))
	}
	tree.AddAPIService(services.NewHTTPServerService("http-server", apiServer, timeout))
	tree.AddAPIService(services.NewHTTPServerService("metrics-server", metricsServer, timeout))

Components are accepted as small interfaces (HTTPServer, ContextHub,
RelayRunner) so the wrappers can be tested with fakes and never import the
packages they supervise.
*/
package services
