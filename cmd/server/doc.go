// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package main is the entry point for the Quality Pulse API server.

The server verifies identity provider ID tokens on every protected route and
pushes per-user events to browsers over WebSocket.

# Application Architecture

	RootSupervisor ("qualitypulse")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── Realtime Hub (per-user channels)
	│   └── Relay (optional, NATS_ENABLED=true)
	└── APISupervisor ("api-layer")
	    ├── HTTP Server (route gate + handlers)
	    └── Metrics Server (optional, METRICS_ADDR)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog with JSON/console output modes
 3. Identity: signing key cache (optionally discovered), session revocations
    and the ID token verifier
 4. Realtime: hub, optional embedded NATS server and relay
 5. HTTP: route plan, gate and Chi router
 6. Supervisor Tree: Suture v4 process supervision

# Configuration

	PORT=10000                     # HTTP server port
	FIREBASE_PROJECT_ID=<project>  # required token audience
	IDENTITY_DISCOVERY=false       # resolve the JWKS URL from the issuer
	REALTIME_PATH=/ws
	REALTIME_ALLOW_QUERY_TOKEN=true
	NATS_ENABLED=false
	NATS_EMBEDDED=false
	CORS_ORIGINS=http://localhost:3000
	METRICS_ADDR=127.0.0.1:9090
	LOG_LEVEL=info
	LOG_FORMAT=json

# Signal Handling

On SIGINT or SIGTERM the tree stops the HTTP listeners with a graceful
shutdown, the hub closes every connection, and the relay and embedded NATS
server are closed last.
*/
package main
