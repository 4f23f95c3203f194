// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package supervisor provides process supervision for the quality pulse
server using suture v4.

# Overview

The supervisor tree organizes long-running services into two layers:

	RootSupervisor ("qualitypulse")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── RealtimeHubService
	│   └── RelayService (if NATS_ENABLED)
	└── APISupervisor ("api-layer")
	    ├── HTTPServerService ("http-server")
	    └── HTTPServerService ("metrics-server", if METRICS_ADDR is set)

A relay that keeps losing its NATS connection is restarted inside the
messaging layer with backoff; authentication and local delivery through the
hub are unaffected.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	tree.AddMessagingService(services.NewRealtimeHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService("http-server", server, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Returning nil stops the service for good. Returning an error restarts it.
When ctx is canceled the service must return promptly.

# Debugging Shutdown Issues

Services that did not stop within ShutdownTimeout are listed by
UnstoppedServiceReport.
*/
package supervisor
