// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

// Package testinfra provides container-backed infrastructure for integration tests.
//
// Everything except this file is built only with the integration tag:
//
//	go test -tags integration ./...
//
// # NATS Container
//
// NATSContainer runs a real nats-server so the realtime relay can be tested
// against the same broker used in multi-instance deployments:
//
//	func TestRelay(t *testing.T) {
//	    natsC := testinfra.StartNATS(t) // skips without Docker
//	    // connect relays to natsC.URL
//	}
//
// Tests are skipped gracefully when Docker is unavailable.
package testinfra
