// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package websocket provides per-user realtime channels over WebSocket.

A connection is accepted only after the route gate has authenticated the
upgrade request. It then moves through three states:

	Connected ──join(U)──▶ Joined(U) ──close/drop──▶ Disconnected
	    │                                                ▲
	    └────────────────────close/drop──────────────────┘

Key Components:

  - Hub: channel membership and fan-out. Safe for concurrent use by
    connection goroutines and producers.
  - Client: one WebSocket connection with a read and a write goroutine.
  - Relay: optional NATS bridge so a broadcast issued on one API instance
    reaches connections held by another.

Wire Format:

Every frame is a JSON text message:

	{"type": "<event>", "data": <payload>}

Clients send exactly one control message, join:

	{"type": "join", "data": "<user id>"}

The hub does not verify identity itself. The HTTP handler that upgrades a
connection installs a JoinAuthorizer that accepts only the authenticated
user's own id; anything else is ignored. Unknown message types are ignored.
Keepalive uses WebSocket ping/pong control frames.

Delivery:

Broadcast is fire-and-forget. It reaches connections joined at the moment of
the call, is never buffered for later joiners, and is a silent no-op for an
empty channel. A connection whose send buffer is full is dropped rather than
allowed to stall the producer; the client reconnects, rejoins, and refetches
state over HTTP.

Membership lives in memory only. A restart drops every channel and clients
rejoin on reconnect.

Usage:

	hub := websocket.NewHub(websocket.HubConfig{})
	go hub.RunWithContext(ctx)

	// In a notification handler:
	hub.Broadcast(recipientID, "notification", payload)
*/
package websocket
