// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/qualitypulse/internal/config"
	"github.com/tomtom215/qualitypulse/internal/logging"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

// SessionRevoker records that every session a user authenticated before a
// given time is no longer valid.
type SessionRevoker interface {
	RevokeAll(uid string, at time.Time)
}

// Handler contains dependencies for the API handlers the core serves.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, upgrader
//   - handlers_health.go: banner and health
//   - handlers_notifications.go: notification producer endpoint
//   - handlers_sessions.go: session revocation
//   - handlers_websocket.go: realtime upgrade
type Handler struct {
	hub         *ws.Hub
	revocations SessionRevoker
	realtime    config.RealtimeConfig
	corsOrigins []string
	startTime   time.Time
	now         func() time.Time
}

// NewHandler creates a handler that broadcasts through hub. revocations may
// be nil, in which case session revocation answers 503.
func NewHandler(hub *ws.Hub, revocations SessionRevoker, cfg *config.Config) *Handler {
	return &Handler{
		hub:         hub,
		revocations: revocations,
		realtime:    cfg.Realtime,
		corsOrigins: cfg.Security.CORSOrigins,
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// clientConfig translates realtime settings into per-connection limits.
func (h *Handler) clientConfig() ws.ClientConfig {
	return ws.ClientConfig{
		SendBuffer:        h.realtime.SendBuffer,
		MaxMessageSize:    h.realtime.MaxMessageSize,
		MessagesPerSecond: h.realtime.MessagesPerSecond,
		MessageBurst:      h.realtime.MessageBurst,
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins against the
// configured CORS origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin on a WebSocket handshake. Accepting an
	// empty one would bypass the origin allowlist entirely.
	if origin == "" {
		logging.Ctx(r.Context()).Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Ctx(r.Context()).Warn().
		Str("origin", sanitizeLogValue(origin)).
		Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters so client-supplied values
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	const maxLen = 256
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
		if len(out) == maxLen {
			break
		}
	}
	return string(out)
}
