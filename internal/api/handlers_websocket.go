// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"net/http"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/metrics"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

// WebSocket upgrades an authenticated request to a realtime connection.
// The connection may only join the channel of the user who opened it.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		NewResponseWriter(w, r).ServiceUnavailable("WebSocket service unavailable")
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		logging.Ctx(r.Context()).Error().Msg("WebSocket handler reached without a principal")
		NewResponseWriter(w, r).InternalError("Internal server error")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	userID := principal.ID()
	cfg := h.clientConfig()
	cfg.Authorize = func(requested string) bool {
		return requested == userID
	}

	client := ws.NewClient(h.hub, conn, cfg)
	logging.Ctx(r.Context()).Debug().
		Uint64("client_id", client.ID()).
		Str("user_id", userID).
		Msg("WebSocket connection accepted")
	client.Start()
}
