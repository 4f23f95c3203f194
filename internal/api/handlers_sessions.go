// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/logging"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

// SessionsRevoked is the body returned by DELETE /api/sessions.
type SessionsRevoked struct {
	RevokedBefore      string `json:"revokedBefore"`
	ConnectionsDropped int    `json:"connectionsDropped"`
}

// RevokeSessions signs the caller out everywhere: tokens authenticated
// before the current second stop verifying, connected tabs are told the
// session ended and are then dropped.
//
// Revocation is in-memory on this instance. Other instances learn about the
// session_ended event through the relay but keep accepting the old tokens
// until they expire.
func (h *Handler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		logging.Ctx(r.Context()).Error().Msg("Session handler reached without a principal")
		rw.InternalError("Internal server error")
		return
	}
	if h.revocations == nil {
		rw.ServiceUnavailable("Session revocation is not available")
		return
	}

	// auth_time has whole-second precision. A sign-in later in the same
	// second as the revocation must still verify, so the cutoff is floored.
	cutoff := h.now().Truncate(time.Second)
	h.revocations.RevokeAll(principal.ID(), cutoff)

	h.hub.Broadcast(principal.ID(), ws.MessageTypeSessionEnded, map[string]string{
		"reason": "signed_out",
	})
	dropped := h.hub.DisconnectChannel(principal.ID())

	logging.Ctx(r.Context()).Info().
		Str("user_id", principal.ID()).
		Int("connections_dropped", dropped).
		Msg("Sessions revoked")

	rw.Success(SessionsRevoked{
		RevokedBefore:      cutoff.UTC().Format(time.RFC3339),
		ConnectionsDropped: dropped,
	})
}
