// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/validation"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

const maxNotificationBodyBytes = 16 << 10

// NotificationRequest is the body of POST /api/notifications.
type NotificationRequest struct {
	// RecipientID defaults to the caller.
	RecipientID string `json:"recipientId" validate:"omitempty,user_id"`
	// Event defaults to "notification".
	Event   string `json:"event" validate:"omitempty,event_name"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
	Kind    string `json:"kind" validate:"omitempty,oneof=info success warning error"`
}

// Notification is the payload delivered to the recipient's connections.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	SenderID  string `json:"senderId"`
	CreatedAt string `json:"createdAt"`
}

// NotificationAccepted is returned once a notification has been handed to
// the hub. It says nothing about whether any connection received it.
type NotificationAccepted struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipientId"`
	Event       string `json:"event"`
}

// publishableEvents are the event names callers may send. Everything else,
// including join and session_ended, is emitted only by the server itself.
var publishableEvents = map[string]bool{
	ws.MessageTypeNotification: true,
	"report_submitted":         true,
	"audit_scheduled":          true,
	"ncr_raised":               true,
}

// CreateNotification broadcasts a notification into the recipient's channel
// and answers 202. Delivery is fire-and-forget: a recipient with no joined
// connection simply gets nothing.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		// The route is protected; reaching here without a principal means
		// the gate was not installed in front of it.
		logging.Ctx(r.Context()).Error().Msg("Notification handler reached without a principal")
		rw.InternalError("Internal server error")
		return
	}

	var req NotificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBodyBytes)).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}
	if req.Event == "" {
		req.Event = ws.MessageTypeNotification
	}
	if !publishableEvents[req.Event] {
		rw.ValidationError("event cannot be published", map[string]interface{}{"field": "event", "value": req.Event})
		return
	}
	if req.RecipientID == "" {
		req.RecipientID = principal.ID()
	}
	if req.Kind == "" {
		req.Kind = "info"
	}

	n := Notification{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Message:   req.Message,
		Kind:      req.Kind,
		SenderID:  principal.ID(),
		CreatedAt: h.now().UTC().Format(time.RFC3339),
	}
	h.hub.Broadcast(req.RecipientID, req.Event, n)

	logging.Ctx(r.Context()).Debug().
		Str("notification_id", n.ID).
		Str("event", req.Event).
		Str("sender", principal.ID()).
		Str("recipient", req.RecipientID).
		Msg("Notification broadcast")

	rw.Accepted(NotificationAccepted{ID: n.ID, RecipientID: req.RecipientID, Event: req.Event})
}
