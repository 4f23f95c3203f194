// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"net/http"
	"time"
)

// ServiceName is reported by the root banner.
const ServiceName = "Construction Quality Pulse API"

// ServiceBanner is the body of GET /.
type ServiceBanner struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Root answers GET / with the service banner.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, ServiceBanner{Status: "ok", Service: ServiceName})
}

// Health answers GET /health. The process answering is the whole check:
// the core owns no backing store whose reachability could degrade it.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
