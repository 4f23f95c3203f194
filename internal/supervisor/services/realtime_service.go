// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package services

import (
	"context"
)

// ContextHub matches *websocket.Hub's RunWithContext method.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// RealtimeHubService wraps the realtime hub as a supervised service.
//
// RunWithContext already follows the suture.Service contract; this wrapper
// only gives it a name. On shutdown the hub closes every connected client.
type RealtimeHubService struct {
	hub  ContextHub
	name string
}

// NewRealtimeHubService creates a new realtime hub service wrapper.
func NewRealtimeHubService(hub ContextHub) *RealtimeHubService {
	return &RealtimeHubService{
		hub:  hub,
		name: "realtime-hub",
	}
}

// Serve implements suture.Service.
func (w *RealtimeHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
func (w *RealtimeHubService) String() string {
	return w.name
}
