// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrRelaySubscriptionClosed is returned when the relay subscription ends
// while the service is still meant to be running.
var ErrRelaySubscriptionClosed = errors.New("relay subscription closed")

// RelayRunner matches *websocket.Relay's Run method.
type RelayRunner interface {
	Run(ctx context.Context) error
}

// RelayService supervises the cross-instance relay subscription.
//
// The relay's NATS connections are owned by the caller and closed after the
// tree stops, so a restart only re-subscribes. A subscription that ends
// without cancellation counts as a failure and is restarted with backoff.
//
//	relay, _ := websocket.NewRelay(hub, relayCfg, logger)
//	tree.AddMessagingService(services.NewRelayService(relay))
//	defer relay.Close()
type RelayService struct {
	relay RelayRunner
	name  string
}

// NewRelayService creates a new relay service wrapper.
func NewRelayService(relay RelayRunner) *RelayService {
	return &RelayService{
		relay: relay,
		name:  "relay",
	}
}

// Serve implements suture.Service.
func (s *RelayService) Serve(ctx context.Context) error {
	err := s.relay.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return ErrRelaySubscriptionClosed
	}
	return fmt.Errorf("relay failed: %w", err)
}

// String implements fmt.Stringer for logging.
func (s *RelayService) String() string {
	return s.name
}
