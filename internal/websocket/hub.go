// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeJoin         = "join"
	MessageTypeNotification = "notification"
	MessageTypeSessionEnded = "session_ended"
)

// gaugeInterval is how often RunWithContext refreshes the hub gauges.
const gaugeInterval = 15 * time.Second

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Envelope is a broadcast as seen by a Forwarder. Channel is the resolved
// channel name, including any configured prefix.
type Envelope struct {
	ID      string          `json:"id"`
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Forwarder receives every broadcast issued on this hub so it can be
// delivered to connections held by other instances.
type Forwarder interface {
	Forward(env *Envelope) error
}

// HubConfig configures a Hub.
type HubConfig struct {
	// ChannelPrefix namespaces channel names, e.g. a tenant id followed by
	// ":". Empty means the channel name is the user id.
	ChannelPrefix string
}

// Hub tracks which connections have joined which user channel and fans
// broadcasts out to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]string
	channels map[string]map[*Client]struct{}
	prefix   string

	forwarder Forwarder
}

// NewHub creates a new Hub
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		clients:  make(map[*Client]string),
		channels: make(map[string]map[*Client]struct{}),
		prefix:   cfg.ChannelPrefix,
	}
}

// SetForwarder installs f to receive every broadcast. It must be called
// before the hub is shared.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

// ChannelName returns the channel a user id maps to.
func (h *Hub) ChannelName(userID string) string {
	return h.prefix + userID
}

// Register adds a connection in the Connected state.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = ""
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client connected")
}

// Join moves c into the channel for userID, leaving any channel it was in.
// It reports false for an empty user id or when c is not registered, which
// covers a connection that already disconnected.
func (h *Hub) Join(c *Client, userID string) bool {
	if userID == "" {
		return false
	}
	channel := h.ChannelName(userID)

	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.clients[c]
	if !ok {
		return false
	}
	if current == channel {
		return true
	}
	if current != "" {
		h.leaveLocked(c, current)
	}

	members := h.channels[channel]
	if members == nil {
		members = make(map[*Client]struct{})
		h.channels[channel] = members
	}
	members[c] = struct{}{}
	h.clients[c] = channel
	return true
}

// Disconnect removes c from its channel and from the hub and closes its
// send queue. Calling it more than once is a no-op.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(c)
}

func (h *Hub) disconnectLocked(c *Client) {
	channel, ok := h.clients[c]
	if !ok {
		return
	}
	if channel != "" {
		h.leaveLocked(c, channel)
	}
	delete(h.clients, c)
	close(c.send)
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
}

func (h *Hub) leaveLocked(c *Client, channel string) {
	members := h.channels[channel]
	delete(members, c)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

// DisconnectChannel drops every connection joined to the channel for
// userID and returns how many were dropped.
func (h *Hub) DisconnectChannel(userID string) int {
	channel := h.ChannelName(userID)

	h.mu.Lock()
	defer h.mu.Unlock()
	members := sortedClients(h.channels[channel])
	for _, c := range members {
		h.disconnectLocked(c)
	}
	return len(members)
}

// Broadcast delivers event with payload to every connection joined to the
// channel for userID at the moment of the call. Connections that join
// afterwards never see it. An empty channel is a silent no-op.
func (h *Hub) Broadcast(userID, event string, payload interface{}) {
	channel := h.ChannelName(userID)
	h.deliver(channel, Message{Type: event, Data: payload})

	if h.forwarder == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		logging.Warn().Err(err).Str("event", event).Msg("failed to encode broadcast payload for relay")
		return
	}
	if err := h.forwarder.Forward(&Envelope{Channel: channel, Event: event, Payload: raw}); err != nil {
		logging.Warn().Err(err).Str("event", event).Msg("failed to forward broadcast to relay")
	}
}

// deliver queues msg for every current member of channel and returns the
// number of connections it reached. Members whose queue is full are
// dropped.
func (h *Hub) deliver(channel string, msg Message) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for _, c := range sortedClients(h.channels[channel]) {
		select {
		case c.send <- msg:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	metrics.RecordBroadcast(delivered)

	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			metrics.WSErrors.WithLabelValues("slow_consumer").Inc()
			logging.Warn().Uint64("client_id", c.id).Str("event", msg.Type).Msg("dropping websocket client with full send buffer")
			h.disconnectLocked(c)
		}
		h.mu.Unlock()
	}
	return delivered
}

// RunWithContext keeps the hub gauges current until ctx is done, then
// closes every connection and returns ctx.Err(). It is designed for use
// with suture supervision; membership survives a restart of this loop.
func (h *Hub) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	h.updateGauges()
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-ticker.C:
			h.updateGauges()
		}
	}
}

func (h *Hub) updateGauges() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	metrics.UpdateHubGauges(len(h.clients), len(h.channels))
}

// logGracefulShutdown closes all clients and logs the shutdown. ctx.Err()
// is not logged as an error because cancellation is the normal path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients disconnects every client in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, c := range clients {
		h.disconnectLocked(c)
	}
	metrics.UpdateHubGauges(0, 0)
}

// sortedClients returns the members of set ordered by client ID so fan-out
// order is stable.
func sortedClients(set map[*Client]struct{}) []*Client {
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelCount returns the number of channels with at least one member.
func (h *Hub) GetChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// ChannelSize returns how many connections are joined to the channel for
// userID.
func (h *Hub) ChannelSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[h.ChannelName(userID)])
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
