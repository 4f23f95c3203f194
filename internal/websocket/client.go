// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultSendBuffer        = 256
	defaultMaxMessageSize    = 4096
	defaultMessagesPerSecond = 5
	defaultMessageBurst      = 10
)

// clientIDCounter generates unique, monotonically increasing IDs for
// clients so fan-out and shutdown iterate in a stable order.
var clientIDCounter atomic.Uint64

// JoinAuthorizer reports whether a connection may join the channel for
// userID. The upgrade handler supplies one bound to the authenticated user.
type JoinAuthorizer func(userID string) bool

// ClientConfig configures a single connection.
type ClientConfig struct {
	SendBuffer        int
	MaxMessageSize    int64
	MessagesPerSecond float64
	MessageBurst      int

	// Authorize gates join requests. Nil denies every join.
	Authorize JoinAuthorizer
}

func (cfg *ClientConfig) setDefaults() {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = defaultMessagesPerSecond
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = defaultMessageBurst
	}
}

// inboundMessage is a client frame before its data is interpreted.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id        uint64
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	authorize JoinAuthorizer
	limiter   *rate.Limiter
	readLimit int64
}

// NewClient creates a client for conn and registers it with hub in the
// Connected state. Call Start to begin pumping messages.
func NewClient(hub *Hub, conn *websocket.Conn, cfg ClientConfig) *Client {
	cfg.setDefaults()
	c := &Client{
		id:        clientIDCounter.Add(1),
		hub:       hub,
		conn:      conn,
		send:      make(chan Message, cfg.SendBuffer),
		authorize: cfg.Authorize,
		limiter:   rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
		readLimit: cfg.MaxMessageSize,
	}
	hub.Register(c)
	return c
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.readLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()

		if !c.limiter.Allow() {
			metrics.WSErrors.WithLabelValues("rate_limited").Inc()
			logging.Warn().Uint64("client_id", c.id).Msg("closing websocket client exceeding message rate")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}

		c.handleMessage(data)
	}
}

// handleMessage interprets one client frame. Only join is recognized.
func (c *Client) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.WSErrors.WithLabelValues("decode").Inc()
		return
	}
	if msg.Type != MessageTypeJoin {
		return
	}

	var userID string
	if err := json.Unmarshal(msg.Data, &userID); err != nil || userID == "" {
		metrics.WSJoins.WithLabelValues("invalid").Inc()
		return
	}
	if c.authorize == nil || !c.authorize(userID) {
		metrics.WSJoins.WithLabelValues("denied").Inc()
		logging.Warn().Uint64("client_id", c.id).Msg("denied websocket join for another user's channel")
		return
	}
	if c.hub.Join(c, userID) {
		metrics.WSJoins.WithLabelValues("joined").Inc()
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("type", message.Type).Msg("failed to encode websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
