// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

// Realtime event types sent by the server.
const (
	EventJoin         = "join"
	EventSessionEnded = "session_ended"
)

// Event is one realtime message.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ListenerConfig configures Listen.
type ListenerConfig struct {
	// URL is the realtime endpoint, e.g. ws://localhost:10000/ws.
	URL string

	// Origin is sent on the handshake; the server rejects upgrades without
	// an allowed Origin.
	Origin string

	// UserID is the channel to join; it must be the signed-in user.
	UserID string

	Source TokenSource
	Dialer *websocket.Dialer
}

// RealtimeURL derives the realtime endpoint from an API base URL, e.g.
// http://localhost:10000/api and /ws give ws://localhost:10000/ws.
func RealtimeURL(apiBaseURL, path string) (string, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = ""
	return u.String(), nil
}

// Listen connects to the realtime endpoint with the current token, joins
// the user's channel and calls handle for every event until ctx is
// canceled (nil), the server closes the connection (nil, or
// ErrSessionEnded after a session_ended event) or a read fails.
func Listen(ctx context.Context, cfg ListenerConfig, handle func(Event)) error {
	token, err := cfg.Source.CurrentToken(ctx)
	if err != nil {
		return err
	}
	if token == "" || cfg.UserID == "" {
		return ErrNotSignedIn
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	header := http.Header{"Authorization": {"Bearer " + token}}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime dial: %w", err)
	}
	defer conn.Close()

	join, err := json.Marshal(map[string]string{"type": EventJoin, "data": cfg.UserID})
	if err != nil {
		return fmt.Errorf("encode join: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	logging.Info().Str("url", cfg.URL).Str("user_id", cfg.UserID).Msg("Realtime connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	sessionEnded := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case sessionEnded:
				return ErrSessionEnded
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil
			default:
				return fmt.Errorf("realtime read: %w", err)
			}
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			logging.Warn().Err(err).Msg("Dropping undecodable realtime message")
			continue
		}
		if event.Type == EventSessionEnded {
			sessionEnded = true
		}
		handle(event)
	}
}
