// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package config

import (
	"fmt"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Identity IdentityConfig `koanf:"identity"`
	Realtime RealtimeConfig `koanf:"realtime"`
	NATS     NATSConfig     `koanf:"nats"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MetricsAddr     string        `koanf:"metrics_addr"` // empty disables the metrics listener
	Environment     string        `koanf:"environment"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IdentityConfig configures bearer token verification against the identity
// provider's published signing keys.
type IdentityConfig struct {
	// ProjectID is the identity provider project. Tokens must carry it as
	// their audience and be issued by IssuerPrefix + ProjectID.
	ProjectID    string `koanf:"project_id"`
	IssuerPrefix string `koanf:"issuer_prefix"`

	// JWKSURL is the signing key endpoint. Ignored when Discovery is true.
	JWKSURL   string `koanf:"jwks_url"`
	Discovery bool   `koanf:"discovery"`

	JWKSCacheTTL       time.Duration `koanf:"jwks_cache_ttl"`
	MinRefreshInterval time.Duration `koanf:"min_refresh_interval"`
	HTTPTimeout        time.Duration `koanf:"http_timeout"`
	ClockSkew          time.Duration `koanf:"clock_skew"`

	// Circuit breaker around key fetches.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// Issuer returns the expected token issuer.
func (i IdentityConfig) Issuer() string {
	return i.IssuerPrefix + i.ProjectID
}

// RealtimeConfig configures the WebSocket hub.
type RealtimeConfig struct {
	Path string `koanf:"path"`

	// ChannelPrefix namespaces channel names, e.g. per tenant. Empty means the
	// channel name is the bare user id.
	ChannelPrefix string `koanf:"channel_prefix"`

	SendBuffer        int     `koanf:"send_buffer"`
	MaxMessageSize    int64   `koanf:"max_message_size"`
	MessagesPerSecond float64 `koanf:"messages_per_second"`
	MessageBurst      int     `koanf:"message_burst"`

	// AllowQueryToken accepts the bearer credential from the access_token
	// query parameter on the upgrade request. Browsers cannot set headers
	// on WebSocket handshakes.
	AllowQueryToken bool `koanf:"allow_query_token"`
}

// NATSConfig configures the optional cross-instance realtime relay.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	EmbeddedHost   string        `koanf:"embedded_host"`
	EmbeddedPort   int           `koanf:"embedded_port"`
	Topic          string        `koanf:"topic"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig mirrors logging.Config for the loadable subset.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, the optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
