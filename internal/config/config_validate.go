// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

// projectIDPattern matches identity provider project ids: lowercase letters,
// digits and hyphens, starting with a letter.
var projectIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{3,62}$`)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateRealtime(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateIdentity() error {
	id := c.Identity
	if id.ProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required")
	}
	if !projectIDPattern.MatchString(id.ProjectID) {
		return fmt.Errorf("FIREBASE_PROJECT_ID %q is not a valid project id", id.ProjectID)
	}
	if err := validateEndpointURL(id.Issuer(), "IDENTITY_ISSUER_PREFIX"); err != nil {
		return err
	}
	if !id.Discovery {
		if err := validateEndpointURL(id.JWKSURL, "IDENTITY_JWKS_URL"); err != nil {
			return err
		}
	}
	if id.JWKSCacheTTL <= 0 {
		return fmt.Errorf("IDENTITY_JWKS_CACHE_TTL must be positive, got %v", id.JWKSCacheTTL)
	}
	if id.MinRefreshInterval < 0 || id.MinRefreshInterval > id.JWKSCacheTTL {
		return fmt.Errorf("IDENTITY_MIN_REFRESH_INTERVAL must be between 0 and the cache TTL, got %v", id.MinRefreshInterval)
	}
	if id.HTTPTimeout <= 0 {
		return fmt.Errorf("IDENTITY_HTTP_TIMEOUT must be positive, got %v", id.HTTPTimeout)
	}
	if id.ClockSkew < 0 {
		return fmt.Errorf("IDENTITY_CLOCK_SKEW must not be negative, got %v", id.ClockSkew)
	}
	if id.BreakerFailures == 0 {
		return fmt.Errorf("IDENTITY_BREAKER_FAILURES must be at least 1")
	}
	return nil
}

func (c *Config) validateRealtime() error {
	rt := c.Realtime
	if !strings.HasPrefix(rt.Path, "/") {
		return fmt.Errorf("REALTIME_PATH must start with '/', got %q", rt.Path)
	}
	if strings.HasPrefix(rt.Path, "/api/") {
		return fmt.Errorf("REALTIME_PATH must not live under /api, got %q", rt.Path)
	}
	if rt.SendBuffer < 1 {
		return fmt.Errorf("REALTIME_SEND_BUFFER must be at least 1, got %d", rt.SendBuffer)
	}
	if rt.MaxMessageSize < 64 {
		return fmt.Errorf("REALTIME_MAX_MESSAGE_SIZE must be at least 64 bytes, got %d", rt.MaxMessageSize)
	}
	if rt.MessagesPerSecond <= 0 || rt.MessageBurst < 1 {
		return fmt.Errorf("REALTIME_MESSAGES_PER_SECOND and REALTIME_MESSAGE_BURST must be positive")
	}
	if strings.ContainsAny(rt.ChannelPrefix, " \t\n") {
		return fmt.Errorf("REALTIME_CHANNEL_PREFIX must not contain whitespace")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.Topic == "" {
		return fmt.Errorf("NATS_TOPIC is required when NATS_ENABLED=true")
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.EmbeddedPort < 1 || c.NATS.EmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535, got %d", c.NATS.EmbeddedPort)
		}
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL invalid: %w", err)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Security.RateLimitWindow)
		}
	}
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" && c.Server.Environment == "production" {
			return fmt.Errorf("CORS_ORIGINS must not contain '*' in production")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
