// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the locations searched for a config file when
// CONFIG_PATH is not set. The first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/qualitypulse/config.yaml",
}

// ConfigPathEnvVar names the environment variable holding an explicit config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Well-known identity provider endpoints.
const (
	DefaultIssuerPrefix = "https://securetoken.google.com/"
	DefaultJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            10000,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MetricsAddr:     "",
			Environment:     "development",
		},
		Identity: IdentityConfig{
			ProjectID:          "",
			IssuerPrefix:       DefaultIssuerPrefix,
			JWKSURL:            DefaultJWKSURL,
			Discovery:          false,
			JWKSCacheTTL:       1 * time.Hour,
			MinRefreshInterval: 30 * time.Second,
			HTTPTimeout:        10 * time.Second,
			ClockSkew:          5 * time.Minute,
			BreakerFailures:    5,
			BreakerTimeout:     30 * time.Second,
		},
		Realtime: RealtimeConfig{
			Path:              "/ws",
			ChannelPrefix:     "",
			SendBuffer:        256,
			MaxMessageSize:    4096,
			MessagesPerSecond: 5,
			MessageBurst:      10,
			AllowQueryToken:   true,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			Topic:          "pulse.realtime",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using the layered Koanf approach:
// defaults, then the optional YAML file, then environment variables.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are settings that accept comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	"port":             "server.port",
	"http_host":        "server.host",
	"server_timeout":   "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"metrics_addr":     "server.metrics_addr",
	"environment":      "server.environment",

	"firebase_project_id":           "identity.project_id",
	"identity_issuer_prefix":        "identity.issuer_prefix",
	"identity_jwks_url":             "identity.jwks_url",
	"identity_discovery":            "identity.discovery",
	"identity_jwks_cache_ttl":       "identity.jwks_cache_ttl",
	"identity_min_refresh_interval": "identity.min_refresh_interval",
	"identity_http_timeout":         "identity.http_timeout",
	"identity_clock_skew":           "identity.clock_skew",
	"identity_breaker_failures":     "identity.breaker_failures",
	"identity_breaker_timeout":      "identity.breaker_timeout",

	"realtime_path":                "realtime.path",
	"realtime_channel_prefix":      "realtime.channel_prefix",
	"realtime_send_buffer":         "realtime.send_buffer",
	"realtime_max_message_size":    "realtime.max_message_size",
	"realtime_messages_per_second": "realtime.messages_per_second",
	"realtime_message_burst":       "realtime.message_burst",
	"realtime_allow_query_token":   "realtime.allow_query_token",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_embedded":       "nats.embedded_server",
	"nats_embedded_host":  "nats.embedded_host",
	"nats_embedded_port":  "nats.embedded_port",
	"nats_topic":          "nats.topic",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
