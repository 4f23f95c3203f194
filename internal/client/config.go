// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/qualitypulse/internal/identity"
	"github.com/tomtom215/qualitypulse/internal/validation"
)

// Environment variables read by LoadConfig.
const (
	EnabledEnvVar = "FIREBASE_ENABLED"
	APIURLEnvVar  = "PULSE_API_URL"

	identityEnvPrefix = "FIREBASE_"
	pulseEnvPrefix    = "PULSE_"
)

// DefaultAPIURL is used when PULSE_API_URL is unset.
const DefaultAPIURL = "http://localhost:5000/api"

// Config is the client's identity credential set plus the API location.
// It is read once at process start.
type Config struct {
	// Enabled is true only when FIREBASE_ENABLED is exactly "true".
	Enabled bool `koanf:"-"`

	APIKey            string `koanf:"api_key" validate:"required,identity_api_key"`
	AuthDomain        string `koanf:"auth_domain" validate:"required,identity_auth_domain"`
	ProjectID         string `koanf:"project_id" validate:"required"`
	StorageBucket     string `koanf:"storage_bucket" validate:"required"`
	MessagingSenderID string `koanf:"messaging_sender_id" validate:"required"`
	AppID             string `koanf:"app_id" validate:"required"`

	APIURL string `koanf:"api_url"`
}

// LoadConfig reads FIREBASE_* and PULSE_API_URL from the environment.
// Values are trimmed; the API URL is normalized. The credential set is not
// validated here; see Config.Validate.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.ProviderWithValue(identityEnvPrefix, ".", envValue(identityEnvPrefix)), nil); err != nil {
		return nil, fmt.Errorf("failed to load identity environment: %w", err)
	}
	if err := k.Load(env.ProviderWithValue(pulseEnvPrefix, ".", envValue(pulseEnvPrefix)), nil); err != nil {
		return nil, fmt.Errorf("failed to load api environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client configuration: %w", err)
	}
	cfg.Enabled = k.String("enabled") == "true"
	cfg.APIURL = NormalizeAPIURL(cfg.APIURL)

	return cfg, nil
}

// envValue maps FIREBASE_API_KEY to api_key and trims the value.
func envValue(prefix string) func(string, string) (string, interface{}) {
	return func(key, value string) (string, interface{}) {
		return strings.ToLower(strings.TrimPrefix(key, prefix)), strings.TrimSpace(value)
	}
}

// NormalizeAPIURL strips trailing slashes and ensures an /api suffix.
// An empty value yields DefaultAPIURL.
func NormalizeAPIURL(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	if url == "" {
		return DefaultAPIURL
	}
	if strings.HasSuffix(url, "/api") {
		return url
	}
	return url + "/api"
}

// Validate checks the feature flag, then that all six credential values are
// present, then their formats. Every failure wraps ErrConfigurationInvalid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return fmt.Errorf("%w: identity authentication is disabled; set %s=true to enable", ErrConfigurationInvalid, EnabledEnvVar)
	}

	verr := validation.ValidateStruct(c)
	if verr == nil {
		return nil
	}

	var missing, malformed []string
	for _, fe := range verr.Errors() {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			malformed = append(malformed, fe.Error())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing values: %s; check %s* environment variables",
			ErrConfigurationInvalid, strings.Join(missing, ", "), identityEnvPrefix)
	}
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, strings.Join(malformed, "; "))
}

// AppConfig converts the credential set for the identity SDK.
func (c *Config) AppConfig() identity.AppConfig {
	return identity.AppConfig{
		APIKey:            c.APIKey,
		AuthDomain:        c.AuthDomain,
		ProjectID:         c.ProjectID,
		StorageBucket:     c.StorageBucket,
		MessagingSenderID: c.MessagingSenderID,
		AppID:             c.AppID,
	}
}
