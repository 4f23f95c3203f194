// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

// Package config loads and validates the API server configuration.
//
// Configuration is layered with Koanf v2:
//
//  1. Defaults from defaultConfig()
//  2. An optional YAML file (CONFIG_PATH, or config.yaml in the working directory)
//  3. Environment variables, which override everything else
//
// Only explicitly mapped environment variables are read; see envTransformFunc
// for the full list. The most common ones are:
//
//   - PORT: HTTP listen port (default 10000)
//   - FIREBASE_PROJECT_ID: identity provider project, used as token audience
//   - IDENTITY_JWKS_URL: signing key endpoint override
//   - CORS_ORIGINS: comma-separated allowed origins
//   - NATS_ENABLED / NATS_URL: cross-instance realtime relay
//   - LOG_LEVEL / LOG_FORMAT
//
// Load validates the result and returns an error describing the first invalid
// setting, so the server fails fast on misconfiguration.
package config
