// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

// Package identity is a minimal client SDK for the identity provider's REST
// APIs: an app registry, email/password sign-in and ID token refresh.
//
// Apps are registered by name in a Registry; initializing a name twice fails
// with ErrDuplicateApp so callers can reuse the existing instance. Each App
// owns one Auth session holding at most one signed-in user. Auth.IDToken
// returns the cached token until it is within TokenRefreshWindow of expiry,
// then exchanges the refresh token for a new one. Concurrent refreshes share
// one request, and all REST calls pass through a circuit breaker.
//
// MockServer emulates the REST APIs in tests and mints tokens with
// auth.MockIdentityProvider so they pass the server's verifier.
package identity
