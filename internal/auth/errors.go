// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import "errors"

// Credential verification errors.
var (
	// ErrMalformedCredential indicates an empty or structurally undecodable credential.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrInvalidCredential indicates a well-formed credential that failed
	// signature, expiry, audience, issuer or revocation checks.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUnauthenticated is the gate-level outcome for protected requests
	// that did not produce a verified principal.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrKeyNotFound indicates the signing key id is not published by the provider.
	ErrKeyNotFound = errors.New("signing key not found")
)

// Route table registration errors.
var (
	ErrProtectionUndeclared = errors.New("route group protection not declared")
	ErrEmptyRouteGroup      = errors.New("route group has no patterns")
	ErrInvalidPattern       = errors.New("invalid route pattern")
	ErrDuplicatePattern     = errors.New("duplicate route pattern")
	ErrPublicAfterProtected = errors.New("public route group registered after a protected group")
	ErrShadowedRouteGroup   = errors.New("route group shadowed by an earlier group")
	ErrRouteTableSealed     = errors.New("route table is sealed")
)
