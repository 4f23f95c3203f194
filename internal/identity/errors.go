// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateApp is returned by InitializeApp when an app with the same
	// name already exists in the registry.
	ErrDuplicateApp = errors.New("identity: app already exists")

	// ErrNoApp is returned when no app is registered under the requested name.
	ErrNoApp = errors.New("identity: app not found")

	// ErrInvalidAppConfig is returned when an app config lacks the API key
	// or project id.
	ErrInvalidAppConfig = errors.New("identity: invalid app config")

	// ErrNoCurrentUser is returned by token operations when nobody is signed in.
	ErrNoCurrentUser = errors.New("identity: no user is signed in")

	// ErrServiceUnavailable is returned while the REST circuit breaker is open.
	ErrServiceUnavailable = errors.New("identity: service unavailable")
)

// APIError is an error reported by the identity REST API, e.g.
// INVALID_PASSWORD or TOKEN_EXPIRED.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity: %s (HTTP %d)", e.Code, e.Status)
}

// temporary reports whether the error counts against the circuit breaker.
func (e *APIError) temporary() bool {
	return e.Status >= 500 || e.Status == 429
}
