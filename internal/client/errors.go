// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationInvalid means the identity feature flag is off or the
	// credential set is incomplete or implausible. No SDK call was made.
	ErrConfigurationInvalid = errors.New("client: identity configuration invalid")

	// ErrInitializationFailed means the identity SDK rejected the configuration.
	ErrInitializationFailed = errors.New("client: identity initialization failed")

	// ErrNotSignedIn is returned by operations that need a signed-in user.
	ErrNotSignedIn = errors.New("client: not signed in")

	// ErrSessionEnded is returned by Listen when the server ended the
	// user's sessions.
	ErrSessionEnded = errors.New("client: session ended by server")
)

// HTTPError is a non-2xx API response. Code and Message come from the
// response envelope when the body carries one.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: HTTP %d", e.Status)
}
