// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package client is the caller side of the quality pulse API.

TokenProvider owns the process-wide identity session:

	Uninitialized -> Initializing -> Ready | Failed

The first Init, CurrentToken or SignIn call checks FIREBASE_ENABLED, then
that all six FIREBASE_* credential values are present and plausible, and
only then touches the identity SDK, reusing the default app if one is
already registered. Concurrent first callers share one attempt and the
outcome is kept for the life of the provider. Configuration problems wrap
ErrConfigurationInvalid; SDK failures wrap ErrInitializationFailed.

Transport is an http.RoundTripper that adds "Authorization: Bearer <token>"
when a user is signed in, sends the request without a credential when
nobody is, and fails the round trip without sending when the token cannot
be refreshed. APIClient wraps it with the normalized PULSE_API_URL.

Listen holds a realtime connection joined to the signed-in user's channel.
*/
package client
