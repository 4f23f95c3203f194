// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

// Package logging provides centralized zerolog-based structured logging for Quality Pulse.
//
// The package exposes a process-wide zerolog logger behind package level
// functions, so components log without threading a logger through every
// constructor:
//
//	logging.Info().Str("channel", userID).Int("recipients", n).Msg("Broadcast delivered")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Credential rejected")
//
// # Formats
//
// JSON output is the default and is intended for production. Console output is
// human-readable and intended for local development and tests.
//
// # Request Correlation
//
// HTTP middleware stores a request ID in the request context. Ctx returns a
// logger that automatically carries it.
//
// # Suture Integration
//
// NewSlogLogger bridges zerolog into log/slog for sutureslog, which only
// accepts *slog.Logger.
//
// # Sensitive Values
//
// Bearer credentials are never logged. Configuration values that identify an
// identity provider project are logged through Mask.
package logging
