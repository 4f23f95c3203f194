// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts gate outcomes per route group.
	// Labels:
	//   - group: route group name ("unmatched" for paths outside every group)
	//   - outcome: "public", "authenticated", "missing_credential", "rejected"
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_gate_decisions_total",
			Help: "Total number of route gate decisions",
		},
		[]string{"group", "outcome"},
	)

	// VerificationTotal counts token verification results.
	// Labels:
	//   - outcome: "success", "malformed", "invalid"
	VerificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "Total number of ID token verifications",
		},
		[]string{"outcome"},
	)

	// VerificationDuration measures token verification latency including key lookups.
	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auth_token_verification_duration_seconds",
			Help:    "Duration of ID token verification in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// JWKSRefreshTotal counts signing key fetches.
	// Labels:
	//   - outcome: "success", "error", "breaker_open"
	JWKSRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_jwks_refresh_total",
			Help: "Total number of signing key endpoint fetches",
		},
		[]string{"outcome"},
	)

	// JWKSKeys tracks the number of cached signing keys.
	JWKSKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auth_jwks_keys",
			Help: "Current number of signing keys in the cache",
		},
	)

	// JWKSKeyRotations counts refreshes where the set of key ids changed.
	JWKSKeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_jwks_key_rotations_total",
			Help: "Total number of signing key rotations detected",
		},
	)

	// JWKSBreakerState reports the key endpoint circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	JWKSBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auth_jwks_circuit_breaker_state",
			Help: "Signing key endpoint circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
