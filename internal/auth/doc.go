// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package auth verifies identity provider ID tokens and gates HTTP route groups
on them.

Key Components:

  - IDTokenVerifier: validates RS256 ID tokens issued by the identity provider
    (signature, issuer, audience, expiry, subject, revocation) and produces a
    Principal.
  - JWKSCache: caches the provider's signing keys with a bounded TTL, a
    minimum refresh interval for unknown key ids, and a circuit breaker around
    the key endpoint.
  - RouteTable: an ordered list of route groups, each explicitly tagged Public
    or Protected. Registration rejects orderings where a group would be
    shadowed by an earlier group of different protection.
  - Gate: middleware that looks up the request's route group (first match
    wins) and either passes public requests through untouched or requires a
    verified Principal for protected ones.

Failure Semantics:

A protected request that carries no credential and one whose credential fails
verification receive the same generic 401 response. The wrapped handler is
never invoked and no failure is retried server-side. A verification failure is
never downgraded to an anonymous request.

Usage Example:

	cache := auth.NewJWKSCache(auth.JWKSCacheConfig{URI: cfg.Identity.JWKSURL})
	verifier, err := auth.NewIDTokenVerifier(cache, auth.VerifierConfig{
	    ProjectID: cfg.Identity.ProjectID,
	    Issuer:    cfg.Identity.Issuer(),
	})

	table := auth.NewRouteTable()
	_ = table.Register(auth.RouteGroup{Name: "governance", Patterns: []string{"/api/governance/*"}, Protection: auth.Public})
	_ = table.Register(auth.RouteGroup{Name: "reports", Patterns: []string{"/api/reports/*"}, Protection: auth.Protected})

	r.Use(auth.NewGate(table, verifier).Handler)

Handlers behind a protected group read the caller with PrincipalFromContext.
*/
package auth
