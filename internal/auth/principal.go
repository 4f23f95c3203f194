// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"context"
	"maps"
)

// Principal is a verified identity derived from a credential. Only the
// verifier in this package constructs one; it lives for a single request.
type Principal struct {
	id     string
	claims map[string]interface{}
}

func newPrincipal(id string, claims map[string]interface{}) *Principal {
	return &Principal{id: id, claims: maps.Clone(claims)}
}

// ID returns the subject of the credential.
func (p *Principal) ID() string {
	return p.id
}

// Claims returns a copy of all claims carried by the credential.
func (p *Principal) Claims() map[string]interface{} {
	return maps.Clone(p.claims)
}

// Claim returns a single claim value.
func (p *Principal) Claim(name string) (interface{}, bool) {
	v, ok := p.claims[name]
	return v, ok
}

// Email returns the email claim, or "" if absent.
func (p *Principal) Email() string {
	email, _ := p.claims["email"].(string)
	return email
}

// SignInProvider returns firebase.sign_in_provider, e.g. "password" or "google.com".
func (p *Principal) SignInProvider() string {
	fb, ok := p.claims["firebase"].(map[string]interface{})
	if !ok {
		return ""
	}
	provider, _ := fb["sign_in_provider"].(string)
	return provider
}

type contextKey string

// PrincipalContextKey is the context key for the verified principal.
const PrincipalContextKey contextKey = "principal"

func contextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// PrincipalFromContext returns the principal attached by the gate.
// Requests in public route groups never carry one.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok && p != nil
}
