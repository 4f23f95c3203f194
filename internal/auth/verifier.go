// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zitadel/oidc/v3/pkg/client"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

// maxSubjectLength is the identity provider's limit on uid length.
const maxSubjectLength = 128

// TokenVerifier validates a raw bearer credential.
type TokenVerifier interface {
	Verify(ctx context.Context, credential string) (*Principal, error)
}

// KeySource resolves signing keys by key id.
type KeySource interface {
	GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifierConfig configures an IDTokenVerifier.
type VerifierConfig struct {
	// ProjectID is the required audience.
	ProjectID string

	// Issuer is the required iss claim.
	Issuer string

	// ClockSkew tolerated on exp, iat and auth_time.
	ClockSkew time.Duration

	// Revocations is optional.
	Revocations RevocationChecker
}

// IDTokenVerifier verifies identity provider ID tokens.
type IDTokenVerifier struct {
	keys        KeySource
	projectID   string
	issuer      string
	skew        time.Duration
	revocations RevocationChecker
	now         func() time.Time
}

// NewIDTokenVerifier creates a verifier backed by keys.
func NewIDTokenVerifier(keys KeySource, cfg VerifierConfig) (*IDTokenVerifier, error) {
	if keys == nil {
		return nil, fmt.Errorf("key source is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	return &IDTokenVerifier{
		keys:        keys,
		projectID:   cfg.ProjectID,
		issuer:      cfg.Issuer,
		skew:        cfg.ClockSkew,
		revocations: cfg.Revocations,
		now:         time.Now,
	}, nil
}

// Verify validates credential and returns the principal it identifies.
// Errors wrap ErrMalformedCredential or ErrInvalidCredential.
func (v *IDTokenVerifier) Verify(ctx context.Context, credential string) (*Principal, error) {
	start := time.Now()
	defer func() { VerificationDuration.Observe(time.Since(start).Seconds()) }()

	principal, err := v.verify(ctx, credential)
	switch {
	case err == nil:
		VerificationTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrMalformedCredential):
		VerificationTotal.WithLabelValues("malformed").Inc()
	default:
		VerificationTotal.WithLabelValues("invalid").Inc()
	}
	return principal, err
}

func (v *IDTokenVerifier) verify(ctx context.Context, credential string) (*Principal, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrMalformedCredential)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.skew),
		jwt.WithTimeFunc(v.now),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keys.GetKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	if len(sub) > maxSubjectLength {
		return nil, fmt.Errorf("%w: subject longer than %d characters", ErrInvalidCredential, maxSubjectLength)
	}

	authTime, err := numericClaim(claims, "auth_time")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if authTime.After(v.now().Add(v.skew)) {
		return nil, fmt.Errorf("%w: auth_time is in the future", ErrInvalidCredential)
	}

	if v.revocations != nil {
		if validSince, ok := v.revocations.ValidSince(ctx, sub); ok && authTime.Before(validSince) {
			logging.Ctx(ctx).Debug().Str("uid", sub).Msg("Rejected token from revoked session")
			return nil, fmt.Errorf("%w: session revoked", ErrInvalidCredential)
		}
	}

	return newPrincipal(sub, claims), nil
}

// numericClaim reads a NumericDate claim that must be present.
func numericClaim(claims jwt.MapClaims, name string) (time.Time, error) {
	switch v := claims[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), nil
	case int64:
		return time.Unix(v, 0), nil
	case nil:
		return time.Time{}, fmt.Errorf("missing %s claim", name)
	default:
		return time.Time{}, fmt.Errorf("%s claim has unexpected type %T", name, v)
	}
}

// DiscoverJWKSURL resolves the signing key endpoint from the issuer's OpenID
// discovery document.
func DiscoverJWKSURL(ctx context.Context, issuer string, httpClient *http.Client) (string, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	discovery, err := client.Discover(ctx, issuer, httpClient)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", issuer, err)
	}
	if discovery.JwksURI == "" {
		return "", fmt.Errorf("discovery document for %s has no jwks_uri", issuer)
	}
	return discovery.JwksURI, nil
}
