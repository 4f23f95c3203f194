// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewIDTokenVerifierRequiresConfig(t *testing.T) {
	cache := NewJWKSCache(JWKSCacheConfig{URI: "http://127.0.0.1/jwks"})

	if _, err := NewIDTokenVerifier(nil, VerifierConfig{ProjectID: "p", Issuer: "i"}); err == nil {
		t.Error("expected error for nil key source")
	}
	if _, err := NewIDTokenVerifier(cache, VerifierConfig{Issuer: "i"}); err == nil {
		t.Error("expected error for missing project id")
	}
	if _, err := NewIDTokenVerifier(cache, VerifierConfig{ProjectID: "p"}); err == nil {
		t.Error("expected error for missing issuer")
	}
}

func TestVerifyValidToken(t *testing.T) {
	m := newTestProvider(t)
	v := newTestVerifier(t, m, nil)

	token := mustToken(t, m, TokenOptions{
		Subject: "user-42",
		Claims:  map[string]interface{}{"email": "inspector@example.com"},
	})

	principal, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if principal.ID() != "user-42" {
		t.Errorf("ID() = %q, want user-42", principal.ID())
	}
	if principal.Email() != "inspector@example.com" {
		t.Errorf("Email() = %q, want inspector@example.com", principal.Email())
	}
	if principal.SignInProvider() != "password" {
		t.Errorf("SignInProvider() = %q, want password", principal.SignInProvider())
	}
	if aud, _ := principal.Claim("aud"); aud != testProjectID {
		t.Errorf("Claim(aud) = %v, want %s", aud, testProjectID)
	}

	claims := principal.Claims()
	claims["sub"] = "someone-else"
	if principal.ID() != "user-42" {
		t.Error("mutating Claims() copy must not affect the principal")
	}
	if sub, _ := principal.Claim("sub"); sub != "user-42" {
		t.Errorf("Claim(sub) = %v after mutation of copy, want user-42", sub)
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newTestProvider(t)
	v := newTestVerifier(t, m, nil)

	for _, credential := range []string{"", "   ", "not-a-jwt", "abc.def.ghi", "a.b"} {
		_, err := v.Verify(context.Background(), credential)
		if !errors.Is(err, ErrMalformedCredential) {
			t.Errorf("Verify(%q) error = %v, want ErrMalformedCredential", credential, err)
		}
	}
}

func TestVerifyInvalid(t *testing.T) {
	m := newTestProvider(t)
	v := newTestVerifier(t, m, nil)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	now := time.Now()

	tests := []struct {
		name string
		opts TokenOptions
	}{
		{"wrong audience", TokenOptions{Subject: "u1", Audience: "other-project"}},
		{"wrong issuer", TokenOptions{Subject: "u1", Issuer: "https://securetoken.google.com/other-project"}},
		{"expired", TokenOptions{Subject: "u1", IssuedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-2 * time.Hour)}},
		{"issued in the future", TokenOptions{Subject: "u1", IssuedAt: now.Add(time.Hour), ExpiresAt: now.Add(2 * time.Hour), AuthTime: now}},
		{"auth_time in the future", TokenOptions{Subject: "u1", AuthTime: now.Add(time.Hour)}},
		{"missing subject", TokenOptions{Subject: ""}},
		{"subject too long", TokenOptions{Subject: strings.Repeat("u", maxSubjectLength+1)}},
		{"unknown key id", TokenOptions{Subject: "u1", KeyID: "rotated-away"}},
		{"forged signature", TokenOptions{Subject: "u1", SigningKey: otherKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := mustToken(t, m, tt.opts)
			principal, err := v.Verify(context.Background(), token)
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Verify() error = %v, want ErrInvalidCredential", err)
			}
			if principal != nil {
				t.Error("Verify() must not return a principal on failure")
			}
		})
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	m := newTestProvider(t)
	v := newTestVerifier(t, m, nil)

	token := mustToken(t, m, TokenOptions{Subject: "user-42"})
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[10] == 'A' {
		sig[10] = 'B'
	} else {
		sig[10] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := v.Verify(context.Background(), tampered); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify(tampered) error = %v, want ErrInvalidCredential", err)
	}
}

func TestVerifyRejectsSymmetricAlgorithm(t *testing.T) {
	m := newTestProvider(t)
	v := newTestVerifier(t, m, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":       m.Issuer,
		"aud":       m.ProjectID,
		"sub":       "user-42",
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"auth_time": time.Now().Unix(),
	})
	token.Header["kid"] = m.KeyID()
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := v.Verify(context.Background(), signed); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify(HS256) error = %v, want ErrInvalidCredential", err)
	}
}

func TestVerifyRevokedSession(t *testing.T) {
	m := newTestProvider(t)
	revocations := NewSessionRevocations()
	v := newTestVerifier(t, m, revocations)

	signedInAt := time.Now().Add(-10 * time.Minute)
	old := mustToken(t, m, TokenOptions{Subject: "user-42", IssuedAt: time.Now(), AuthTime: signedInAt})

	if _, err := v.Verify(context.Background(), old); err != nil {
		t.Fatalf("Verify() before revocation error = %v", err)
	}

	revocations.RevokeAll("user-42", time.Now().Add(-time.Minute))

	if _, err := v.Verify(context.Background(), old); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify() after revocation error = %v, want ErrInvalidCredential", err)
	}

	fresh := mustToken(t, m, TokenOptions{Subject: "user-42"})
	if _, err := v.Verify(context.Background(), fresh); err != nil {
		t.Errorf("Verify() of a newer session error = %v", err)
	}

	other := mustToken(t, m, TokenOptions{Subject: "user-7", AuthTime: signedInAt})
	if _, err := v.Verify(context.Background(), other); err != nil {
		t.Errorf("revocation must not affect other users, got %v", err)
	}
}

func TestVerifySignInDuringRevocationSecond(t *testing.T) {
	m := newTestProvider(t)
	revocations := NewSessionRevocations()
	v := newTestVerifier(t, m, revocations)

	second := time.Now().Add(-2 * time.Minute).Truncate(time.Second)
	revocations.RevokeAll("user-42", second.Add(300*time.Millisecond))

	tests := []struct {
		name     string
		authTime time.Time
		wantErr  bool
	}{
		{"signed in the second before", second.Add(-time.Second), true},
		{"signed in earlier in the same second", second.Add(100 * time.Millisecond), false},
		{"signed in again later in the same second", second.Add(800 * time.Millisecond), false},
		{"signed in after", second.Add(5 * time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := mustToken(t, m, TokenOptions{Subject: "user-42", IssuedAt: time.Now(), AuthTime: tt.authTime})
			_, err := v.Verify(context.Background(), token)
			if tt.wantErr && !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Verify() error = %v, want ErrInvalidCredential", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Verify() error = %v, want nil", err)
			}
		})
	}
}

func TestVerifyUsesCachedKeys(t *testing.T) {
	m := newTestProvider(t)
	v := newTestVerifier(t, m, nil)

	for i := 0; i < 5; i++ {
		token := mustToken(t, m, TokenOptions{Subject: "user-42"})
		if _, err := v.Verify(context.Background(), token); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
	}
	if got := m.JWKSRequests(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1", got)
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	m := newTestProvider(t)

	got, err := DiscoverJWKSURL(context.Background(), m.Issuer, nil)
	if err != nil {
		t.Fatalf("DiscoverJWKSURL() error = %v", err)
	}
	if got != m.JWKSURL() {
		t.Errorf("DiscoverJWKSURL() = %q, want %q", got, m.JWKSURL())
	}

	if _, err := DiscoverJWKSURL(context.Background(), m.Server.URL+"/unknown-project", nil); err == nil {
		t.Error("expected discovery error for unknown issuer")
	}
}
