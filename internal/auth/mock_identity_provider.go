// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// MockIdentityProvider is an in-process identity provider for tests.
// It serves:
//   - /<project>/.well-known/openid-configuration (discovery)
//   - /jwks (signing keys)
//
// and mints RS256 ID tokens shaped like the real provider's.
type MockIdentityProvider struct {
	Server    *httptest.Server
	ProjectID string
	Issuer    string

	mu          sync.Mutex
	privateKey  *rsa.PrivateKey
	keyID       string
	jwksHits    int
	failJWKS    bool
	jwksHeaders map[string]string
}

// TokenOptions customizes a minted token. Zero fields take valid defaults.
type TokenOptions struct {
	Subject   string
	Audience  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	AuthTime  time.Time
	KeyID     string
	Claims    map[string]interface{}

	// SigningKey overrides the provider's key, e.g. to forge a signature.
	SigningKey *rsa.PrivateKey
}

// NewMockIdentityProvider starts a mock provider for projectID.
func NewMockIdentityProvider(projectID string) (*MockIdentityProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	m := &MockIdentityProvider{
		ProjectID:   projectID,
		privateKey:  key,
		keyID:       randomKeyID(),
		jwksHeaders: map[string]string{"Cache-Control": "public, max-age=3600"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/"+projectID+"/.well-known/openid-configuration", m.handleDiscovery)
	mux.HandleFunc("/jwks", m.handleJWKS)

	m.Server = httptest.NewServer(mux)
	m.Issuer = m.Server.URL + "/" + projectID
	return m, nil
}

// Close shuts down the mock server.
func (m *MockIdentityProvider) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// IssuerPrefix returns the prefix that, joined with ProjectID, yields Issuer.
func (m *MockIdentityProvider) IssuerPrefix() string {
	return m.Server.URL + "/"
}

// JWKSURL returns the signing key endpoint.
func (m *MockIdentityProvider) JWKSURL() string {
	return m.Server.URL + "/jwks"
}

// JWKSRequests returns how many times the key endpoint was fetched.
func (m *MockIdentityProvider) JWKSRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jwksHits
}

// SetJWKSFailure makes the key endpoint answer 503 while fail is true.
func (m *MockIdentityProvider) SetJWKSFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failJWKS = fail
}

// SetJWKSHeader sets a response header on the key endpoint.
func (m *MockIdentityProvider) SetJWKSHeader(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jwksHeaders[name] = value
}

// RotateKey replaces the signing key and key id.
func (m *MockIdentityProvider) RotateKey() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate RSA key: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privateKey = key
	m.keyID = randomKeyID()
	return nil
}

// KeyID returns the current signing key id.
func (m *MockIdentityProvider) KeyID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyID
}

// NewVerifier returns a verifier wired to this provider.
func (m *MockIdentityProvider) NewVerifier(revocations RevocationChecker) (*IDTokenVerifier, error) {
	cache := NewJWKSCache(JWKSCacheConfig{URI: m.JWKSURL()})
	return NewIDTokenVerifier(cache, VerifierConfig{
		ProjectID:   m.ProjectID,
		Issuer:      m.Issuer,
		ClockSkew:   time.Minute,
		Revocations: revocations,
	})
}

// ValidToken mints an unexpired token for subject.
func (m *MockIdentityProvider) ValidToken(subject string) (string, error) {
	return m.IssueToken(TokenOptions{Subject: subject})
}

// IssueToken mints a token according to opts.
func (m *MockIdentityProvider) IssueToken(opts TokenOptions) (string, error) {
	now := time.Now()
	if opts.IssuedAt.IsZero() {
		opts.IssuedAt = now
	}
	if opts.ExpiresAt.IsZero() {
		opts.ExpiresAt = opts.IssuedAt.Add(time.Hour)
	}
	if opts.AuthTime.IsZero() {
		opts.AuthTime = opts.IssuedAt
	}
	if opts.Audience == "" {
		opts.Audience = m.ProjectID
	}
	if opts.Issuer == "" {
		opts.Issuer = m.Issuer
	}

	m.mu.Lock()
	key := m.privateKey
	kid := m.keyID
	m.mu.Unlock()
	if opts.SigningKey != nil {
		key = opts.SigningKey
	}
	if opts.KeyID != "" {
		kid = opts.KeyID
	}

	claims := jwt.MapClaims{
		"iss":       opts.Issuer,
		"aud":       opts.Audience,
		"sub":       opts.Subject,
		"user_id":   opts.Subject,
		"iat":       opts.IssuedAt.Unix(),
		"exp":       opts.ExpiresAt.Unix(),
		"auth_time": opts.AuthTime.Unix(),
		"firebase": map[string]interface{}{
			"sign_in_provider": "password",
			"identities":       map[string]interface{}{},
		},
	}
	for k, v := range opts.Claims {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *MockIdentityProvider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	discovery := map[string]interface{}{
		"issuer":                                m.Issuer,
		"jwks_uri":                              m.JWKSURL(),
		"response_types_supported":              []string{"id_token"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (m *MockIdentityProvider) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.jwksHits++
	fail := m.failJWKS
	pub := m.privateKey.PublicKey
	kid := m.keyID
	for name, value := range m.jwksHeaders {
		w.Header().Set(name, value)
	}
	m.mu.Unlock()

	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	jwks := map[string]interface{}{
		"keys": []map[string]interface{}{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(jwks); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func randomKeyID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
