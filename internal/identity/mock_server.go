// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package identity

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/qualitypulse/internal/auth"
)

// MockServer emulates the identity REST APIs for tests. ID tokens are minted
// by an auth.MockIdentityProvider, so they verify against the server's gate.
type MockServer struct {
	provider *auth.MockIdentityProvider
	server   *httptest.Server
	apiKey   string

	mu            sync.Mutex
	accounts      map[string]mockAccount
	refreshTokens map[string]mockAccount
	tokenTTL      time.Duration
	failStatus    int
	signIns       int
	refreshes     int
	refreshGate   chan struct{}
}

type mockAccount struct {
	uid      string
	email    string
	password string
}

// NewMockServer starts a mock identity service accepting apiKey.
func NewMockServer(provider *auth.MockIdentityProvider, apiKey string) *MockServer {
	m := &MockServer{
		provider:      provider,
		apiKey:        apiKey,
		accounts:      make(map[string]mockAccount),
		refreshTokens: make(map[string]mockAccount),
		tokenTTL:      time.Hour,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	return m
}

// Close shuts the server down.
func (m *MockServer) Close() {
	m.server.Close()
}

// Endpoints returns endpoints pointing at the mock server.
func (m *MockServer) Endpoints() Endpoints {
	return Endpoints{
		IdentityToolkit: m.server.URL + "/identitytoolkit/v1",
		SecureToken:     m.server.URL + "/securetoken/v1",
	}
}

// AddUser registers an email/password account.
func (m *MockServer) AddUser(uid, email, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[strings.ToLower(email)] = mockAccount{uid: uid, email: email, password: password}
}

// SetTokenTTL sets the lifetime of minted ID tokens.
func (m *MockServer) SetTokenTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenTTL = ttl
}

// SetFailure makes every request answer status. Zero restores normal service.
func (m *MockServer) SetFailure(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
}

// SignInCount returns the number of sign-in requests served.
func (m *MockServer) SignInCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signIns
}

// RefreshCount returns the number of token refresh requests served.
func (m *MockServer) RefreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// HoldRefreshes makes token refresh requests wait until the returned
// release func is called. Release is idempotent.
func (m *MockServer) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.refreshGate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.refreshGate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

func (m *MockServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	failStatus := m.failStatus
	m.mu.Unlock()

	switch {
	case r.Method != http.MethodPost:
		writeMockError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
	case failStatus != 0:
		writeMockError(w, failStatus, "INTERNAL")
	case r.URL.Query().Get("key") != m.apiKey:
		writeMockError(w, http.StatusBadRequest, "API_KEY_INVALID")
	case r.URL.Path == "/identitytoolkit/v1/accounts:signInWithPassword":
		m.handleSignIn(w, r)
	case r.URL.Path == "/securetoken/v1/token":
		m.handleRefresh(w, r)
	default:
		writeMockError(w, http.StatusNotFound, "NOT_FOUND")
	}
}

func (m *MockServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMockError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}

	m.mu.Lock()
	m.signIns++
	account, ok := m.accounts[strings.ToLower(req.Email)]
	m.mu.Unlock()

	if !ok || account.password != req.Password {
		writeMockError(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
		return
	}

	idToken, refreshToken, ttl, err := m.mint(account)
	if err != nil {
		writeMockError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	writeMockJSON(w, map[string]interface{}{
		"localId":      account.uid,
		"email":        account.email,
		"idToken":      idToken,
		"refreshToken": refreshToken,
		"expiresIn":    strconv.Itoa(int(ttl.Seconds())),
		"registered":   true,
	})
}

func (m *MockServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		writeMockError(w, http.StatusBadRequest, "INVALID_GRANT_TYPE")
		return
	}

	m.mu.Lock()
	m.refreshes++
	account, ok := m.refreshTokens[r.PostForm.Get("refresh_token")]
	gate := m.refreshGate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		writeMockError(w, http.StatusBadRequest, "INVALID_REFRESH_TOKEN")
		return
	}

	idToken, refreshToken, ttl, err := m.mint(account)
	if err != nil {
		writeMockError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}
	writeMockJSON(w, map[string]interface{}{
		"id_token":      idToken,
		"refresh_token": refreshToken,
		"expires_in":    strconv.Itoa(int(ttl.Seconds())),
		"token_type":    "Bearer",
		"user_id":       account.uid,
	})
}

func (m *MockServer) mint(account mockAccount) (string, string, time.Duration, error) {
	m.mu.Lock()
	ttl := m.tokenTTL
	m.mu.Unlock()

	now := time.Now()
	idToken, err := m.provider.IssueToken(auth.TokenOptions{
		Subject:   account.uid,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Claims:    map[string]interface{}{"email": account.email},
	})
	if err != nil {
		return "", "", 0, err
	}

	refreshToken := uuid.NewString()
	m.mu.Lock()
	m.refreshTokens[refreshToken] = account
	m.mu.Unlock()

	return idToken, refreshToken, ttl, nil
}

func writeMockJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeMockError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": code,
		},
	})
}
