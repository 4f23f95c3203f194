// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/metrics"
)

// TokenRefreshWindow is how close to expiry a cached ID token may get
// before IDToken refreshes it.
const TokenRefreshWindow = 5 * time.Minute

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// User is the signed-in user of an Auth session.
type User struct {
	UID       string
	Email     string
	ExpiresAt time.Time

	idToken      string
	refreshToken string
}

// tokenGrant is the normalized result of a sign-in or refresh call.
type tokenGrant struct {
	uid          string
	email        string
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// Auth is the authentication session of one app. At most one user is
// signed in at a time. It is safe for concurrent use; concurrent refreshes
// collapse into one request.
type Auth struct {
	app        string
	apiKey     string
	endpoints  Endpoints
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*tokenGrant]
	group      singleflight.Group
	now        func() time.Time

	mu   sync.RWMutex
	user *User
}

func newAuth(app, apiKey string, opts Options) *Auth {
	a := &Auth{
		app:        app,
		apiKey:     apiKey,
		endpoints:  opts.Endpoints,
		httpClient: opts.HTTPClient,
		now:        time.Now,
	}

	failures := opts.BreakerFailures
	a.breaker = gobreaker.NewCircuitBreaker[*tokenGrant](gobreaker.Settings{
		Name:        "identity-" + app,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Rejected passwords and expired refresh tokens say nothing about
		// the provider's health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Identity service circuit breaker state changed")
		},
	})

	return a
}

// SignInWithPassword signs in with email and password, replacing any
// current user.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	body, err := json.Marshal(map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sign-in request: %w", err)
	}

	grant, err := a.execute("sign_in", func() (*tokenGrant, error) {
		var resp struct {
			LocalID      string `json:"localId"`
			Email        string `json:"email"`
			IDToken      string `json:"idToken"`
			RefreshToken string `json:"refreshToken"`
			ExpiresIn    string `json:"expiresIn"`
		}
		endpoint := a.endpoints.IdentityToolkit + "/accounts:signInWithPassword"
		if err := a.post(ctx, endpoint, "application/json", body, &resp); err != nil {
			return nil, err
		}
		return a.newGrant(resp.LocalID, resp.Email, resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	user := &User{
		UID:          grant.uid,
		Email:        grant.email,
		ExpiresAt:    grant.expiresAt,
		idToken:      grant.idToken,
		refreshToken: grant.refreshToken,
	}

	a.mu.Lock()
	a.user = user
	a.mu.Unlock()

	logging.Info().
		Str("app", a.app).
		Str("uid", user.UID).
		Msg("Signed in")

	snapshot := *user
	return &snapshot, nil
}

// SignOut forgets the current user. It is a no-op when nobody is signed in.
func (a *Auth) SignOut() {
	a.mu.Lock()
	user := a.user
	a.user = nil
	a.mu.Unlock()

	if user != nil {
		logging.Info().Str("app", a.app).Str("uid", user.UID).Msg("Signed out")
	}
}

// CurrentUser returns a snapshot of the signed-in user, or nil.
func (a *Auth) CurrentUser() *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	snapshot := *a.user
	return &snapshot
}

// IDToken returns the current user's ID token. The token is refreshed when
// forceRefresh is set or when it expires within TokenRefreshWindow.
func (a *Auth) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	a.mu.RLock()
	user := a.user
	a.mu.RUnlock()

	if user == nil {
		return "", ErrNoCurrentUser
	}
	if !forceRefresh && a.now().Add(TokenRefreshWindow).Before(user.ExpiresAt) {
		return user.idToken, nil
	}

	// Callers joined to one refresh share it, so it must outlive whichever
	// of them started it. The HTTP client timeout still bounds it.
	refreshCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(user.refreshToken, func() (interface{}, error) {
		return a.refresh(refreshCtx, user)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (a *Auth) refresh(ctx context.Context, user *User) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {user.refreshToken},
	}

	grant, err := a.execute("refresh", func() (*tokenGrant, error) {
		var resp struct {
			IDToken      string `json:"id_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    string `json:"expires_in"`
			UserID       string `json:"user_id"`
		}
		endpoint := a.endpoints.SecureToken + "/token"
		if err := a.post(ctx, endpoint, "application/x-www-form-urlencoded", []byte(form.Encode()), &resp); err != nil {
			return nil, err
		}
		return a.newGrant(resp.UserID, user.Email, resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	})
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Signed out, or another user signed in, while the refresh was in flight.
	if a.user != user {
		return "", ErrNoCurrentUser
	}
	a.user = &User{
		UID:          user.UID,
		Email:        user.Email,
		ExpiresAt:    grant.expiresAt,
		idToken:      grant.idToken,
		refreshToken: grant.refreshToken,
	}

	logging.Debug().
		Str("app", a.app).
		Str("uid", user.UID).
		Time("expires_at", grant.expiresAt).
		Msg("ID token refreshed")

	return grant.idToken, nil
}

// execute runs fn through the circuit breaker and records the outcome.
func (a *Auth) execute(operation string, fn func() (*tokenGrant, error)) (*tokenGrant, error) {
	grant, err := a.breaker.Execute(fn)
	switch {
	case err == nil:
		metrics.IdentityRequests.WithLabelValues(operation, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.IdentityRequests.WithLabelValues(operation, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	default:
		metrics.IdentityRequests.WithLabelValues(operation, "error").Inc()
	}
	return grant, err
}

// post sends body to endpoint with the API key and decodes a 200 response
// into out.
func (a *Auth) post(ctx context.Context, endpoint, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+url.QueryEscape(a.apiKey), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request identity service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

// decodeAPIError extracts the provider's error code, e.g. "INVALID_PASSWORD"
// from {"error":{"message":"INVALID_PASSWORD : ..."}}.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		code, _, _ := strings.Cut(body.Error.Message, " ")
		apiErr.Code = code
	}
	return apiErr
}

// newGrant validates a token response. The expiry comes from the token's
// exp claim, falling back to expiresIn seconds.
func (a *Auth) newGrant(uid, email, idToken, refreshToken, expiresIn string) (*tokenGrant, error) {
	if idToken == "" || refreshToken == "" {
		return nil, errors.New("identity response is missing tokens")
	}

	expiresAt := a.tokenExpiry(idToken)
	if expiresAt.IsZero() {
		seconds, err := strconv.Atoi(expiresIn)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("identity response has invalid expiresIn %q", expiresIn)
		}
		expiresAt = a.now().Add(time.Duration(seconds) * time.Second)
	}

	return &tokenGrant{
		uid:          uid,
		email:        email,
		idToken:      idToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
	}, nil
}

// tokenExpiry reads exp without verifying the signature; the token came
// straight from the provider over TLS and is only used to schedule refreshes.
func (a *Auth) tokenExpiry(idToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
