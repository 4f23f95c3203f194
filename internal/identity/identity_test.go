// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/metrics"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const (
	testAPIKey    = "AIzaSyTestKeyForQualityPulse0000000"
	testProjectID = "pulse-test"
)

type testEnv struct {
	provider *auth.MockIdentityProvider
	server   *MockServer
	registry *Registry
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	provider, err := auth.NewMockIdentityProvider(testProjectID)
	if err != nil {
		t.Fatalf("NewMockIdentityProvider() error = %v", err)
	}
	t.Cleanup(provider.Close)

	server := NewMockServer(provider, testAPIKey)
	t.Cleanup(server.Close)
	server.AddUser("user-42", "inspector@example.com", "correct horse")

	opts.Endpoints = server.Endpoints()
	return &testEnv{
		provider: provider,
		server:   server,
		registry: NewRegistry(opts),
	}
}

func (e *testEnv) app(t *testing.T) *App {
	t.Helper()
	app, err := e.registry.InitializeApp(AppConfig{APIKey: testAPIKey, ProjectID: testProjectID}, "")
	if err != nil {
		t.Fatalf("InitializeApp() error = %v", err)
	}
	return app
}

func TestRegistry(t *testing.T) {
	env := newTestEnv(t, Options{})
	cfg := AppConfig{APIKey: testAPIKey, ProjectID: testProjectID}

	app, err := env.registry.InitializeApp(cfg, "")
	if err != nil {
		t.Fatalf("InitializeApp() error = %v", err)
	}
	if app.Name() != DefaultAppName {
		t.Errorf("Name() = %q, want %q", app.Name(), DefaultAppName)
	}

	if _, err := env.registry.InitializeApp(cfg, DefaultAppName); !errors.Is(err, ErrDuplicateApp) {
		t.Errorf("second InitializeApp() error = %v, want ErrDuplicateApp", err)
	}

	existing, err := env.registry.App("")
	if err != nil || existing != app {
		t.Errorf("App(\"\") = %p, %v; want the registered app", existing, err)
	}

	if _, err := env.registry.InitializeApp(cfg, "admin"); err != nil {
		t.Fatalf("InitializeApp(admin) error = %v", err)
	}
	apps := env.registry.Apps()
	if len(apps) != 2 || apps[0].Name() != DefaultAppName || apps[1].Name() != "admin" {
		t.Errorf("Apps() = %v", apps)
	}

	if err := env.registry.DeleteApp("admin"); err != nil {
		t.Fatalf("DeleteApp() error = %v", err)
	}
	if _, err := env.registry.App("admin"); !errors.Is(err, ErrNoApp) {
		t.Errorf("App(admin) after delete error = %v, want ErrNoApp", err)
	}
	if err := env.registry.DeleteApp("admin"); !errors.Is(err, ErrNoApp) {
		t.Errorf("second DeleteApp() error = %v, want ErrNoApp", err)
	}
}

func TestRegistryRejectsIncompleteConfig(t *testing.T) {
	registry := NewRegistry(Options{})

	tests := []struct {
		name string
		cfg  AppConfig
	}{
		{"missing api key", AppConfig{ProjectID: testProjectID}},
		{"missing project", AppConfig{APIKey: testAPIKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := registry.InitializeApp(tt.cfg, ""); !errors.Is(err, ErrInvalidAppConfig) {
				t.Errorf("InitializeApp() error = %v, want ErrInvalidAppConfig", err)
			}
		})
	}
	if len(registry.Apps()) != 0 {
		t.Error("rejected config was registered")
	}
}

func TestSignInIssuesVerifiableToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	app := env.app(t)
	ctx := context.Background()

	user, err := app.Auth().SignInWithPassword(ctx, "inspector@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if user.UID != "user-42" || user.Email != "inspector@example.com" {
		t.Errorf("user = %+v", user)
	}
	if until := time.Until(user.ExpiresAt); until < 50*time.Minute || until > 61*time.Minute {
		t.Errorf("ExpiresAt in %v, want about an hour", until)
	}

	token, err := app.Auth().IDToken(ctx, false)
	if err != nil {
		t.Fatalf("IDToken() error = %v", err)
	}
	if env.server.RefreshCount() != 0 {
		t.Errorf("fresh token was refreshed %d times", env.server.RefreshCount())
	}

	verifier, err := env.provider.NewVerifier(nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	principal, err := verifier.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if principal.ID() != "user-42" {
		t.Errorf("principal = %q, want user-42", principal.ID())
	}
}

func TestSignInRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	app := env.app(t)

	_, err := app.Auth().SignInWithPassword(context.Background(), "inspector@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "INVALID_LOGIN_CREDENTIALS" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if app.Auth().CurrentUser() != nil {
		t.Error("failed sign-in left a current user")
	}
}

func TestIDTokenWithoutUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	app := env.app(t)

	if _, err := app.Auth().IDToken(context.Background(), false); !errors.Is(err, ErrNoCurrentUser) {
		t.Errorf("IDToken() error = %v, want ErrNoCurrentUser", err)
	}
}

func TestIDTokenRefreshesNearExpiry(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.server.SetTokenTTL(2 * time.Minute)
	app := env.app(t)
	ctx := context.Background()

	if _, err := app.Auth().SignInWithPassword(ctx, "inspector@example.com", "correct horse"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	if _, err := app.Auth().IDToken(ctx, false); err != nil {
		t.Fatalf("IDToken() error = %v", err)
	}
	if got := env.server.RefreshCount(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}

	env.server.SetTokenTTL(time.Hour)
	if _, err := app.Auth().IDToken(ctx, true); err != nil {
		t.Fatalf("forced IDToken() error = %v", err)
	}
	if _, err := app.Auth().IDToken(ctx, false); err != nil {
		t.Fatalf("IDToken() error = %v", err)
	}
	if got := env.server.RefreshCount(); got != 2 {
		t.Errorf("refreshes = %d, want 2", got)
	}
	if until := time.Until(app.Auth().CurrentUser().ExpiresAt); until < 50*time.Minute {
		t.Errorf("refreshed ExpiresAt in %v, want about an hour", until)
	}
}

func TestIDTokenRefreshSurvivesCanceledCaller(t *testing.T) {
	env := newTestEnv(t, Options{})
	app := env.app(t)

	if _, err := app.Auth().SignInWithPassword(context.Background(), "inspector@example.com", "correct horse"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	release := env.server.HoldRefreshes()
	t.Cleanup(release)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := app.Auth().IDToken(ctx, true)
		first <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for env.server.RefreshCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresh never reached the server")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("canceled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	// The refresh is still held, so this caller joins it.
	second := make(chan error, 1)
	go func() {
		token, err := app.Auth().IDToken(context.Background(), true)
		if err == nil && token == "" {
			err = errors.New("empty token")
		}
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)
	release()

	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("joined caller error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("joined caller did not return")
	}
	if got := env.server.RefreshCount(); got != 1 {
		t.Errorf("refreshes = %d, want 1 shared refresh", got)
	}
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t, Options{})
	app := env.app(t)
	ctx := context.Background()

	if _, err := app.Auth().SignInWithPassword(ctx, "inspector@example.com", "correct horse"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	app.Auth().SignOut()
	app.Auth().SignOut()

	if app.Auth().CurrentUser() != nil {
		t.Error("CurrentUser() after sign out is not nil")
	}
	if _, err := app.Auth().IDToken(ctx, true); !errors.Is(err, ErrNoCurrentUser) {
		t.Errorf("IDToken() error = %v, want ErrNoCurrentUser", err)
	}
}

func TestCircuitBreaker(t *testing.T) {
	env := newTestEnv(t, Options{BreakerFailures: 2, BreakerTimeout: time.Minute})
	app := env.app(t)
	ctx := context.Background()

	// Rejected credentials never trip the breaker.
	for i := 0; i < 3; i++ {
		_, err := app.Auth().SignInWithPassword(ctx, "inspector@example.com", "wrong")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("attempt %d: error = %v, want *APIError", i, err)
		}
	}

	rejected := testutil.ToFloat64(metrics.IdentityRequests.WithLabelValues("sign_in", "rejected"))
	env.server.SetFailure(http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		if _, err := app.Auth().SignInWithPassword(ctx, "inspector@example.com", "correct horse"); err == nil {
			t.Fatalf("attempt %d succeeded against a failing service", i)
		}
	}
	served := env.server.SignInCount()

	_, err := app.Auth().SignInWithPassword(ctx, "inspector@example.com", "correct horse")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error = %v, want ErrServiceUnavailable", err)
	}
	if env.server.SignInCount() != served {
		t.Error("open breaker still sent the request")
	}
	if got := testutil.ToFloat64(metrics.IdentityRequests.WithLabelValues("sign_in", "rejected")) - rejected; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
}

func TestDecodeAPIErrorKeepsCodeOnly(t *testing.T) {
	env := newTestEnv(t, Options{})
	registry := NewRegistry(Options{Endpoints: env.server.Endpoints()})
	app, err := registry.InitializeApp(AppConfig{APIKey: "AIzaWrongKey", ProjectID: testProjectID}, "")
	if err != nil {
		t.Fatalf("InitializeApp() error = %v", err)
	}

	_, err = app.Auth().SignInWithPassword(context.Background(), "inspector@example.com", "correct horse")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "API_KEY_INVALID" {
		t.Errorf("error = %v, want API_KEY_INVALID", err)
	}
}
