// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/qualitypulse/internal/identity"
)

func TestTokenProviderConcurrentFirstCallersInitializeOnce(t *testing.T) {
	env := newIdentityEnv(t)
	env.sdk.initDelay = 20 * time.Millisecond
	provider := NewTokenProvider(validConfig(), env.sdk)

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := provider.CurrentToken(context.Background())
			if err != nil || token != "" {
				errs <- errors.New("unexpected token or error before sign-in")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := env.sdk.inits.Load(); got != 1 {
		t.Errorf("InitializeApp calls = %d, want 1", got)
	}
	if provider.State() != StateReady {
		t.Errorf("State() = %v, want ready", provider.State())
	}
}

func TestTokenProviderRejectsConfigurationWithoutSDKCalls(t *testing.T) {
	fields := map[string]func(*Config){
		"api_key":             func(c *Config) { c.APIKey = "" },
		"auth_domain":         func(c *Config) { c.AuthDomain = "" },
		"project_id":          func(c *Config) { c.ProjectID = "" },
		"storage_bucket":      func(c *Config) { c.StorageBucket = "" },
		"messaging_sender_id": func(c *Config) { c.MessagingSenderID = "" },
		"app_id":              func(c *Config) { c.AppID = "" },
		"disabled":            func(c *Config) { c.Enabled = false },
		"malformed key":       func(c *Config) { c.APIKey = "not-a-key" },
	}
	for name, mutate := range fields {
		t.Run(name, func(t *testing.T) {
			env := newIdentityEnv(t)
			cfg := validConfig()
			mutate(&cfg)
			provider := NewTokenProvider(cfg, env.sdk)

			first := provider.Init()
			if !errors.Is(first, ErrConfigurationInvalid) {
				t.Fatalf("Init() error = %v, want ErrConfigurationInvalid", first)
			}
			if provider.State() != StateFailed {
				t.Errorf("State() = %v, want failed", provider.State())
			}

			token, err := provider.CurrentToken(context.Background())
			if token != "" || err != nil {
				t.Errorf("CurrentToken() = %q, %v; want empty, nil", token, err)
			}
			if err := provider.SignIn(context.Background(), testEmail, testPassword); err != first {
				t.Errorf("SignIn() error = %v, want the cached configuration error", err)
			}
			if again := provider.Init(); again != first {
				t.Errorf("second Init() = %v, want the cached error", again)
			}
			if calls := env.sdk.calls(); calls != 0 {
				t.Errorf("SDK calls = %d, want 0", calls)
			}
		})
	}
}

func TestTokenProviderDisabledNamesFlag(t *testing.T) {
	env := newIdentityEnv(t)
	cfg := validConfig()
	cfg.Enabled = false

	err := NewTokenProvider(cfg, env.sdk).Init()
	if err == nil || !strings.Contains(err.Error(), EnabledEnvVar) {
		t.Errorf("Init() error = %v, want a message naming %s", err, EnabledEnvVar)
	}
}

func TestTokenProviderReusesExistingApp(t *testing.T) {
	env := newIdentityEnv(t)
	cfg := validConfig()
	existing, err := env.sdk.registry.InitializeApp(cfg.AppConfig(), "")
	if err != nil {
		t.Fatalf("InitializeApp() error = %v", err)
	}
	provider := NewTokenProvider(cfg, env.sdk)

	if err := provider.SignIn(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if got := env.sdk.inits.Load(); got != 0 {
		t.Errorf("InitializeApp calls = %d, want 0", got)
	}
	if user := existing.Auth().CurrentUser(); user == nil || user.UID != "user-42" {
		t.Errorf("existing app user = %+v, want user-42", user)
	}
}

func TestTokenProviderInitializationFailure(t *testing.T) {
	env := newIdentityEnv(t)
	env.sdk.initErr = errors.New("sdk exploded")
	provider := NewTokenProvider(validConfig(), env.sdk)

	for i := 0; i < 3; i++ {
		if err := provider.Init(); !errors.Is(err, ErrInitializationFailed) {
			t.Fatalf("Init() #%d error = %v, want ErrInitializationFailed", i, err)
		}
	}
	if got := env.sdk.inits.Load(); got != 1 {
		t.Errorf("InitializeApp calls = %d, want 1", got)
	}
	if token, err := provider.CurrentToken(context.Background()); token != "" || err != nil {
		t.Errorf("CurrentToken() = %q, %v; want empty, nil", token, err)
	}
}

func TestTokenProviderSignInAndOut(t *testing.T) {
	env := newIdentityEnv(t)
	provider := NewTokenProvider(validConfig(), env.sdk)
	ctx := context.Background()

	if err := provider.SignIn(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if provider.UserID() != "user-42" {
		t.Errorf("UserID() = %q, want user-42", provider.UserID())
	}

	token, err := provider.CurrentToken(ctx)
	if err != nil || token == "" {
		t.Fatalf("CurrentToken() = %q, %v", token, err)
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

	provider.SignOut()
	if token, err := provider.CurrentToken(ctx); token != "" || err != nil {
		t.Errorf("CurrentToken() after sign out = %q, %v; want empty, nil", token, err)
	}
	if provider.UserID() != "" {
		t.Errorf("UserID() after sign out = %q", provider.UserID())
	}
}

func TestTokenProviderWrongPassword(t *testing.T) {
	env := newIdentityEnv(t)
	provider := NewTokenProvider(validConfig(), env.sdk)

	err := provider.SignIn(context.Background(), testEmail, "wrong")
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("SignIn() error = %v, want *identity.APIError", err)
	}
	if provider.State() != StateReady {
		t.Errorf("State() = %v; a rejected sign-in must not fail the session", provider.State())
	}
}

func TestTokenProviderRefreshFailureIsReturned(t *testing.T) {
	env := newIdentityEnv(t)
	env.server.SetTokenTTL(time.Minute)
	provider := NewTokenProvider(validConfig(), env.sdk)
	ctx := context.Background()

	if err := provider.SignIn(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	env.server.SetFailure(http.StatusInternalServerError)

	token, err := provider.CurrentToken(ctx)
	if err == nil {
		t.Fatalf("CurrentToken() = %q, nil; want refresh error", token)
	}
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Errorf("error = %v, want wrapped 500 APIError", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateReady:         "ready",
		StateFailed:        "failed",
		State(9):           "state(9)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(state), got, want)
		}
	}
}
