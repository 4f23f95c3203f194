// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/qualitypulse/internal/api"
	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/client"
	"github.com/tomtom215/qualitypulse/internal/config"
	"github.com/tomtom215/qualitypulse/internal/identity"
	"github.com/tomtom215/qualitypulse/internal/logging"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

const (
	testAPIKey    = "AIzaSyTestKeyForQualityPulse0000000"
	testProjectID = "pulse-test"
	testEmail     = "inspector@example.com"
	testPassword  = "correct horse"
)

type harness struct {
	env      *Env
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	provider *auth.MockIdentityProvider
	registry *CommandRegistry
}

// newHarness starts a mock identity backend and points the FIREBASE_*
// variables at it. PULSE_API_URL is left at its default.
func newHarness(t *testing.T) *harness {
	t.Helper()

	provider, err := auth.NewMockIdentityProvider(testProjectID)
	if err != nil {
		t.Fatalf("NewMockIdentityProvider() error = %v", err)
	}
	t.Cleanup(provider.Close)

	server := identity.NewMockServer(provider, testAPIKey)
	t.Cleanup(server.Close)
	server.AddUser("user-42", testEmail, testPassword)

	vars := map[string]string{
		"FIREBASE_ENABLED":             "true",
		"FIREBASE_API_KEY":             testAPIKey,
		"FIREBASE_AUTH_DOMAIN":         "pulse-test.firebaseapp.com",
		"FIREBASE_PROJECT_ID":          testProjectID,
		"FIREBASE_STORAGE_BUCKET":      "pulse-test.appspot.com",
		"FIREBASE_MESSAGING_SENDER_ID": "123456789012",
		"FIREBASE_APP_ID":              "1:123456789012:web:abcdef0123456789",
		"PULSE_API_URL":                "",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	h := &harness{
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
		provider: provider,
		registry: NewCommandRegistry(),
	}
	h.env = &Env{
		Stdout: h.stdout,
		Stderr: h.stderr,
		SDK:    identity.NewRegistry(identity.Options{Endpoints: server.Endpoints()}),
		Getenv: func(string) string { return "" },
	}
	registerCommands(h.registry)
	return h
}

func (h *harness) run(args ...string) error {
	return h.registry.Execute(context.Background(), h.env, args)
}

// newAPIServer serves the real router behind the mock provider's keys and
// returns its /api base URL.
func newAPIServer(t *testing.T, provider *auth.MockIdentityProvider) string {
	t.Helper()

	revocations := auth.NewSessionRevocations()
	verifier, err := provider.NewVerifier(revocations)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	cfg := &config.Config{
		Realtime: config.RealtimeConfig{Path: "/ws", SendBuffer: 16, MaxMessageSize: 4096, MessagesPerSecond: 50, MessageBurst: 50},
		Security: config.SecurityConfig{CORSOrigins: []string{"http://localhost:3000"}, RateLimitDisabled: true},
	}
	hub := ws.NewHub(ws.HubConfig{})
	router, err := api.NewRouter(api.NewHandler(hub, revocations, cfg), verifier, cfg, api.Collaborators{})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	server := httptest.NewServer(router.SetupChi())
	t.Cleanup(server.Close)
	return server.URL + "/api"
}

func TestRegistry(t *testing.T) {
	h := newHarness(t)

	if err := h.run("help"); err != nil {
		t.Fatalf("help error = %v", err)
	}
	for _, name := range []string{"call", "config", "listen", "token"} {
		if !strings.Contains(h.stdout.String(), name) {
			t.Errorf("help output missing %q", name)
		}
	}

	if err := h.run(); err == nil {
		t.Error("expected error with no command")
	}
	if err := h.run("frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unknown command error = %v", err)
	}
	if err := h.run("token", "-help"); err != nil {
		t.Errorf("token -help error = %v, want nil", err)
	}
	if err := h.run("token", "-bogus"); !errors.Is(err, errUsage) {
		t.Errorf("token -bogus error = %v, want errUsage", err)
	}
}

func TestConfigCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h := newHarness(t)
		if err := h.run("config"); err != nil {
			t.Fatalf("config error = %v", err)
		}
		out := h.stdout.String()
		if !strings.Contains(out, "configuration ok") {
			t.Errorf("output = %q", out)
		}
		if strings.Contains(out, testAPIKey) {
			t.Error("api key printed unmasked")
		}
		if !strings.Contains(out, client.DefaultAPIURL) {
			t.Errorf("default api url missing from %q", out)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t)
		t.Setenv("FIREBASE_ENABLED", "false")
		if err := h.run("config"); !errors.Is(err, client.ErrConfigurationInvalid) {
			t.Errorf("config error = %v, want ErrConfigurationInvalid", err)
		}
	})
}

func TestTokenCommand(t *testing.T) {
	h := newHarness(t)

	if err := h.run("token"); !errors.Is(err, client.ErrNotSignedIn) {
		t.Fatalf("token without email error = %v, want ErrNotSignedIn", err)
	}

	if err := h.run("token", "-email", testEmail, "-password", "wrong"); err == nil {
		t.Fatal("expected sign-in failure with a bad password")
	}

	if err := h.run("token", "-email", testEmail, "-password", testPassword); err != nil {
		t.Fatalf("token error = %v", err)
	}
	token := strings.TrimSpace(h.stdout.String())

	verifier, err := h.provider.NewVerifier(nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	principal, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("printed token does not verify: %v", err)
	}
	if principal.ID() != "user-42" {
		t.Errorf("principal = %q, want user-42", principal.ID())
	}
}

func TestTokenCommandUsesEnvironmentCredentials(t *testing.T) {
	h := newHarness(t)
	h.env.Getenv = func(key string) string {
		switch key {
		case "PULSE_EMAIL":
			return testEmail
		case "PULSE_PASSWORD":
			return testPassword
		}
		return ""
	}

	if err := h.run("token"); err != nil {
		t.Fatalf("token error = %v", err)
	}
	if h.stdout.Len() == 0 {
		t.Error("no token printed")
	}
}

func TestCallCommand(t *testing.T) {
	h := newHarness(t)
	t.Setenv("PULSE_API_URL", newAPIServer(t, h.provider))

	t.Run("anonymous protected call is rejected", func(t *testing.T) {
		err := h.run("call", "/reports")
		var httpErr *client.HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("error = %v, want *client.HTTPError", err)
		}
		if httpErr.Status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", httpErr.Status)
		}
	})

	t.Run("signed-in notification is accepted", func(t *testing.T) {
		h.stdout.Reset()
		err := h.run("call",
			"-email", testEmail, "-password", testPassword,
			"-method", "post",
			"-data", `{"title":"Audit due","message":"Site 4 audit is due"}`,
			"/notifications")
		if err != nil {
			t.Fatalf("call error = %v", err)
		}
		if !strings.Contains(h.stdout.String(), "user-42") {
			t.Errorf("response %q does not name the recipient", h.stdout.String())
		}
	})

	t.Run("invalid body is rejected before sending", func(t *testing.T) {
		if err := h.run("call", "-data", "{nope", "/notifications"); err == nil || !strings.Contains(err.Error(), "not valid JSON") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("path is required", func(t *testing.T) {
		if err := h.run("call"); !errors.Is(err, errUsage) {
			t.Errorf("error = %v, want errUsage", err)
		}
	})
}

func TestListenRequiresCredentials(t *testing.T) {
	h := newHarness(t)
	if err := h.run("listen"); !errors.Is(err, client.ErrNotSignedIn) {
		t.Errorf("listen error = %v, want ErrNotSignedIn", err)
	}
}
