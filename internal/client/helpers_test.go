// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/identity"
	"github.com/tomtom215/qualitypulse/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const (
	testAPIKey    = "AIzaSyTestKeyForQualityPulse0000000"
	testProjectID = "pulse-test"
	testEmail     = "inspector@example.com"
	testPassword  = "correct horse"
	testOrigin    = "http://localhost:3000"
)

func validConfig() Config {
	return Config{
		Enabled:           true,
		APIKey:            testAPIKey,
		AuthDomain:        "pulse-test.firebaseapp.com",
		ProjectID:         testProjectID,
		StorageBucket:     "pulse-test.appspot.com",
		MessagingSenderID: "123456789012",
		AppID:             "1:123456789012:web:abcdef0123456789",
		APIURL:            DefaultAPIURL,
	}
}

// countingSDK records calls into the identity SDK. initDelay widens the
// window in which concurrent first callers overlap.
type countingSDK struct {
	registry  *identity.Registry
	initErr   error
	initDelay time.Duration

	lookups atomic.Int32
	inits   atomic.Int32
}

func (s *countingSDK) App(name string) (*identity.App, error) {
	s.lookups.Add(1)
	return s.registry.App(name)
}

func (s *countingSDK) InitializeApp(cfg identity.AppConfig, name string) (*identity.App, error) {
	s.inits.Add(1)
	time.Sleep(s.initDelay)
	if s.initErr != nil {
		return nil, s.initErr
	}
	return s.registry.InitializeApp(cfg, name)
}

func (s *countingSDK) calls() int {
	return int(s.lookups.Load() + s.inits.Load())
}

type identityEnv struct {
	provider *auth.MockIdentityProvider
	server   *identity.MockServer
	sdk      *countingSDK
}

func newIdentityEnv(t *testing.T) *identityEnv {
	t.Helper()

	provider, err := auth.NewMockIdentityProvider(testProjectID)
	if err != nil {
		t.Fatalf("NewMockIdentityProvider() error = %v", err)
	}
	t.Cleanup(provider.Close)

	server := identity.NewMockServer(provider, testAPIKey)
	t.Cleanup(server.Close)
	server.AddUser("user-42", testEmail, testPassword)

	return &identityEnv{
		provider: provider,
		server:   server,
		sdk: &countingSDK{
			registry: identity.NewRegistry(identity.Options{Endpoints: server.Endpoints()}),
		},
	}
}

// staticSource is a TokenSource returning fixed values.
type staticSource struct {
	token string
	err   error
	calls atomic.Int32
}

func (s *staticSource) CurrentToken(context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

var errRefresh = errors.New("token refresh failed")
