// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/qualitypulse/internal/identity"
	"github.com/tomtom215/qualitypulse/internal/logging"
)

// State is the lifecycle state of a TokenProvider.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SDK is the part of the identity SDK the provider needs.
// *identity.Registry satisfies it.
type SDK interface {
	App(name string) (*identity.App, error)
	InitializeApp(cfg identity.AppConfig, name string) (*identity.App, error)
}

// TokenProvider owns the process-wide identity session. The SDK is
// initialized on first use; concurrent first callers share one attempt and
// its result, success or failure, is kept for the life of the provider.
type TokenProvider struct {
	cfg   Config
	sdk   SDK
	group singleflight.Group

	mu    sync.RWMutex
	state State
	auth  *identity.Auth
	err   error
}

// NewTokenProvider creates an uninitialized provider. Nothing is validated
// or called until the first Init, CurrentToken or SignIn.
func NewTokenProvider(cfg Config, sdk SDK) *TokenProvider {
	return &TokenProvider{cfg: cfg, sdk: sdk}
}

// State returns the current lifecycle state.
func (p *TokenProvider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Init initializes the session if no attempt has been made yet and returns
// the cached outcome.
func (p *TokenProvider) Init() error {
	p.mu.RLock()
	state, err := p.state, p.err
	p.mu.RUnlock()
	if state == StateReady || state == StateFailed {
		return err
	}

	_, _, _ = p.group.Do("init", func() (interface{}, error) {
		p.mu.Lock()
		if p.state != StateUninitialized {
			p.mu.Unlock()
			return nil, nil
		}
		p.state = StateInitializing
		p.mu.Unlock()

		auth, err := p.initialize()

		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.state, p.err = StateFailed, err
			return nil, nil
		}
		p.state, p.auth = StateReady, auth
		return nil, nil
	})

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

func (p *TokenProvider) initialize() (*identity.Auth, error) {
	logging.Info().
		Bool("enabled", p.cfg.Enabled).
		Str("api_key", logging.Mask(p.cfg.APIKey)).
		Str("auth_domain", orUnset(p.cfg.AuthDomain)).
		Str("project_id", orUnset(p.cfg.ProjectID)).
		Str("storage_bucket", orUnset(p.cfg.StorageBucket)).
		Str("messaging_sender_id", orUnset(p.cfg.MessagingSenderID)).
		Str("app_id", logging.Mask(p.cfg.AppID)).
		Msg("Initializing identity session")

	if err := p.cfg.Validate(); err != nil {
		logging.Error().Err(err).Msg("Identity configuration rejected")
		return nil, err
	}

	app, err := p.sdk.App(identity.DefaultAppName)
	if err == nil {
		logging.Info().Str("app", app.Name()).Msg("Reusing existing identity app")
		return app.Auth(), nil
	}

	app, err = p.sdk.InitializeApp(p.cfg.AppConfig(), identity.DefaultAppName)
	if errors.Is(err, identity.ErrDuplicateApp) {
		// Registered by someone else since the lookup.
		app, err = p.sdk.App(identity.DefaultAppName)
	}
	if err != nil {
		logging.Error().Err(err).Msg("Identity initialization failed")
		return nil, fmt.Errorf("%w: %v", ErrInitializationFailed, err)
	}

	logging.Info().Str("app", app.Name()).Msg("Identity session ready")
	return app.Auth(), nil
}

// CurrentToken returns a valid ID token for the signed-in user, refreshing
// it when it is close to expiry. It returns "" and a nil error when the
// session failed to initialize or nobody is signed in; a refresh failure is
// returned as an error.
func (p *TokenProvider) CurrentToken(ctx context.Context) (string, error) {
	if p.Init() != nil {
		return "", nil
	}
	auth := p.session()

	token, err := auth.IDToken(ctx, false)
	if errors.Is(err, identity.ErrNoCurrentUser) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current token: %w", err)
	}
	return token, nil
}

// SignIn signs in with email and password.
func (p *TokenProvider) SignIn(ctx context.Context, email, password string) error {
	if err := p.Init(); err != nil {
		return err
	}
	if _, err := p.session().SignInWithPassword(ctx, email, password); err != nil {
		return err
	}
	return nil
}

// SignOut signs the current user out. It is a no-op before a successful Init.
func (p *TokenProvider) SignOut() {
	if auth := p.session(); auth != nil {
		auth.SignOut()
	}
}

// UserID returns the signed-in user's id, or "".
func (p *TokenProvider) UserID() string {
	auth := p.session()
	if auth == nil {
		return ""
	}
	if user := auth.CurrentUser(); user != nil {
		return user.UID
	}
	return ""
}

func (p *TokenProvider) session() *identity.Auth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.auth
}

func orUnset(v string) string {
	if v == "" {
		return "<unset>"
	}
	return v
}
