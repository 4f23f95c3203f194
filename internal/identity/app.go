// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package identity

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultAppName is the name used when InitializeApp is given none.
const DefaultAppName = "[DEFAULT]"

// AppConfig is the web app credential set issued by the identity provider.
type AppConfig struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
}

// Endpoints are the base URLs of the identity REST APIs.
type Endpoints struct {
	IdentityToolkit string
	SecureToken     string
}

// DefaultEndpoints returns the production identity provider endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		IdentityToolkit: "https://identitytoolkit.googleapis.com/v1",
		SecureToken:     "https://securetoken.googleapis.com/v1",
	}
}

// Options configures a Registry. Zero values get defaults: production
// endpoints, 10s HTTP timeout, breaker opening after 5 consecutive failures
// for 30s.
type Options struct {
	HTTPClient      *http.Client
	Endpoints       Endpoints
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	defaults := DefaultEndpoints()
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.Endpoints.IdentityToolkit == "" {
		o.Endpoints.IdentityToolkit = defaults.IdentityToolkit
	}
	if o.Endpoints.SecureToken == "" {
		o.Endpoints.SecureToken = defaults.SecureToken
	}
	o.Endpoints.IdentityToolkit = strings.TrimRight(o.Endpoints.IdentityToolkit, "/")
	o.Endpoints.SecureToken = strings.TrimRight(o.Endpoints.SecureToken, "/")
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	return o
}

// App is an initialized identity app instance.
type App struct {
	name   string
	config AppConfig
	auth   *Auth
}

// Name returns the app's registry name.
func (a *App) Name() string { return a.name }

// Config returns the credential set the app was initialized with.
func (a *App) Config() AppConfig { return a.config }

// Auth returns the app's authentication session.
func (a *App) Auth() *Auth { return a.auth }

// Registry holds the initialized apps of a process. It is safe for
// concurrent use.
type Registry struct {
	opts Options

	mu   sync.RWMutex
	apps map[string]*App
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts: opts.withDefaults(),
		apps: make(map[string]*App),
	}
}

var defaultRegistry = NewRegistry(Options{})

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// InitializeApp creates and registers an app. An empty name means
// DefaultAppName. Registering a name twice fails with ErrDuplicateApp.
func (r *Registry) InitializeApp(cfg AppConfig, name string) (*App, error) {
	if name == "" {
		name = DefaultAppName
	}
	if cfg.APIKey == "" || cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: api key and project id are required", ErrInvalidAppConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.apps[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateApp, name)
	}

	app := &App{
		name:   name,
		config: cfg,
		auth:   newAuth(name, cfg.APIKey, r.opts),
	}
	r.apps[name] = app
	return app, nil
}

// App returns the app registered under name.
func (r *Registry) App(name string) (*App, error) {
	if name == "" {
		name = DefaultAppName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.apps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoApp, name)
	}
	return app, nil
}

// Apps returns all registered apps ordered by name.
func (r *Registry) Apps() []*App {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apps := make([]*App, 0, len(r.apps))
	for _, app := range r.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].name < apps[j].name })
	return apps
}

// DeleteApp signs the app out and removes it from the registry.
func (r *Registry) DeleteApp(name string) error {
	if name == "" {
		name = DefaultAppName
	}
	r.mu.Lock()
	app, ok := r.apps[name]
	delete(r.apps, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoApp, name)
	}
	app.auth.SignOut()
	return nil
}
