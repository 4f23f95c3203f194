// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/config"
	"github.com/tomtom215/qualitypulse/internal/middleware"
)

// Route group names.
const (
	GroupHealth        = "health"
	GroupGovernance    = "governance"
	GroupSites         = "sites"
	GroupReports       = "reports"
	GroupNotifications = "notifications"
	GroupAnalytics     = "analytics"
	GroupAudit         = "audit"
	GroupSessions      = "sessions"
	GroupRealtime      = "realtime"
)

// NewRouteTable builds the route plan. Public groups are registered first;
// the table refuses any other order.
func NewRouteTable(realtimePath string, allowQueryToken bool) (*auth.RouteTable, error) {
	groups := []auth.RouteGroup{
		{Name: GroupHealth, Patterns: []string{"/", "/health"}, Protection: auth.Public},
		{Name: GroupGovernance, Patterns: []string{"/api/governance/*"}, Protection: auth.Public},

		{Name: GroupSites, Patterns: []string{"/api/sites/*"}, Protection: auth.Protected},
		{Name: GroupReports, Patterns: []string{"/api/reports/*"}, Protection: auth.Protected},
		{Name: GroupNotifications, Patterns: []string{"/api/notifications/*"}, Protection: auth.Protected},
		{Name: GroupAnalytics, Patterns: []string{"/api/analytics/*"}, Protection: auth.Protected},
		{Name: GroupAudit, Patterns: []string{"/api/audit/*"}, Protection: auth.Protected},
		{Name: GroupSessions, Patterns: []string{"/api/sessions/*"}, Protection: auth.Protected},
		{
			Name:            GroupRealtime,
			Patterns:        []string{realtimePath},
			Protection:      auth.Protected,
			AllowQueryToken: allowQueryToken,
		},
	}

	table := auth.NewRouteTable()
	for _, g := range groups {
		if err := table.Register(g); err != nil {
			return nil, fmt.Errorf("route plan: %w", err)
		}
	}
	return table, nil
}

// Collaborators are the business route handlers served behind the gate.
// Each is mounted at its group prefix and receives the full request path;
// a chi sub-router sees the path relative to the mount point. Protected
// collaborators find the caller with auth.PrincipalFromContext. A nil
// handler answers 501.
type Collaborators struct {
	Governance http.Handler
	Sites      http.Handler
	Reports    http.Handler
	Analytics  http.Handler
	Audit      http.Handler
}

// Router wires the route plan, the gate and the handlers into one Chi tree.
type Router struct {
	handler       *Handler
	table         *auth.RouteTable
	gate          *auth.Gate
	chiMiddleware *ChiMiddleware
	collaborators Collaborators
	realtimePath  string
}

// NewRouter builds the route plan from cfg and seals it behind a gate that
// verifies credentials with verifier.
func NewRouter(handler *Handler, verifier auth.TokenVerifier, cfg *config.Config, collaborators Collaborators) (*Router, error) {
	table, err := NewRouteTable(cfg.Realtime.Path, cfg.Realtime.AllowQueryToken)
	if err != nil {
		return nil, err
	}

	// Rate limit hits are counted per route group.
	groupLabel := func(r *http.Request) string {
		if g, ok := table.Match(r.URL.Path); ok {
			return g.Name
		}
		return "unmatched"
	}

	return &Router{
		handler:       handler,
		table:         table,
		gate:          auth.NewGate(table, verifier),
		chiMiddleware: NewChiMiddlewareFromConfig(cfg.Security, groupLabel),
		collaborators: collaborators,
		realtimePath:  cfg.Realtime.Path,
	}, nil
}

// RouteTable returns the sealed route plan.
func (router *Router) RouteTable() *auth.RouteTable {
	return router.table
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to every request in order. The gate runs last so that
	// preflights, rate limiting and metrics see unauthenticated traffic too.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(APISecurityHeaders())
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.RateLimit())
	r.Use(router.gate.Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).MethodNotAllowed()
	})

	// Public
	r.Get("/", router.handler.Root)
	r.Get("/health", router.handler.Health)
	router.mount(r, "/api/governance", GroupGovernance, router.collaborators.Governance)

	// Protected
	router.mount(r, "/api/sites", GroupSites, router.collaborators.Sites)
	router.mount(r, "/api/reports", GroupReports, router.collaborators.Reports)
	router.mount(r, "/api/analytics", GroupAnalytics, router.collaborators.Analytics)
	router.mount(r, "/api/audit", GroupAudit, router.collaborators.Audit)

	r.Post("/api/notifications", router.handler.CreateNotification)
	r.Delete("/api/sessions", router.handler.RevokeSessions)
	r.Get(router.realtimePath, router.handler.WebSocket)

	return r
}

func (router *Router) mount(r chi.Router, prefix, group string, h http.Handler) {
	if h == nil {
		h = notImplemented(group)
	}
	r.Mount(prefix, h)
}

// notImplemented answers for a route group with no collaborator plugged in.
func notImplemented(group string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotImplemented(fmt.Sprintf("The %s service is not configured", group))
	})
}
