// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

// QueryTokenParam is the query parameter read when a group allows query tokens.
const QueryTokenParam = "access_token"

// unmatchedGroup is the policy for paths outside every registered group.
var unmatchedGroup = RouteGroup{Name: "unmatched", Protection: Protected}

// Gate enforces route group protection in front of handlers.
type Gate struct {
	table    *RouteTable
	verifier TokenVerifier
}

// NewGate creates a gate over table and seals it.
func NewGate(table *RouteTable, verifier TokenVerifier) *Gate {
	table.Seal()
	return &Gate{table: table, verifier: verifier}
}

// Handler is chi-compatible middleware that resolves the request's route
// group and dispatches through it.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		group, ok := g.table.Match(r.URL.Path)
		if !ok {
			group = unmatchedGroup
		}
		g.Dispatch(w, r, group, next)
	})
}

// Dispatch applies group's protection to a single request. Public requests
// reach next untouched. Protected requests reach next only with a verified
// principal in the context; otherwise a generic 401 is written.
func (g *Gate) Dispatch(w http.ResponseWriter, r *http.Request, group RouteGroup, next http.Handler) {
	if group.Protection == Public {
		GateDecisions.WithLabelValues(group.Name, "public").Inc()
		next.ServeHTTP(w, r)
		return
	}

	credential, ok := extractCredential(r, group.AllowQueryToken)
	if !ok {
		GateDecisions.WithLabelValues(group.Name, "missing_credential").Inc()
		logging.Ctx(r.Context()).Debug().
			Str("group", group.Name).
			Str("path", r.URL.Path).
			Msg("Rejected request without credential")
		writeUnauthenticated(w)
		return
	}

	principal, err := g.verifier.Verify(r.Context(), credential)
	if err != nil {
		GateDecisions.WithLabelValues(group.Name, "rejected").Inc()
		event := logging.Ctx(r.Context()).Info()
		if !errors.Is(err, ErrMalformedCredential) && !errors.Is(err, ErrInvalidCredential) {
			event = logging.Ctx(r.Context()).Warn()
		}
		event.Err(err).
			Str("group", group.Name).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Msg("Rejected request with unverifiable credential")
		writeUnauthenticated(w)
		return
	}

	GateDecisions.WithLabelValues(group.Name, "authenticated").Inc()
	next.ServeHTTP(w, r.WithContext(contextWithPrincipal(r.Context(), principal)))
}

// extractCredential returns the bearer credential from the Authorization
// header, or from the query string when allowQuery is set.
func extractCredential(r *http.Request, allowQuery bool) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		token := strings.TrimSpace(parts[1])
		return token, token != ""
	}

	if allowQuery {
		if token := r.URL.Query().Get(QueryTokenParam); token != "" {
			return token, true
		}
	}
	return "", false
}

type unauthenticatedBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeUnauthenticated writes the single 401 response used for every gate
// rejection, so callers cannot tell a missing credential from a bad one.
func writeUnauthenticated(w http.ResponseWriter) {
	var body unauthenticatedBody
	body.Error.Code = "UNAUTHORIZED"
	body.Error.Message = ErrUnauthenticated.Error()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="qualitypulse"`)
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode unauthenticated response")
	}
}
