// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/config"
	"github.com/tomtom215/qualitypulse/internal/metrics"
)

func TestNewRouteTablePlan(t *testing.T) {
	table, err := NewRouteTable("/ws", true)
	if err != nil {
		t.Fatalf("NewRouteTable() error = %v", err)
	}

	groups := table.Groups()
	seenProtected := false
	for _, g := range groups {
		if g.Protection == auth.Protected {
			seenProtected = true
		} else if seenProtected {
			t.Errorf("public group %q registered after a protected group", g.Name)
		}
	}

	tests := []struct {
		path       string
		wantGroup  string
		wantPublic bool
	}{
		{"/", GroupHealth, true},
		{"/health", GroupHealth, true},
		{"/api/governance", GroupGovernance, true},
		{"/api/governance/policies/7", GroupGovernance, true},
		{"/api/sites/12", GroupSites, false},
		{"/api/reports", GroupReports, false},
		{"/api/notifications", GroupNotifications, false},
		{"/api/analytics/summary", GroupAnalytics, false},
		{"/api/audit/log", GroupAudit, false},
		{"/api/sessions", GroupSessions, false},
		{"/ws", GroupRealtime, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			g, ok := table.Match(tt.path)
			if !ok {
				t.Fatalf("Match(%q) found no group", tt.path)
			}
			if g.Name != tt.wantGroup {
				t.Errorf("Match(%q) = %q, want %q", tt.path, g.Name, tt.wantGroup)
			}
			if (g.Protection == auth.Public) != tt.wantPublic {
				t.Errorf("Match(%q) protection = %v", tt.path, g.Protection)
			}
		})
	}

	realtime, _ := table.Lookup(GroupRealtime)
	if !realtime.AllowQueryToken {
		t.Error("realtime group should accept the query token")
	}
	sites, _ := table.Lookup(GroupSites)
	if sites.AllowQueryToken {
		t.Error("only the realtime group may accept the query token")
	}
}

func TestNewRouteTableRejectsRealtimeInsidePublicGroup(t *testing.T) {
	_, err := NewRouteTable("/api/governance/ws", true)
	if !errors.Is(err, auth.ErrShadowedRouteGroup) {
		t.Errorf("NewRouteTable() error = %v, want ErrShadowedRouteGroup", err)
	}
}

func TestRouterPublicEndpoints(t *testing.T) {
	env := newTestEnv(t, Collaborators{}, nil)

	status, _, body := env.do(t, http.MethodGet, "/", "garbage", "")
	if status != http.StatusOK {
		t.Fatalf("GET / status = %d", status)
	}
	if strings.TrimSpace(body) != `{"status":"ok","service":"Construction Quality Pulse API"}` {
		t.Errorf("GET / body = %s", body)
	}

	status, _, body = env.do(t, http.MethodGet, "/health", "abc.def.ghi", "")
	if status != http.StatusOK {
		t.Fatalf("GET /health status = %d", status)
	}
	var health HealthStatus
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
	if _, err := time.Parse(time.RFC3339, health.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", health.Timestamp, err)
	}
}

func TestRouterGovernanceIsPublicAndIgnoresCredentials(t *testing.T) {
	governance := &recordingHandler{}
	env := newTestEnv(t, Collaborators{Governance: governance}, nil)

	for _, token := range []string{"", "abc.def.ghi", env.token(t, "user-42")} {
		status, _, _ := env.do(t, http.MethodGet, "/api/governance/policies", token, "")
		if status != http.StatusOK {
			t.Errorf("token %q: status = %d, want 200", token, status)
		}
	}

	calls, principals := governance.snapshot()
	if calls != 3 {
		t.Fatalf("governance calls = %d, want 3", calls)
	}
	for i, p := range principals {
		if p != "" {
			t.Errorf("call %d saw principal %q on a public route", i, p)
		}
	}
}

func TestRouterProtectedGroupsRejectMissingAndInvalidIdentically(t *testing.T) {
	sites := &recordingHandler{}
	reports := &recordingHandler{}
	analytics := &recordingHandler{}
	audit := &recordingHandler{}
	env := newTestEnv(t, Collaborators{Sites: sites, Reports: reports, Analytics: analytics, Audit: audit}, nil)

	expired, err := env.provider.IssueToken(auth.TokenOptions{
		Subject:   "user-42",
		IssuedAt:  time.Now().Add(-3 * time.Hour),
		ExpiresAt: time.Now().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	paths := []string{"/api/sites/1", "/api/reports", "/api/analytics/summary", "/api/audit/log", "/api/notifications", "/api/sessions"}
	for _, path := range paths {
		_, _, missingBody := env.do(t, http.MethodGet, path, "", "")
		for _, token := range []string{"abc.def.ghi", "not-a-jwt", expired} {
			status, header, body := env.do(t, http.MethodGet, path, token, "")
			if status != http.StatusUnauthorized {
				t.Errorf("%s with %q: status = %d, want 401", path, token, status)
			}
			if body != missingBody {
				t.Errorf("%s: invalid credential body %q differs from missing credential body %q", path, body, missingBody)
			}
			if !strings.HasPrefix(header.Get("WWW-Authenticate"), "Bearer") {
				t.Errorf("%s: WWW-Authenticate = %q", path, header.Get("WWW-Authenticate"))
			}
		}
	}

	for name, h := range map[string]*recordingHandler{"sites": sites, "reports": reports, "analytics": analytics, "audit": audit} {
		if calls, _ := h.snapshot(); calls != 0 {
			t.Errorf("%s handler invoked %d times without a valid credential", name, calls)
		}
	}
}

func TestRouterValidCredentialReachesCollaboratorOnce(t *testing.T) {
	reports := &recordingHandler{}
	env := newTestEnv(t, Collaborators{Reports: reports}, nil)

	status, _, _ := env.do(t, http.MethodGet, "/api/reports/7", env.token(t, "user-42"), "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	calls, principals := reports.snapshot()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if principals[0] != "user-42" {
		t.Errorf("principal = %q, want user-42", principals[0])
	}
}

func TestRouterUnpluggedGroupAnswersNotImplementedAfterGate(t *testing.T) {
	env := newTestEnv(t, Collaborators{}, nil)

	if status, _, _ := env.do(t, http.MethodGet, "/api/sites", "", ""); status != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", status)
	}

	status, _, body := env.do(t, http.MethodGet, "/api/sites", env.token(t, "user-42"), "")
	if status != http.StatusNotImplemented {
		t.Fatalf("authenticated status = %d, want 501", status)
	}
	if resp := decodeEnvelope(t, body); resp.Error == nil || resp.Error.Code != ErrCodeNotImplemented {
		t.Errorf("body = %s", body)
	}

	if status, _, _ := env.do(t, http.MethodGet, "/api/governance/policies", "", ""); status != http.StatusNotImplemented {
		t.Errorf("unplugged public group status = %d, want 501", status)
	}
}

func TestRouterUnknownPathsFailClosed(t *testing.T) {
	env := newTestEnv(t, Collaborators{}, nil)

	for _, path := range []string{"/api/auth/login", "/admin", "/api/governance/../sites/1"} {
		if status, _, _ := env.do(t, http.MethodGet, path, "", ""); status != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, status)
		}
	}

	status, _, body := env.do(t, http.MethodGet, "/api/auth/login", env.token(t, "user-42"), "")
	if status != http.StatusNotFound {
		t.Errorf("authenticated unknown path status = %d, want 404", status)
	}
	if resp := decodeEnvelope(t, body); resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("body = %s", body)
	}
}

func TestRouterPreflightSkipsGate(t *testing.T) {
	env := newTestEnv(t, Collaborators{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/notifications", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatal("preflight was rejected by the gate")
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, testOrigin)
	}
}

func TestRouterRateLimit(t *testing.T) {
	env := newTestEnv(t, Collaborators{}, func(cfg *config.Config) {
		cfg.Security.RateLimitDisabled = false
		cfg.Security.RateLimitReqs = 2
		cfg.Security.RateLimitWindow = time.Minute
	})
	before := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues(GroupHealth))

	for i := 0; i < 2; i++ {
		if status, _, _ := env.do(t, http.MethodGet, "/health", "", ""); status != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, status)
		}
	}
	status, _, body := env.do(t, http.MethodGet, "/health", "", "")
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", status)
	}
	if resp := decodeEnvelope(t, body); resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("body = %s", body)
	}
	if got := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues(GroupHealth)) - before; got != 1 {
		t.Errorf("rate limit hits delta = %v, want 1", got)
	}
}

func TestRouterSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t, Collaborators{}, nil)

	_, header, _ := env.do(t, http.MethodGet, "/health", "", "")
	if header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", header.Get("X-Content-Type-Options"))
	}
	if header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
}
