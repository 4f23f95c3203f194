// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/config"
	"github.com/tomtom215/qualitypulse/internal/logging"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const (
	testProjectID = "pulse-test"
	testOrigin    = "http://localhost:3000"
)

func testConfig() *config.Config {
	return &config.Config{
		Realtime: config.RealtimeConfig{
			Path:              "/ws",
			SendBuffer:        16,
			MaxMessageSize:    4096,
			MessagesPerSecond: 50,
			MessageBurst:      50,
			AllowQueryToken:   true,
		},
		Security: config.SecurityConfig{
			CORSOrigins:       []string{testOrigin},
			RateLimitReqs:     1000,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: true,
		},
	}
}

// recordingHandler stands in for a collaborator and remembers what it saw.
type recordingHandler struct {
	mu         sync.Mutex
	calls      int
	principals []string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls++
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		h.principals = append(h.principals, p.ID())
	} else {
		h.principals = append(h.principals, "")
	}
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *recordingHandler) snapshot() (int, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls, append([]string(nil), h.principals...)
}

type testEnv struct {
	server      *httptest.Server
	provider    *auth.MockIdentityProvider
	hub         *ws.Hub
	revocations *auth.SessionRevocations
	router      *Router
}

// newTestEnv serves the full router against a mock identity provider.
// mutate may adjust the config before the router is built.
func newTestEnv(t *testing.T, collaborators Collaborators, mutate func(*config.Config)) *testEnv {
	t.Helper()

	provider, err := auth.NewMockIdentityProvider(testProjectID)
	if err != nil {
		t.Fatalf("NewMockIdentityProvider() error = %v", err)
	}
	t.Cleanup(provider.Close)

	revocations := auth.NewSessionRevocations()
	verifier, err := provider.NewVerifier(revocations)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	hub := ws.NewHub(ws.HubConfig{ChannelPrefix: cfg.Realtime.ChannelPrefix})
	router, err := NewRouter(NewHandler(hub, revocations, cfg), verifier, cfg, collaborators)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	server := httptest.NewServer(router.SetupChi())
	t.Cleanup(server.Close)

	return &testEnv{
		server:      server,
		provider:    provider,
		hub:         hub,
		revocations: revocations,
		router:      router,
	}
}

func (e *testEnv) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := e.provider.ValidToken(subject)
	if err != nil {
		t.Fatalf("ValidToken() error = %v", err)
	}
	return token
}

// do sends a request with an optional bearer token and returns the status
// and body.
func (e *testEnv) do(t *testing.T, method, path, token, body string) (int, http.Header, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, resp.Header, string(data)
}

// dial opens a realtime connection authenticated through the query token.
func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?" + auth.QueryTokenParam + "=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {testOrigin}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// join sends a join frame and waits until the hub shows want members.
func (e *testEnv) join(t *testing.T, conn *websocket.Conn, userID string, want int) {
	t.Helper()
	frame, _ := json.Marshal(map[string]string{"type": ws.MessageTypeJoin, "data": userID})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write join: %v", err)
	}
	waitFor(t, "join "+userID, func() bool { return e.hub.ChannelSize(userID) == want })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readWire(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func decodeEnvelope(t *testing.T, body string) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
	return resp
}
