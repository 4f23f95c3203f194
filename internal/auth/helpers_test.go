// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"io"
	"testing"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const testProjectID = "pulse-test"

func newTestProvider(t *testing.T) *MockIdentityProvider {
	t.Helper()
	m, err := NewMockIdentityProvider(testProjectID)
	if err != nil {
		t.Fatalf("NewMockIdentityProvider() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func newTestVerifier(t *testing.T, m *MockIdentityProvider, revocations RevocationChecker) *IDTokenVerifier {
	t.Helper()
	v, err := m.NewVerifier(revocations)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func mustToken(t *testing.T, m *MockIdentityProvider, opts TokenOptions) string {
	t.Helper()
	token, err := m.IssueToken(opts)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}
