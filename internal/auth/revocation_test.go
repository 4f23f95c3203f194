// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"context"
	"testing"
	"time"
)

func TestSessionRevocations(t *testing.T) {
	r := NewSessionRevocations()

	if _, ok := r.ValidSince(context.Background(), "user-42"); ok {
		t.Fatal("expected no revocation for unknown user")
	}

	later := time.Date(2026, 3, 1, 12, 0, 30, 500, time.UTC)
	earlier := later.Add(-time.Hour)

	r.RevokeAll("user-42", later)
	r.RevokeAll("user-42", earlier)

	got, ok := r.ValidSince(context.Background(), "user-42")
	if !ok {
		t.Fatal("expected revocation to be recorded")
	}
	if want := later.Truncate(time.Second); !got.Equal(want) {
		t.Errorf("ValidSince() = %v, want %v (an older revocation must not move it back)", got, want)
	}
}
