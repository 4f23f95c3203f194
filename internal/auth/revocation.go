// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationChecker reports the time before which a user's sessions are revoked.
type RevocationChecker interface {
	ValidSince(ctx context.Context, uid string) (time.Time, bool)
}

// SessionRevocations is an in-memory RevocationChecker. Like channel
// membership it does not survive a restart; tokens expire within an hour,
// which bounds the exposure after a restart.
type SessionRevocations struct {
	mu    sync.RWMutex
	since map[string]time.Time
}

// NewSessionRevocations creates an empty revocation set.
func NewSessionRevocations() *SessionRevocations {
	return &SessionRevocations{since: make(map[string]time.Time)}
}

// RevokeAll revokes every session of uid that authenticated before at.
// Timestamps are truncated to whole seconds, matching auth_time precision.
func (s *SessionRevocations) RevokeAll(uid string, at time.Time) {
	at = at.Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.since[uid]; ok && prev.After(at) {
		return
	}
	s.since[uid] = at
}

// ValidSince implements RevocationChecker.
func (s *SessionRevocations) ValidSince(_ context.Context, uid string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.since[uid]
	return t, ok
}
