// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package supervisor

import (
	"context"
	"errors"
	"sync"
)

// errSimulatedFailure is what a MockService returns while its fail budget lasts.
var errSimulatedFailure = errors.New("simulated failure")

// MockService is a suture.Service standing in for the hub, relay or HTTP
// listeners in supervisor tests. By default it runs until its context is
// canceled.
type MockService struct {
	name string

	mu        sync.Mutex
	starts    int32
	stops     int32
	failsLeft int32
	err       error
}

// NewMockService creates a mock service that suture logs as name.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.mu.Lock()
	m.starts++
	var result error
	switch {
	case m.failsLeft > 0:
		m.failsLeft--
		result = errSimulatedFailure
	case m.err != nil:
		result = m.err
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.stops++
		m.mu.Unlock()
	}()

	if result != nil {
		return result
	}
	<-ctx.Done()
	return ctx.Err()
}

// SetError makes every following Serve call return err immediately.
func (m *MockService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetFailCount makes the next n Serve calls fail before the service runs
// normally, like a relay that cannot reach NATS for a while.
func (m *MockService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failsLeft = int32(n)
}

// StartCount returns how many times Serve was called.
func (m *MockService) StartCount() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// StopCount returns how many times Serve returned.
func (m *MockService) StopCount() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// String names the service in suture's event log.
func (m *MockService) String() string {
	return m.name
}
