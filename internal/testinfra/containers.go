// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

//go:build integration

package testinfra

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

var (
	dockerOnce      sync.Once
	dockerAvailable bool
)

// SkipIfNoDocker skips the test when no Docker daemon answers. The probe
// runs once per test binary.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	dockerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dockerAvailable = exec.CommandContext(ctx, "docker", "info").Run() == nil
	})
	if !dockerAvailable {
		t.Skip("Skipping test: Docker not available")
	}
}

// ContainerLogger routes testcontainers lifecycle output to t.Logf.
type ContainerLogger struct {
	t *testing.T
}

// NewContainerLogger creates a logger bound to t.
func NewContainerLogger(t *testing.T) *ContainerLogger {
	return &ContainerLogger{t: t}
}

// Printf implements testcontainers.Logging.
func (l *ContainerLogger) Printf(format string, v ...interface{}) {
	l.t.Helper()
	l.t.Logf(format, v...)
}

// CleanupContainer terminates container, logging instead of failing on error.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()

	if container == nil {
		return
	}
	if err := container.Terminate(ctx); err != nil {
		t.Logf("Warning: failed to terminate container: %v", err)
	}
}

// StartNATS skips without Docker, otherwise starts a nats-server container
// that is terminated when the test ends.
func StartNATS(t *testing.T, opts ...NATSOption) *NATSContainer {
	t.Helper()
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	opts = append([]NATSOption{WithLogger(NewContainerLogger(t))}, opts...)
	natsC, err := NewNATSContainer(ctx, opts...)
	if err != nil {
		t.Fatalf("NewNATSContainer() error = %v", err)
	}
	t.Cleanup(func() {
		CleanupContainer(t, context.Background(), natsC)
	})
	return natsC
}

// Running reports whether the container is in the running state.
func (c *NATSContainer) Running(ctx context.Context) (bool, error) {
	state, err := c.State(ctx)
	if err != nil {
		return false, err
	}
	return state.Running, nil
}
