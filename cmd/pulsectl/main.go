// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

// Command pulsectl signs in to the identity provider and talks to the
// Quality Pulse API the way the web client does: bearer credentials on API
// calls and a joined realtime channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/qualitypulse/internal/identity"
	"github.com/tomtom215/qualitypulse/internal/logging"
)

func main() {
	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	logCfg.Level = "warn"
	if level := os.Getenv("LOG_LEVEL"); level != "" && logging.ValidLevel(level) {
		logCfg.Level = level
	}
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := &Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		SDK:    identity.Default(),
		Getenv: os.Getenv,
	}

	registry := NewCommandRegistry()
	registerCommands(registry)

	if err := registry.Execute(ctx, env, os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
