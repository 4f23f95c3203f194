// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/qualitypulse/internal/api"
	"github.com/tomtom215/qualitypulse/internal/auth"
	"github.com/tomtom215/qualitypulse/internal/config"
	"github.com/tomtom215/qualitypulse/internal/logging"
	"github.com/tomtom215/qualitypulse/internal/metrics"
	"github.com/tomtom215/qualitypulse/internal/supervisor"
	"github.com/tomtom215/qualitypulse/internal/supervisor/services"
	ws "github.com/tomtom215/qualitypulse/internal/websocket"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging is not configured yet; the default JSON logger is fine here.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	start := time.Now()
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting Quality Pulse realtime server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	warnInsecureSettings(cfg)

	// === IDENTITY ===

	verifier, revocations, err := initIdentity(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token verification")
	}

	// === REALTIME ===

	hub := ws.NewHub(ws.HubConfig{ChannelPrefix: cfg.Realtime.ChannelPrefix})

	relay, embedded, err := initRelay(cfg, hub)
	if err != nil {
		// Local delivery still works without the relay.
		logging.Error().Err(err).Msg("Realtime relay unavailable, continuing with local delivery only")
	}

	// === HTTP ===

	handler := api.NewHandler(hub, revocations, cfg)
	router, err := api.NewRouter(handler, verifier, cfg, api.Collaborators{})
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid route plan")
	}
	for _, g := range router.RouteTable().Groups() {
		logging.Debug().
			Str("group", g.Name).
			Str("protection", g.Protection.String()).
			Strs("patterns", g.Patterns).
			Msg("Route group registered")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Messaging layer services
	tree.AddMessagingService(services.NewRealtimeHubService(hub))
	if relay != nil {
		tree.AddMessagingService(services.NewRelayService(relay))
		logging.Info().Str("origin", relay.Origin()).Msg("Realtime relay added to supervisor tree")
	}

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService("http-server", server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	if cfg.Server.MetricsAddr != "" {
		tree.AddAPIService(services.NewHTTPServerService("metrics-server", newMetricsServer(cfg.Server.MetricsAddr, start), cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Server.MetricsAddr).Msg("Metrics server service added")
	}

	// === START SUPERVISOR TREE ===

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	stop()

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if relay != nil {
		if err := relay.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close realtime relay")
		}
	}
	if embedded != nil {
		embedded.Shutdown()
	}

	logging.Info().Dur("uptime", time.Since(start)).Msg("Application stopped gracefully")
}

// initIdentity builds the token verifier. A failed key warm-up is not fatal:
// the cache fetches on first use and the breaker protects the provider.
func initIdentity(ctx context.Context, cfg *config.Config) (*auth.IDTokenVerifier, *auth.SessionRevocations, error) {
	httpClient := &http.Client{Timeout: cfg.Identity.HTTPTimeout}

	jwksURL := cfg.Identity.JWKSURL
	if cfg.Identity.Discovery {
		discovered, err := auth.DiscoverJWKSURL(ctx, cfg.Identity.Issuer(), httpClient)
		if err != nil {
			return nil, nil, err
		}
		jwksURL = discovered
	}

	keys := auth.NewJWKSCache(auth.JWKSCacheConfig{
		URI:                jwksURL,
		HTTPClient:         httpClient,
		TTL:                cfg.Identity.JWKSCacheTTL,
		MinRefreshInterval: cfg.Identity.MinRefreshInterval,
		BreakerFailures:    cfg.Identity.BreakerFailures,
		BreakerTimeout:     cfg.Identity.BreakerTimeout,
	})

	warmCtx, cancel := context.WithTimeout(ctx, cfg.Identity.HTTPTimeout)
	defer cancel()
	if err := keys.Refresh(warmCtx); err != nil {
		logging.Warn().Err(err).Str("jwks_url", jwksURL).Msg("Signing key warm-up failed, keys will be fetched on first request")
	} else {
		logging.Info().Int("keys", keys.KeyCount()).Str("jwks_url", jwksURL).Msg("Signing keys loaded")
	}

	revocations := auth.NewSessionRevocations()
	verifier, err := auth.NewIDTokenVerifier(keys, auth.VerifierConfig{
		ProjectID:   cfg.Identity.ProjectID,
		Issuer:      cfg.Identity.Issuer(),
		ClockSkew:   cfg.Identity.ClockSkew,
		Revocations: revocations,
	})
	if err != nil {
		return nil, nil, err
	}

	logging.Info().
		Str("project_id", cfg.Identity.ProjectID).
		Str("issuer", cfg.Identity.Issuer()).
		Msg("Token verifier initialized")
	return verifier, revocations, nil
}

// initRelay starts the optional cross-instance relay, with an embedded NATS
// server when configured. Returns nils when NATS is disabled.
func initRelay(cfg *config.Config, hub *ws.Hub) (*ws.Relay, *ws.EmbeddedServer, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("Realtime relay disabled (NATS_ENABLED=false)")
		return nil, nil, nil
	}

	url := cfg.NATS.URL
	var embedded *ws.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		srv, err := ws.StartEmbeddedServer(cfg.NATS.EmbeddedHost, cfg.NATS.EmbeddedPort)
		if err != nil {
			return nil, nil, err
		}
		embedded = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	relay, err := ws.NewRelay(hub, ws.RelayConfig{
		URL:           url,
		Topic:         cfg.NATS.Topic,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, watermill.NewSlogLogger(logging.NewSlogLogger()))
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, nil, err
	}
	return relay, embedded, nil
}

// newMetricsServer serves the Prometheus registry on its own listener so the
// route plan stays free of unauthenticated operational endpoints.
func newMetricsServer(addr string, start time.Time) *http.Server {
	mux := http.NewServeMux()
	promHandler := promhttp.Handler()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordUptime(start)
		promHandler.ServeHTTP(w, r)
	}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func warnInsecureSettings(cfg *config.Config) {
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); restrict it in production")
			break
		}
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is disabled (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.Realtime.AllowQueryToken {
		logging.Info().Msg("Realtime upgrades accept access_token query parameter; ensure access logs redact query strings")
	}
}
