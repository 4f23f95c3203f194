// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

// JWKSCacheConfig configures a JWKSCache.
type JWKSCacheConfig struct {
	URI        string
	HTTPClient *http.Client

	// TTL bounds how long a fetched key set is trusted. A shorter
	// Cache-Control max-age from the endpoint takes precedence.
	TTL time.Duration

	// MinRefreshInterval limits refetches triggered by unknown key ids.
	MinRefreshInterval time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// JWKSCache caches the identity provider's RSA signing keys.
// It is safe for concurrent use; concurrent refreshes collapse into one fetch.
type JWKSCache struct {
	uri        string
	httpClient *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	breaker    *gobreaker.CircuitBreaker[jwksResult]
	group      singleflight.Group
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	expires     time.Time
	lastAttempt time.Time
}

type jwksResult struct {
	keys   map[string]*rsa.PublicKey
	maxAge time.Duration
}

// NewJWKSCache creates a new JWKS cache. Zero config values get defaults:
// 10s HTTP timeout, 1h TTL, 30s minimum refresh interval, breaker opening
// after 5 consecutive failures for 30s.
func NewJWKSCache(cfg JWKSCacheConfig) *JWKSCache {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &JWKSCache{
		uri:        cfg.URI,
		httpClient: cfg.HTTPClient,
		ttl:        cfg.TTL,
		minRefresh: cfg.MinRefreshInterval,
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[jwksResult](gobreaker.Settings{
		Name:        "jwks",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			JWKSBreakerState.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Signing key endpoint circuit breaker state changed")
		},
	})

	return c
}

// GetKey returns the public key for kid, refreshing the cache when it is
// stale or when kid is unknown and the last fetch is older than the minimum
// refresh interval. A stale key is served if a refresh fails.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := c.now()

	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := now.Before(c.expires)
	recent := now.Sub(c.lastAttempt) < c.minRefresh
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if !ok && fresh && recent {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	if err := c.Refresh(ctx); err != nil {
		if ok {
			logging.Ctx(ctx).Warn().Err(err).Str("kid", kid).Msg("Signing key refresh failed, serving cached key")
			return key, nil
		}
		return nil, err
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Refresh fetches the key set now. Concurrent callers share one fetch.
func (c *JWKSCache) Refresh(ctx context.Context) error {
	// The shared fetch must not die with whichever request started it.
	fetchCtx := context.WithoutCancel(ctx)

	_, err, _ := c.group.Do("jwks", func() (interface{}, error) {
		c.mu.Lock()
		c.lastAttempt = c.now()
		c.mu.Unlock()

		res, err := c.breaker.Execute(func() (jwksResult, error) {
			return c.fetch(fetchCtx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				JWKSRefreshTotal.WithLabelValues("breaker_open").Inc()
			} else {
				JWKSRefreshTotal.WithLabelValues("error").Inc()
			}
			return nil, fmt.Errorf("refresh signing keys: %w", err)
		}

		JWKSRefreshTotal.WithLabelValues("success").Inc()
		c.store(res)
		return nil, nil
	})
	return err
}

func (c *JWKSCache) store(res jwksResult) {
	ttl := c.ttl
	if res.maxAge > 0 && res.maxAge < ttl {
		ttl = res.maxAge
	}

	c.mu.Lock()
	rotated := len(c.keys) > 0 && !sameKeyIDs(c.keys, res.keys)
	c.keys = res.keys
	c.expires = c.now().Add(ttl)
	c.mu.Unlock()

	JWKSKeys.Set(float64(len(res.keys)))
	if rotated {
		JWKSKeyRotations.Inc()
		logging.Info().Int("keys", len(res.keys)).Msg("Signing key rotation detected")
	}
}

func (c *JWKSCache) fetch(ctx context.Context) (jwksResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, http.NoBody)
	if err != nil {
		return jwksResult{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jwksResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return jwksResult{}, fmt.Errorf("JWKS fetch failed with status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return jwksResult{}, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := decodeRSAKey(k.N, k.E)
		if err != nil {
			logging.Warn().Err(err).Str("kid", k.Kid).Msg("Skipping undecodable signing key")
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return jwksResult{}, fmt.Errorf("JWKS at %s contains no usable RSA keys", c.uri)
	}

	return jwksResult{keys: keys, maxAge: parseMaxAge(resp.Header.Get("Cache-Control"))}, nil
}

// KeyCount returns the number of cached keys.
func (c *JWKSCache) KeyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// URI returns the JWKS endpoint URI.
func (c *JWKSCache) URI() string {
	return c.uri
}

func decodeRSAKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(n, "="))
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(e, "="))
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("unsupported exponent length %d", len(eBytes))
	}

	exp := 0
	for _, b := range eBytes {
		exp = exp<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: exp}, nil
}

// parseMaxAge extracts max-age from a Cache-Control header, or 0.
func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func sameKeyIDs(a, b map[string]*rsa.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	for kid := range a {
		if _, ok := b[kid]; !ok {
			return false
		}
	}
	return true
}
