// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package auth

import (
	"fmt"
	"path"
	"strings"
	"sync"
)

// Protection is a route group's authentication policy.
// The zero value is invalid so every registration must declare one.
type Protection int

const (
	protectionUndeclared Protection = iota
	Public
	Protected
)

func (p Protection) String() string {
	switch p {
	case Public:
		return "public"
	case Protected:
		return "protected"
	default:
		return "undeclared"
	}
}

// RouteGroup is a named set of path patterns sharing one protection policy.
//
// A pattern is either an exact path ("/health") or a prefix ending in "/*"
// ("/api/reports/*"), which matches the prefix itself and everything below it.
type RouteGroup struct {
	Name       string
	Patterns   []string
	Protection Protection

	// AllowQueryToken lets protected requests present the credential as the
	// access_token query parameter instead of the Authorization header.
	AllowQueryToken bool
}

// RouteTable holds route groups in registration order. Lookups return the
// first matching group.
//
// Registration enforces the ordering invariants:
//   - every group declares its protection
//   - all public groups precede all protected groups
//   - no pattern is covered by a pattern registered before it, so no later
//     rule is silently dead and no protected rule can hide inside a public one
type RouteTable struct {
	mu     sync.RWMutex
	groups []RouteGroup
	sealed bool
}

// NewRouteTable creates an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Register appends group after validating it against every earlier group.
func (t *RouteTable) Register(group RouteGroup) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRouteTableSealed, group.Name)
	}
	if group.Protection != Public && group.Protection != Protected {
		return fmt.Errorf("%w: %q", ErrProtectionUndeclared, group.Name)
	}
	if len(group.Patterns) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyRouteGroup, group.Name)
	}
	if group.Protection == Public {
		for _, earlier := range t.groups {
			if earlier.Protection == Protected {
				return fmt.Errorf("%w: %q registered after %q", ErrPublicAfterProtected, group.Name, earlier.Name)
			}
		}
	}

	for i, p := range group.Patterns {
		if err := validatePattern(p); err != nil {
			return fmt.Errorf("route group %q: %w", group.Name, err)
		}
		for _, earlier := range t.groups {
			for _, ep := range earlier.Patterns {
				if err := checkCovered(ep, p, earlier.Name, group.Name); err != nil {
					return err
				}
			}
		}
		for _, ep := range group.Patterns[:i] {
			if err := checkCovered(ep, p, group.Name, group.Name); err != nil {
				return err
			}
		}
	}

	group.Patterns = append([]string(nil), group.Patterns...)
	t.groups = append(t.groups, group)
	return nil
}

// MustRegister is Register for static route plans; it panics on error.
func (t *RouteTable) MustRegister(group RouteGroup) {
	if err := t.Register(group); err != nil {
		panic(err)
	}
}

// Seal freezes the table. Protection tags never change once requests flow.
func (t *RouteTable) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// Match returns the first group whose patterns match urlPath. Paths that are
// not in canonical form (dot segments, repeated slashes) match nothing so
// they fall to the protected default.
func (t *RouteTable) Match(urlPath string) (RouteGroup, bool) {
	if !isCanonical(urlPath) {
		return RouteGroup{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, g := range t.groups {
		for _, p := range g.Patterns {
			if patternMatches(p, urlPath) {
				return g, true
			}
		}
	}
	return RouteGroup{}, false
}

// Groups returns a copy of the registered groups in order.
func (t *RouteTable) Groups() []RouteGroup {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RouteGroup, len(t.groups))
	copy(out, t.groups)
	return out
}

// Lookup returns the group registered under name.
func (t *RouteTable) Lookup(name string) (RouteGroup, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, g := range t.groups {
		if g.Name == name {
			return g, true
		}
	}
	return RouteGroup{}, false
}

func validatePattern(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidPattern, p)
	}
	base := strings.TrimSuffix(p, "/*")
	if strings.Contains(base, "*") {
		return fmt.Errorf("%w: %q may only end in '/*'", ErrInvalidPattern, p)
	}
	if base != "" && !isCanonical(base) {
		return fmt.Errorf("%w: %q is not a canonical path", ErrInvalidPattern, p)
	}
	return nil
}

// checkCovered rejects pattern p when an earlier pattern ep already matches
// every path p would match.
func checkCovered(ep, p, earlierGroup, group string) error {
	if ep == p {
		return fmt.Errorf("%w: %q in %q already registered by %q", ErrDuplicatePattern, p, group, earlierGroup)
	}
	if covers(ep, p) {
		return fmt.Errorf("%w: %q in %q is covered by %q in %q", ErrShadowedRouteGroup, p, group, ep, earlierGroup)
	}
	return nil
}

// covers reports whether every path matched by inner is matched by outer.
func covers(outer, inner string) bool {
	prefix, ok := strings.CutSuffix(outer, "/*")
	if !ok {
		return outer == inner
	}
	innerBase := strings.TrimSuffix(inner, "/*")
	return underPrefix(prefix, innerBase)
}

func patternMatches(pattern, urlPath string) bool {
	prefix, ok := strings.CutSuffix(pattern, "/*")
	if !ok {
		return pattern == urlPath
	}
	return underPrefix(prefix, urlPath)
}

// underPrefix reports whether p equals prefix or lies below it on a segment
// boundary. The empty prefix (from "/*") covers every path.
func underPrefix(prefix, p string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || p == prefix+"/" || strings.HasPrefix(p, prefix+"/")
}

func isCanonical(p string) bool {
	if p == "" || p == "/" {
		return p == "/"
	}
	return path.Clean(p) == strings.TrimSuffix(p, "/")
}
