// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"context"
	"fmt"
	"net/http"
)

// TokenSource supplies the credential for outbound requests. An empty token
// with a nil error means the request goes out unauthenticated.
type TokenSource interface {
	CurrentToken(ctx context.Context) (string, error)
}

// Transport stamps each outbound request with the current ID token.
//
//	httpClient := &http.Client{Transport: &client.Transport{Source: provider}}
type Transport struct {
	Source TokenSource

	// Base is the underlying transport; nil means http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper. When the token lookup fails the
// request is not sent and the lookup error is returned.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Source.CurrentToken(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("attach credential: %w", err)
	}

	if token == "" {
		return t.base().RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return t.base().RoundTrip(authed)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
