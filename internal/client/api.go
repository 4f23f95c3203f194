// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/qualitypulse/internal/logging"
)

// maxResponseBody caps how much of a response APIClient reads.
const maxResponseBody = 4 << 20

// APIClient calls the quality pulse API through a Transport.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient returns a client for baseURL (normalized with
// NormalizeAPIURL) whose requests carry source's token.
func NewAPIClient(baseURL string, source TokenSource) *APIClient {
	return &APIClient{
		baseURL: NormalizeAPIURL(baseURL),
		httpClient: &http.Client{
			Transport: &Transport{Source: source},
			Timeout:   30 * time.Second,
		},
	}
}

// BaseURL returns the normalized API base URL.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Do sends method to path, relative to the base URL, with body encoded as
// JSON when non-nil, and returns the response body. Non-2xx responses are
// returned as *HTTPError.
func (c *APIClient) Do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	logging.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, newHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

func newHTTPError(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{Status: status, Body: body}
	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		httpErr.Code = envelope.Error.Code
		httpErr.Message = envelope.Error.Message
	}
	return httpErr
}
