// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	contentTypeJSON = "application/json"
)

// UserAgent is sent with every request. Overridden by the CLI at startup.
var UserAgent = "carechat/dev"

// Options configures a Gateway.
type Options struct {
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// RequestsPerSecond enables a client-side rate limit when > 0.
	RequestsPerSecond float64

	// Burst is the limiter burst size (default 1).
	Burst int

	// HTTPClient replaces the pooled default client (tests).
	HTTPClient *http.Client
}

// Gateway performs JSON requests against a single backend base URL.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a gateway for baseURL.
func New(baseURL string, opts Options) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: timeout,
		}
	}

	g := &Gateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return g
}

// BaseURL returns the backend base URL without a trailing slash.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Send performs one request and returns the response body as validated JSON.
//
// A nil body sends no payload. Failures are always one of *NetworkError,
// *HTTPStatusError or *MalformedResponseError (or a plain error when the
// request body cannot be encoded).
func (g *Gateway) Send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	raw, err := g.SendRaw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, &MalformedResponseError{
			RawBody: raw,
			Cause:   errors.New("body is not valid JSON"),
		}
	}
	return json.RawMessage(raw), nil
}

// SendRaw performs one request and returns the 2xx body without checking
// that it is JSON.
func (g *Gateway) SendRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", UserAgent)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Cause: err}
		}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Cause: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, &MalformedResponseError{Cause: err}
		}
		return nil, &NetworkError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Code: resp.StatusCode, RawBody: raw}
	}

	return raw, nil
}

func (g *Gateway) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + path
}

var errTooLarge = fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)

// readResponse reads the body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, errTooLarge
	}
	return body, nil
}

// unwrapURLError strips the *url.Error wrapper so callers see the transport
// cause (dial error, context error) directly.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
