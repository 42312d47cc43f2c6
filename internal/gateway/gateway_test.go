// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// REQUEST ENCODING TESTS
// =============================================================================

func TestSend_EncodesJSONBody(t *testing.T) {
	var gotContentType, gotMethod, gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	gw := New(server.URL+"/", Options{})
	raw, err := gw.Send(context.Background(), http.MethodPost, "chat", map[string]string{
		"email":   "a@b.com",
		"message": "héllo",
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/chat", gotPath)
	assert.Equal(t, "héllo", gotBody["message"])
	assert.JSONEq(t, `{"ok": true}`, string(raw))
}

func TestSend_NilBodySendsNoPayload(t *testing.T) {
	var contentLength int64 = -2
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	gw := New(server.URL, Options{})
	_, err := gw.Send(context.Background(), http.MethodGet, "/topics", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), contentLength)
}

// =============================================================================
// FAILURE CLASSIFICATION TESTS
// =============================================================================

func TestSend_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "User already exists"}`))
	}))
	defer server.Close()

	gw := New(server.URL, Options{})
	_, err := gw.Send(context.Background(), http.MethodPost, "/auth/register", map[string]string{})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr), "expected HTTPStatusError, got %T", err)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.JSONEq(t, `{"error": "User already exists"}`, string(statusErr.RawBody))
	assert.False(t, statusErr.Temporary())
	assert.Equal(t, KindHTTPStatus, Kind(err))
	assert.False(t, IsRetryable(err))
}

func TestSend_ServerErrorIsRetryableKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).Send(context.Background(), http.MethodGet, "/topics", nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestSend_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "html page", body: "<html>oops</html>"},
		{name: "truncated json", body: `{"reply": "hi"`},
		{name: "empty body", body: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := New(server.URL, Options{}).Send(context.Background(), http.MethodGet, "/x", nil)
			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed), "expected MalformedResponseError, got %v", err)
			assert.Equal(t, tc.body, string(malformed.RawBody))
			assert.Equal(t, KindMalformed, Kind(err))
		})
	}
}

func TestSendRaw_AcceptsNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("server running"))
	}))
	defer server.Close()

	raw, err := New(server.URL, Options{}).SendRaw(context.Background(), http.MethodGet, "/health", nil)
	require.NoError(t, err)
	assert.Equal(t, "server running", string(raw))
}

func TestSend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, Options{}).Send(context.Background(), http.MethodGet, "/health", nil)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr), "expected NetworkError, got %T", err)
	assert.Equal(t, KindNetwork, Kind(err))
	assert.True(t, IsRetryable(err))
}

func TestSend_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	gw := New(server.URL, Options{Timeout: 50 * time.Millisecond})
	_, err := gw.Send(context.Background(), http.MethodGet, "/slow", nil)
	assert.Equal(t, KindNetwork, Kind(err))
}

func TestSend_CancelledContextNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := New(server.URL, Options{}).Send(ctx, http.MethodGet, "/slow", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsRetryable(err))
}

// =============================================================================
// RETRY AND RATE LIMIT TESTS
// =============================================================================

func TestSend_NeverRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL, Options{}).Send(context.Background(), http.MethodPost, "/chat", map[string]string{})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_RateLimiterHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	gw := New(server.URL, Options{RequestsPerSecond: 0.001, Burst: 1})

	_, err := gw.Send(context.Background(), http.MethodGet, "/health", nil)
	require.NoError(t, err, "first request uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gw.Send(ctx, http.MethodGet, "/health", nil)
	assert.Equal(t, KindNetwork, Kind(err))
}

func TestKind_Unknown(t *testing.T) {
	assert.Equal(t, KindUnknown, Kind(errors.New("boom")))
	assert.False(t, IsRetryable(errors.New("boom")))
}
