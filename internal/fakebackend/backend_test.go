// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fakebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, srv *httptest.Server, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp.Body)
}

func get(t *testing.T, srv *httptest.Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp.Body)
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func start(t *testing.T, opts ...Option) (*Backend, *httptest.Server) {
	t.Helper()
	b := New(opts...)
	srv := b.NewTestServer()
	t.Cleanup(srv.Close)
	return b, srv
}

func TestRegister_CreatedThenExisting(t *testing.T) {
	b, srv := start(t)

	code, body := post(t, srv, PathRegister, map[string]any{"email": "A@B.com", "age": 30, "sex": "F"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, float64(0), body["usage_count"])

	code, body = post(t, srv, PathRegister, map[string]any{"email": "a@b.com", "age": 31, "sex": "F"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "existing", body["status"])

	usage, ok := b.Usage("a@b.com")
	assert.True(t, ok)
	assert.Zero(t, usage)
	assert.Equal(t, 2, b.Hits(PathRegister))
}

func TestRegister_RejectDuplicates(t *testing.T) {
	_, srv := start(t, WithRejectDuplicates())

	post(t, srv, PathRegister, map[string]any{"email": "a@b.com"})
	code, body := post(t, srv, PathRegister, map[string]any{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "User already exists", body["error"])
}

func TestRegister_MissingEmail(t *testing.T) {
	_, srv := start(t)
	code, _ := post(t, srv, PathRegister, map[string]any{"age": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestChat_CountsUsageUntilLimit(t *testing.T) {
	b, srv := start(t, WithLimit(2))
	post(t, srv, PathRegister, map[string]any{"email": "a@b.com"})

	for i := 1; i <= 2; i++ {
		code, body := post(t, srv, PathChat, map[string]any{"email": "a@b.com", "message": "hi"})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["allowed"])
		assert.Equal(t, float64(i), body["usage_now"])
		assert.Equal(t, float64(2), body["limit"])
		assert.Equal(t, `I hear you.\nYou said: hi`, body["reply"])
	}

	code, body := post(t, srv, PathChat, map[string]any{"email": "a@b.com", "message": "hi"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, float64(2), body["usage_now"])
	assert.NotContains(t, body, "reply")

	b.Upgrade("a@b.com")
	_, body = post(t, srv, PathChat, map[string]any{"email": "a@b.com", "message": "hi"})
	assert.Equal(t, true, body["allowed"])
}

func TestChat_Unlimited(t *testing.T) {
	_, srv := start(t, WithLimit(0), WithReply(func(email, message string) string { return "ok" }))
	post(t, srv, PathRegister, map[string]any{"email": "a@b.com"})

	_, body := post(t, srv, PathChat, map[string]any{"email": "a@b.com", "message": "hi"})
	assert.Equal(t, "ok", body["reply"])
	assert.NotContains(t, body, "limit")
}

func TestChat_UnknownUser(t *testing.T) {
	_, srv := start(t)
	code, body := post(t, srv, PathChat, map[string]any{"email": "nobody@b.com", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User does not exist", body["error"])
}

func TestTopicsAndHealth(t *testing.T) {
	_, srv := start(t, WithTopics([]Topic{{ID: "x", Source: "a.pdf", Topics: []string{"t"}}}))

	code, body := get(t, srv, PathTopics)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total_sections"])

	code, body = get(t, srv, PathHealth)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHooks_FailAndMalform(t *testing.T) {
	b, srv := start(t)

	b.FailNext(PathHealth, http.StatusServiceUnavailable, 1)
	b.MalformNext(PathHealth, `{"status":`, 1)

	resp, err := http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, `{"status":`, string(data))

	code, _ := get(t, srv, PathHealth)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, b.Hits(PathHealth))
}

func TestHooks_DelayHonoursClientCancel(t *testing.T) {
	b, srv := start(t)
	b.SetDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+PathHealth, nil)

	begin := time.Now()
	_, err := http.DefaultClient.Do(req)
	assert.Error(t, err)
	assert.Less(t, time.Since(begin), 5*time.Second)
}

// lockedBuffer is a log sink written from server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogging_RecordsStatusAndSize(t *testing.T) {
	var logs lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, srv := start(t, WithLogger(logger))

	code, _ := post(t, srv, PathChat, map[string]any{"email": "ghost@b.com", "message": "hi"})
	require.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, srv, PathHealth)
	require.Equal(t, http.StatusOK, code)

	// The request line is logged after the response is written.
	require.Eventually(t, func() bool {
		out := logs.String()
		return strings.Contains(out, `"path":"/chat","status":404`) &&
			strings.Contains(out, `"path":"/health","status":200`)
	}, 2*time.Second, 10*time.Millisecond, logs.String())
	assert.NotContains(t, logs.String(), "ghost@b.com", "bodies are never logged")
}

func TestRecovery_PanickingReply(t *testing.T) {
	_, srv := start(t, WithReply(func(email, message string) string { panic("model crashed") }))
	post(t, srv, PathRegister, map[string]any{"email": "a@b.com"})

	code, body := post(t, srv, PathChat, map[string]any{"email": "a@b.com", "message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal Server Error", body["error"])
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)

	go func() { done <- b.Serve(ctx, "127.0.0.1:0", ready) }()

	addr := <-ready
	resp, err := http.Get("http://" + addr + PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
