// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package topics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/carechat/internal/gateway"
)

func newClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(gateway.New(server.URL, gateway.Options{}), opts...)
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func serve(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}
}

// =============================================================================
// PARSING TESTS
// =============================================================================

func TestFetch_ParsesIndex(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, TopicsPath, r.URL.Path)
		w.Write([]byte(`{
			"total_sections": 3,
			"topics": [
				{"id": 1, "source": "anxiety.pdf", "topics": ["breathing", "grounding"], "preview": "Slow breathing..."},
				{"id": "b-2", "source": "sleep.pdf", "topics": []},
				{"source": "grief.pdf", "topics": ["loss"], "preview": null}
			]
		}`))
	})
	c.now = func() time.Time { return fixed }

	idx, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, idx.TotalSections)
	assert.Equal(t, fixed, idx.FetchedAt)
	require.Len(t, idx.Topics, 3)

	assert.Equal(t, Entry{ID: "1", Source: "anxiety.pdf", Topics: []string{"breathing", "grounding"}, Preview: "Slow breathing..."}, idx.Topics[0])
	assert.Equal(t, "b-2", idx.Topics[1].ID)
	assert.Empty(t, idx.Topics[1].Topics)
	assert.NotNil(t, idx.Topics[1].Topics)
	assert.Equal(t, "3", idx.Topics[2].ID, "absent id falls back to the 1-based position")
	assert.Empty(t, idx.Topics[2].Preview)
}

func TestFetch_EmptyIndex(t *testing.T) {
	c := newClient(t, serve(`{"total_sections": 0, "topics": []}`))

	idx, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, idx.TotalSections)
	assert.Empty(t, idx.Topics)
}

func TestFetch_OneBadEntryRejectsAll(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"total_sections": 5, "topics": [
			{"id": 1, "source": "a", "topics": ["x"]},
			{"id": 2, "source": "b", "topics": ["x"]},
			{"id": 3, "source": "c", "topics": ["x"]},
			{"id": 4, "source": "d", "topics": "x"},
			{"id": 5, "source": "e", "topics": ["x"]}
		]}`))
	})

	idx, err := c.Fetch(context.Background())

	var malformed *gateway.MalformedResponseError
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.Contains(t, err.Error(), "entry 3")
	assert.Empty(t, idx.Topics, "no partial list")
	assert.Equal(t, int32(1), hits.Load(), "malformed answers are not retried")
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"array body", `[]`, "not an object"},
		{"missing total", `{"topics": []}`, "total_sections is missing"},
		{"null total", `{"total_sections": null, "topics": []}`, "total_sections is missing"},
		{"string total", `{"total_sections": "5", "topics": []}`, "total_sections"},
		{"fractional total", `{"total_sections": 2.5, "topics": []}`, "total_sections"},
		{"missing topics", `{"total_sections": 1}`, "topics is missing"},
		{"topics object", `{"total_sections": 1, "topics": {}}`, ""},
		{"entry not object", `{"total_sections": 1, "topics": ["a"]}`, "entry 0: not an object"},
		{"missing source", `{"total_sections": 1, "topics": [{"topics": []}]}`, "entry 0: source"},
		{"numeric source", `{"total_sections": 1, "topics": [{"source": 7, "topics": []}]}`, "entry 0"},
		{"missing entry topics", `{"total_sections": 1, "topics": [{"source": "a"}]}`, "entry 0: topics is missing"},
		{"non-string topic", `{"total_sections": 1, "topics": [{"source": "a", "topics": [1]}]}`, "entry 0: topics must be"},
		{"bool id", `{"total_sections": 1, "topics": [{"id": true, "source": "a", "topics": []}]}`, "entry 0: id"},
		{"numeric preview", `{"total_sections": 1, "topics": [{"source": "a", "topics": [], "preview": 3}]}`, "entry 0: preview"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			var malformed *gateway.MalformedResponseError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, tc.body, string(malformed.RawBody))
			if tc.want != "" {
				assert.Contains(t, err.Error(), tc.want)
			}
		})
	}
}

func TestFetch_NonJSONBody(t *testing.T) {
	c := newClient(t, serve(`<html>maintenance</html>`))

	_, err := c.Fetch(context.Background())
	assert.Equal(t, gateway.KindMalformed, gateway.Kind(err))
}

// =============================================================================
// RETRY TESTS
// =============================================================================

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"total_sections": 1, "topics": [{"source": "a", "topics": ["b"]}]}`))
	})

	idx, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, idx.Topics, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_ClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Fetch(context.Background())
	var statusErr *gateway.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithMaxRetries(4))

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, gateway.KindHTTPStatus, gateway.Kind(err))
	assert.Equal(t, int32(5), hits.Load())
}

func TestFetch_ZeroRetries(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithMaxRetries(-3))

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Fetch(ctx)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, gateway.KindNetwork, gateway.Kind(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_NetworkFailureRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(gateway.New(url, gateway.Options{}), WithMaxRetries(1))
	var delays []int
	c.backoff = func(attempt int) time.Duration {
		delays = append(delays, attempt)
		return 0
	}

	_, err := c.Fetch(context.Background())
	assert.Equal(t, gateway.KindNetwork, gateway.Kind(err))
	assert.Equal(t, []int{1}, delays)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Duration(0), calculateBackoff(0))
	assert.Equal(t, 500*time.Millisecond, calculateBackoff(1))
	assert.Equal(t, time.Second, calculateBackoff(2))
	assert.Equal(t, 2*time.Second, calculateBackoff(3))
	assert.Equal(t, 8*time.Second, calculateBackoff(5))
	assert.Equal(t, 10*time.Second, calculateBackoff(6))
	assert.Equal(t, 10*time.Second, calculateBackoff(40))
}
