// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package topics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jeranaias/carechat/internal/gateway"
)

// TopicsPath is the backend endpoint for the topic index.
const TopicsPath = "/topics"

const (
	// DefaultMaxRetries is the number of re-issues after the first attempt.
	DefaultMaxRetries = 2

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second
)

// Sender is the part of the gateway the client needs.
type Sender interface {
	Send(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// =============================================================================
// TYPES
// =============================================================================

// Entry is one section of the topic index.
type Entry struct {
	ID      string   `json:"id"`
	Source  string   `json:"source"`
	Topics  []string `json:"topics"`
	Preview string   `json:"preview,omitempty"`
}

// Index is a complete topic index snapshot. It is replaced wholesale on
// every fetch.
type Index struct {
	TotalSections int       `json:"total_sections"`
	Topics        []Entry   `json:"topics"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client fetches the topic index. It is stateless and safe for concurrent
// use.
type Client struct {
	sender     Sender
	maxRetries int
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets how many times a retryable failure is re-issued.
// Negative values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a topic index client.
func NewClient(sender Sender, opts ...Option) *Client {
	c := &Client{
		sender:     sender,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
		backoff:    calculateBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves and strictly parses the topic index. Network failures and
// 5xx answers are retried with exponential backoff; anything else, including
// a malformed body, fails at once. No partial index is ever returned.
func (c *Client) Fetch(ctx context.Context) (Index, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying topic fetch", "attempt", attempt, "delay", delay, "kind", gateway.Kind(lastErr))
			select {
			case <-ctx.Done():
				return Index{}, &gateway.NetworkError{Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}

		raw, err := c.sender.Send(ctx, http.MethodGet, TopicsPath, nil)
		if err != nil {
			if gateway.IsRetryable(err) && ctx.Err() == nil {
				lastErr = err
				continue
			}
			return Index{}, err
		}

		idx, err := Parse(raw)
		if err != nil {
			c.logger.Warn("topic index rejected", "error", err)
			return Index{}, err
		}
		idx.FetchedAt = c.now()
		return idx, nil
	}

	c.logger.Warn("topic fetch failed", "attempts", c.maxRetries+1, "kind", gateway.Kind(lastErr))
	return Index{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff returns the delay before retry attempt (1-based):
// 500ms, 1s, 2s, ... capped at 10s.
func calculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 16 {
		return retryMaxDelay
	}
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// =============================================================================
// PARSING
// =============================================================================

// rawIndex keeps entries undecoded so each can be checked on its own.
type rawIndex struct {
	TotalSections *json.RawMessage  `json:"total_sections"`
	Topics        *[]json.RawMessage `json:"topics"`
}

type rawEntry struct {
	ID      json.RawMessage  `json:"id"`
	Source  *string          `json:"source"`
	Topics  *json.RawMessage `json:"topics"`
	Preview json.RawMessage  `json:"preview"`
}

// Parse validates a /topics body. Any deviation from the expected shape
// yields a *gateway.MalformedResponseError; for a bad entry the cause names
// its position.
func Parse(raw []byte) (Index, error) {
	malformed := func(cause error) error {
		return &gateway.MalformedResponseError{RawBody: raw, Cause: cause}
	}

	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return Index{}, malformed(errors.New("topic index is not an object"))
	}
	var ri rawIndex
	if err := json.Unmarshal(raw, &ri); err != nil {
		return Index{}, malformed(err)
	}

	if ri.TotalSections == nil {
		return Index{}, malformed(errors.New("total_sections is missing"))
	}
	total, err := parseInteger(*ri.TotalSections)
	if err != nil {
		return Index{}, malformed(fmt.Errorf("total_sections: %w", err))
	}

	if ri.Topics == nil {
		return Index{}, malformed(errors.New("topics is missing"))
	}

	idx := Index{
		TotalSections: total,
		Topics:        make([]Entry, 0, len(*ri.Topics)),
	}
	for i, item := range *ri.Topics {
		entry, err := parseEntry(item, i)
		if err != nil {
			return Index{}, malformed(fmt.Errorf("entry %d: %w", i, err))
		}
		idx.Topics = append(idx.Topics, entry)
	}
	return idx, nil
}

func parseEntry(item json.RawMessage, position int) (Entry, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
		return Entry{}, errors.New("not an object")
	}
	var re rawEntry
	if err := json.Unmarshal(item, &re); err != nil {
		return Entry{}, err
	}

	entry := Entry{}

	if re.Source == nil {
		return Entry{}, errors.New("source is missing or not a string")
	}
	entry.Source = *re.Source

	if re.Topics == nil {
		return Entry{}, errors.New("topics is missing")
	}
	if err := json.Unmarshal(*re.Topics, &entry.Topics); err != nil || entry.Topics == nil {
		return Entry{}, errors.New("topics must be an array of strings")
	}

	id, err := parseID(re.ID, position)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id

	if len(re.Preview) > 0 && !isNull(re.Preview) {
		if err := json.Unmarshal(re.Preview, &entry.Preview); err != nil {
			return Entry{}, errors.New("preview must be a string")
		}
	}
	return entry, nil
}

// parseID accepts a string or a number. An absent or null id becomes the
// 1-based position.
func parseID(raw json.RawMessage, position int) (string, error) {
	if len(raw) == 0 || isNull(raw) {
		return strconv.Itoa(position + 1), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	return "", errors.New("id must be a string or a number")
}

func parseInteger(raw json.RawMessage) (int, error) {
	// json.Number also decodes quoted numbers; only bare literals count.
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] == '"' {
		return 0, errors.New("must be an integer")
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, errors.New("must be an integer")
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
