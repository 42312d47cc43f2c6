// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fakebackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Endpoint paths served by the backend.
const (
	PathRegister = "/auth/register"
	PathChat     = "/chat"
	PathTopics   = "/topics"
	PathHealth   = "/health"
)

// DefaultLimit is the free message allowance per user.
const DefaultLimit = 5

// ============================================================================
// TYPES
// ============================================================================

// Topic is one entry served from /topics.
type Topic struct {
	ID      any      `json:"id,omitempty"`
	Source  string   `json:"source"`
	Topics  []string `json:"topics"`
	Preview string   `json:"preview,omitempty"`
}

// ReplyFunc produces the reply for a chat message.
type ReplyFunc func(email, message string) string

type user struct {
	Age   int
	Sex   string
	Usage int
}

// injected is a canned answer returned instead of the real handler.
type injected struct {
	status int
	body   string
}

// Backend is an in-process emulation of the chat backend. It is safe for
// concurrent use.
type Backend struct {
	mu               sync.Mutex
	users            map[string]*user
	limit            int
	reply            ReplyFunc
	topics           []Topic
	delay            time.Duration
	rejectDuplicates bool
	injections       map[string][]injected
	hits             map[string]int

	logger *slog.Logger
	router chi.Router
}

// Option configures a Backend.
type Option func(*Backend)

// WithLimit sets the per-user message allowance. Zero or less disables the
// limit.
func WithLimit(n int) Option {
	return func(b *Backend) { b.limit = n }
}

// WithReply sets the reply generator.
func WithReply(fn ReplyFunc) Option {
	return func(b *Backend) {
		if fn != nil {
			b.reply = fn
		}
	}
}

// WithTopics sets the served topic index.
func WithTopics(topics []Topic) Option {
	return func(b *Backend) { b.topics = topics }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRejectDuplicates answers a second registration of the same email with
// HTTP 400 {"error": "User already exists"} instead of status "existing".
func WithRejectDuplicates() Option {
	return func(b *Backend) { b.rejectDuplicates = true }
}

// New creates a backend with default topics and an echo reply.
func New(opts ...Option) *Backend {
	b := &Backend{
		users:      make(map[string]*user),
		limit:      DefaultLimit,
		reply:      echoReply,
		topics:     defaultTopics(),
		injections: make(map[string][]injected),
		hits:       make(map[string]int),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupRoutes()
	return b
}

// Handler returns the routed handler with middleware applied.
func (b *Backend) Handler() http.Handler {
	return b.router
}

// setupRoutes configures all HTTP routes.
func (b *Backend) setupRoutes() {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(RecoveryMiddleware(b.logger))
	r.Use(LoggingMiddleware(b.logger))
	r.Use(b.hooks)

	r.Post(PathRegister, b.handleRegister)
	r.Post(PathChat, b.handleChat)
	r.Get(PathTopics, b.handleTopics)
	r.Get(PathHealth, b.handleHealth)

	b.router = r
}

// ============================================================================
// TEST HOOKS
// ============================================================================

// SetDelay delays every subsequent response. The delay ends early when the
// client goes away.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// SetLimit changes the per-user allowance.
func (b *Backend) SetLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = n
}

// FailNext answers the next n requests to path with status and a JSON
// error body.
func (b *Backend) FailNext(path string, status, n int) {
	body, _ := json.Marshal(map[string]string{"error": http.StatusText(status)})
	b.inject(path, injected{status: status, body: string(body)}, n)
}

// MalformNext answers the next n requests to path with HTTP 200 and body
// verbatim.
func (b *Backend) MalformNext(path, body string, n int) {
	b.inject(path, injected{status: http.StatusOK, body: body}, n)
}

func (b *Backend) inject(path string, inj injected, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.injections[path] = append(b.injections[path], inj)
	}
}

// Hits returns the number of requests received for path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// Usage returns the message count for email and whether it is registered.
func (b *Backend) Usage(email string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[normalizeEmail(email)]
	if !ok {
		return 0, false
	}
	return u.Usage, true
}

// Upgrade resets the usage count for email, as a paid upgrade would.
func (b *Backend) Upgrade(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[normalizeEmail(email)]; ok {
		u.Usage = 0
	}
}

// hooks counts requests, applies the configured delay and serves injected
// answers.
func (b *Backend) hooks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		delay := b.delay
		var inj *injected
		if queue := b.injections[r.URL.Path]; len(queue) > 0 {
			inj = &queue[0]
			b.injections[r.URL.Path] = queue[1:]
		}
		b.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if inj != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(inj.status)
			w.Write([]byte(inj.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// HANDLERS
// ============================================================================

type registerRequest struct {
	Email string `json:"email"`
	Age   int    `json:"age"`
	Sex   string `json:"sex"`
}

// handleRegister handles POST /auth/register.
func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusUnprocessableEntity, "email is required")
		return
	}

	b.mu.Lock()
	existing, ok := b.users[email]
	if ok && b.rejectDuplicates {
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if ok {
		existing.Age, existing.Sex = req.Age, req.Sex
		usage := existing.Usage
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "existing",
			"message":     "Welcome back",
			"usage_count": usage,
		})
		return
	}
	b.users[email] = &user{Age: req.Age, Sex: req.Sex}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "created",
		"message":     "Registration successful",
		"usage_count": 0,
	})
}

type chatRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// handleChat handles POST /chat.
func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	b.mu.Lock()
	u, ok := b.users[normalizeEmail(req.Email)]
	if !ok {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "User does not exist")
		return
	}
	limit := b.limit
	if limit > 0 && u.Usage >= limit {
		usage := u.Usage
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"allowed":   false,
			"usage_now": usage,
			"limit":     limit,
		})
		return
	}
	u.Usage++
	usage := u.Usage
	reply := b.reply
	b.mu.Unlock()

	resp := map[string]any{
		"allowed":         true,
		"reply":           reply(req.Email, req.Message),
		"usage_now":       usage,
		"error":           nil,
		"processing_time": time.Since(start).Seconds(),
	}
	if limit > 0 {
		resp["limit"] = limit
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTopics handles GET /topics.
func (b *Backend) handleTopics(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	topics := make([]Topic, len(b.topics))
	copy(topics, b.topics)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_sections": len(topics),
		"topics":         topics,
	})
}

// handleHealth handles GET /health.
func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "server running",
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}, the shape the real server uses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// echoReply answers with the message quoted back. Replies carry escaped
// newlines the way the real server's model output does.
func echoReply(email, message string) string {
	return `I hear you.\nYou said: ` + message
}

func defaultTopics() []Topic {
	return []Topic{
		{ID: 1, Source: "coping_with_anxiety.pdf", Topics: []string{"anxiety", "breathing", "grounding"}, Preview: "Slow, deliberate breathing can calm the body's stress response."},
		{ID: 2, Source: "sleep_hygiene.pdf", Topics: []string{"sleep", "routine"}, Preview: "Keeping a regular sleep schedule helps regulate mood."},
		{ID: 3, Source: "reaching_out.pdf", Topics: []string{"support", "crisis"}, Preview: "If you are in crisis, contact local emergency services."},
	}
}
