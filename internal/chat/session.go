// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/carechat/internal/gateway"
	"github.com/jeranaias/carechat/internal/identity"
	"github.com/jeranaias/carechat/internal/model"
	"github.com/jeranaias/carechat/internal/quota"
	"github.com/jeranaias/carechat/internal/util"
)

// ChatPath is the backend endpoint for chat exchanges.
const ChatPath = "/chat"

// Sender is the part of the gateway a session needs.
type Sender interface {
	Send(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// chatRequest is the POST /chat body.
type chatRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// chatResponse lists the fields consumed from a chat answer. Nil means
// absent (or JSON null).
type chatResponse struct {
	Allowed  *bool   `json:"allowed"`
	Reply    *string `json:"reply"`
	UsageNow *int    `json:"usage_now"`
	Limit    *int    `json:"limit"`
	Error    *string `json:"error"`
}

// noReplyText is the BOT text for an allowed answer without a reply.
const noReplyText = "No reply"

// =============================================================================
// SESSION
// =============================================================================

// pendingSend is an accepted send waiting for its turn on the wire.
type pendingSend struct {
	ctx  context.Context
	text string
}

// exchange is the in-flight request. cancelled is the token checked before
// any post-response mutation.
type exchange struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Session drives one conversation: it owns the log, serializes sends and
// interprets every answer through the quota policy.
//
// All state lives behind mu. Events are queued in the outbox under mu in
// mutation order and delivered by flush, outside mu.
type Session struct {
	id     string
	sender Sender
	ident  identity.Reader
	logger *slog.Logger
	log    *model.ConversationLog

	mu        sync.Mutex
	state     State
	usage     quota.UsageState
	hasUsage  bool
	queue     []pendingSend
	draining  bool
	inflight  *exchange
	closed    bool
	observers map[int]Observer
	nextObs   int
	outbox    []Event

	notifyMu sync.Mutex
	wg       sync.WaitGroup
}

// NewSession creates an idle session. ident is read at the start of every
// exchange; the session never writes it. A nil logger uses slog.Default().
func NewSession(sender Sender, ident identity.Reader, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Session{
		id:        id,
		sender:    sender,
		ident:     ident,
		logger:    logger.With("session", id[:8]),
		log:       model.NewConversationLog(),
		state:     StateIdle,
		observers: make(map[int]Observer),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the conversation log.
func (s *Session) Snapshot() []model.Message {
	return s.log.Snapshot()
}

// Usage returns the quota state from the latest chat response, and false
// before the first one.
func (s *Session) Usage() (quota.UsageState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, s.hasUsage
}

// Pending returns the number of sends waiting behind the in-flight one.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Session) Subscribe(obs Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send accepts text for delivery and returns immediately. The outcome is
// observed through the log and events.
//
// Empty text, a blocked or closed session and a missing identity are
// refused without touching the log, the state or the network. Accepted
// sends are delivered one at a time in call order.
func (s *Session) Send(ctx context.Context, text string) error {
	if util.IsBlank(text) {
		return ErrEmptyMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.state == StateBlocked:
		s.mu.Unlock()
		return ErrBlocked
	}
	if id, ok := s.ident.Current(); !ok || id.Email == "" {
		s.mu.Unlock()
		return ErrNotRegistered
	}

	s.queue = append(s.queue, pendingSend{ctx: ctx, text: strings.TrimSpace(text)})
	start := !s.draining
	if start {
		s.draining = true
		s.wg.Add(1)
	}
	queued := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("send accepted", "chars", len(text), "queued", queued)
	if start {
		go s.drain()
	}
	return nil
}

// drain processes the queue until it is empty. At most one drain goroutine
// exists per session.
func (s *Session) drain() {
	defer s.wg.Done()
	defer s.flushAll()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.closed {
			s.draining = false
			s.mu.Unlock()
			return
		}
		p := s.queue[0]
		s.queue = s.queue[1:]

		if err := p.ctx.Err(); err != nil {
			s.emit(EventDropped{Text: p.text, Reason: err})
			s.mu.Unlock()
			s.flush()
			continue
		}
		id, ok := s.ident.Current()
		if !ok || id.Email == "" {
			s.emit(EventDropped{Text: p.text, Reason: ErrNotRegistered})
			s.mu.Unlock()
			s.flush()
			continue
		}

		ctx, cancel := context.WithCancel(p.ctx)
		ex := &exchange{cancel: cancel}
		s.inflight = ex
		s.appendLocked(model.SenderUser, p.text)
		s.setStateLocked(StateSending)
		s.mu.Unlock()
		s.flush()

		start := time.Now()
		raw, err := s.sender.Send(ctx, http.MethodPost, ChatPath, chatRequest{
			Email:   id.Email,
			Message: p.text,
		})
		cancel()

		s.mu.Lock()
		s.inflight = nil
		switch {
		case ex.cancelled:
			// Cancel already moved the state to idle.
			s.logger.Debug("discarded cancelled exchange", "duration", time.Since(start))
		case p.ctx.Err() != nil:
			s.setStateLocked(StateIdle)
			s.logger.Debug("discarded exchange, caller context done", "duration", time.Since(start))
		case err != nil:
			s.failLocked(err)
		default:
			s.handleResponseLocked(raw)
		}
		s.mu.Unlock()
		s.flush()
	}
}

// handleResponseLocked applies one successful gateway answer.
func (s *Session) handleResponseLocked(raw json.RawMessage) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.failLocked(&gateway.MalformedResponseError{RawBody: raw, Cause: err})
		return
	}

	usage := quota.Evaluate(quota.Fields{
		Allowed:  resp.Allowed,
		UsageNow: resp.UsageNow,
		Limit:    resp.Limit,
	})
	s.usage, s.hasUsage = usage, true
	s.emit(EventUsage{Usage: usage})

	if !usage.Allowed {
		s.appendLocked(model.SenderSystem, usage.Describe())
		s.setStateLocked(StateBlocked)
		s.dropQueueLocked(ErrBlocked)
		s.logger.Info("quota exhausted", "usage", usage.UsageCount, "limit", usage.Limit)
		return
	}

	reply := ""
	if resp.Reply != nil {
		reply = *resp.Reply
	}
	serverErr := ""
	if resp.Error != nil {
		serverErr = strings.TrimSpace(*resp.Error)
	}

	switch {
	case reply == "" && serverErr != "":
		s.appendLocked(model.SenderSystem, "Server error: "+util.TruncateRunes(serverErr, 200))
		s.setStateLocked(StateError)
		s.setStateLocked(StateIdle)
		s.logger.Warn("chat reply carried a server error")
	case reply == "":
		s.appendLocked(model.SenderBot, noReplyText)
		s.setStateLocked(StateIdle)
	default:
		s.appendLocked(model.SenderBot, model.UnescapeReply(reply))
		s.setStateLocked(StateIdle)
		s.logger.Debug("reply received", "chars", len(reply))
	}
}

// failLocked records a gateway failure. The USER message stays as it is;
// a SYSTEM message follows it.
func (s *Session) failLocked(err error) {
	s.appendLocked(model.SenderSystem, describeFailure(err))
	s.setStateLocked(StateError)
	s.setStateLocked(StateIdle)
	s.logger.Warn("chat exchange failed", "kind", gateway.Kind(err))
}

// describeFailure summarizes err by kind without transport internals.
func describeFailure(err error) string {
	switch gateway.Kind(err) {
	case gateway.KindNetwork:
		return "Error: could not reach the server. Check your connection and send the message again."
	case gateway.KindHTTPStatus:
		var statusErr *gateway.HTTPStatusError
		if errors.As(err, &statusErr) {
			return fmt.Sprintf("Error: the server could not handle the message (HTTP %d).", statusErr.Code)
		}
		return "Error: the server could not handle the message."
	case gateway.KindMalformed:
		return "Error: the server sent an unexpected response."
	default:
		return "Error: the message could not be sent."
	}
}

// =============================================================================
// CANCELLATION AND LIFECYCLE
// =============================================================================

// Cancel abandons the in-flight exchange. The log keeps the USER message
// and nothing else is appended for it; the state returns to idle at once.
// Queued sends continue. Returns false when nothing was in flight.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	ex := s.inflight
	if ex == nil || ex.cancelled {
		s.mu.Unlock()
		return false
	}
	ex.cancelled = true
	ex.cancel()
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	s.logger.Debug("exchange cancelled")
	s.flush()
	return true
}

// Unblock leaves the blocked state after an external registration or
// upgrade. Nothing is appended to the log; observers see the transition
// as an EventStateChanged. Returns false when the session was not blocked.
func (s *Session) Unblock() bool {
	s.mu.Lock()
	if s.state != StateBlocked || s.closed {
		s.mu.Unlock()
		return false
	}
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	s.flush()
	return true
}

// Close cancels the in-flight exchange, drops queued sends and refuses
// further ones. The log remains readable.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if ex := s.inflight; ex != nil && !ex.cancelled {
		ex.cancelled = true
		ex.cancel()
		s.setStateLocked(StateIdle)
	}
	s.dropQueueLocked(ErrClosed)
	s.mu.Unlock()

	s.flush()
}

// Wait blocks until every accepted send has been delivered or dropped and
// its events dispatched. It must not be called from an Observer.
func (s *Session) Wait() {
	s.wg.Wait()
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (s *Session) appendLocked(sender model.Sender, text string) {
	msg := s.log.Append(sender, text)
	s.emit(EventAppended{Message: msg})
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.emit(EventStateChanged{From: from, To: to})
}

func (s *Session) dropQueueLocked(reason error) {
	for _, p := range s.queue {
		s.emit(EventDropped{Text: p.text, Reason: reason})
	}
	s.queue = nil
}

func (s *Session) emit(ev Event) {
	s.outbox = append(s.outbox, ev)
}

// =============================================================================
// EVENT DELIVERY
// =============================================================================

// flush delivers queued events unless another goroutine is already doing
// so, in which case that goroutine picks them up.
func (s *Session) flush() {
	for {
		if !s.notifyMu.TryLock() {
			return
		}
		s.deliver()
		s.notifyMu.Unlock()

		s.mu.Lock()
		more := len(s.outbox) > 0
		s.mu.Unlock()
		if !more {
			return
		}
	}
}

// flushAll waits for any concurrent delivery and then empties the outbox.
func (s *Session) flushAll() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.deliver()
}

// deliver must be called with notifyMu held.
func (s *Session) deliver() {
	for {
		s.mu.Lock()
		events := s.outbox
		s.outbox = nil
		observers := make([]Observer, 0, len(s.observers))
		for i := 0; i < s.nextObs; i++ {
			if obs, ok := s.observers[i]; ok {
				observers = append(observers, obs)
			}
		}
		s.mu.Unlock()

		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			for _, obs := range observers {
				obs(ev)
			}
		}
	}
}
