// Package chat runs chat turns end to end: it resolves the conversation,
// persists the transcript, drives the agent loop and turns the result into a
// stream of output events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unroll-ai/unroll/internal/domain/agent"
	"github.com/unroll-ai/unroll/internal/domain/conversation"
	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/infra/eventbus"
	"github.com/unroll-ai/unroll/internal/infra/llm"
)

var ErrEmptyMessage = errors.New("chat: message is empty")

// Messages shown to the end user. Internal error text never reaches the stream.
const (
	msgConversationNotFound = "Conversation not found"
	msgEmptyMessage         = "Message must not be empty"
	msgModelUnavailable     = "The assistant is temporarily unavailable. Please try again."
	msgToolRoundLimit       = "The assistant could not complete this request. Please try rephrasing it."
	msgTimeout              = "The request timed out. Please try again."
	msgInternal             = "Something went wrong while generating the response."
)

// Input is one user submission.
type Input struct {
	CallerID       int64
	Message        string
	ConversationID *int64
}

// Config holds the turn settings that are not part of the agent loop.
type Config struct {
	SystemPrompt string
	HistoryLimit int
}

// Detail is a conversation with its full transcript.
type Detail struct {
	conversation.Conversation
	Messages []conversation.Message
}

type Service struct {
	beginner scope.Beginner
	store    *conversation.Store
	orch     *agent.Orchestrator
	cfg      Config
	bus      eventbus.EventBus
	logger   *slog.Logger
}

func NewService(
	beginner scope.Beginner,
	store *conversation.Store,
	orch *agent.Orchestrator,
	cfg Config,
	bus eventbus.EventBus,
	logger *slog.Logger,
) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = agent.DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{beginner: beginner, store: store, orch: orch, cfg: cfg, bus: bus, logger: logger}
}

// Stream runs one turn. The sequence always ends with a done or error event
// unless the consumer stops reading or ctx is cancelled, in which case the
// owned transaction is rolled back and no assistant message is written.
func (s *Service) Stream(ctx context.Context, in Input) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		t := &turn{
			s:       s,
			in:      in,
			id:      uuid.Must(uuid.NewV7()).String(),
			started: time.Now(),
			yield:   yield,
			alive:   true,
		}
		t.log = s.logger.With("turn_id", t.id, "caller_id", in.CallerID)
		t.run(ctx)
	}
}

type turn struct {
	s       *Service
	in      Input
	id      string
	started time.Time
	log     *slog.Logger

	yield func(Event) bool
	alive bool

	conversationID int64
	tokens         int
	outcome        agent.Outcome
}

func (t *turn) emit(ev Event) bool {
	if !t.alive {
		return false
	}
	t.alive = t.yield(ev)
	return t.alive
}

func (t *turn) run(ctx context.Context) {
	if t.in.Message == "" {
		t.fail(ctx, ErrEmptyMessage)
		return
	}

	sc, err := scope.Open(ctx, t.s.beginner, t.in.CallerID)
	if err != nil {
		t.fail(ctx, err)
		return
	}
	released := false
	release := func(commit bool) error {
		released = true
		return sc.Release(commit)
	}
	defer func() {
		if !released {
			_ = sc.Release(false)
		}
	}()

	conv, err := t.resolve(ctx, sc)
	if err != nil {
		t.fail(ctx, err)
		return
	}
	t.conversationID = conv.ID

	if _, err := t.s.store.AppendMessage(ctx, sc, conv.ID, conversation.RoleUser, t.in.Message); err != nil {
		t.fail(ctx, err)
		return
	}
	if !t.emit(Event{Type: EventMeta, ConversationID: conv.ID}) {
		t.cancelled(context.Canceled)
		return
	}

	recent, err := t.s.store.LoadRecentHistory(ctx, sc, conv.ID, t.s.cfg.HistoryLimit)
	if err != nil {
		t.fail(ctx, err)
		return
	}
	history := agent.SeedHistory(t.s.cfg.SystemPrompt, toModelMessages(recent), t.in.Message)

	t.outcome, err = t.s.orch.Run(ctx, agent.Turn{Scope: sc, History: history}, func(token string) bool {
		t.tokens++
		return t.emit(Event{Type: EventToken, Content: token})
	})
	switch {
	case err == nil:
	case !t.alive || errors.Is(ctx.Err(), context.Canceled):
		t.cancelled(err)
		return
	default:
		// The user message stays; only the assistant answer is dropped.
		if cerr := release(true); cerr != nil {
			err = errors.Join(err, cerr)
		}
		t.fail(ctx, err)
		return
	}

	if err := t.persistAnswer(ctx, sc, conv); err != nil {
		t.fail(ctx, err)
		return
	}
	if err := release(true); err != nil {
		t.fail(ctx, fmt.Errorf("commit turn: %w", err))
		return
	}

	t.publish(TopicTurnCompleted, nil)
	t.log.InfoContext(ctx, "turn completed",
		"conversation_id", conv.ID,
		"rounds", t.outcome.Rounds,
		"tool_calls", t.outcome.ToolCalls,
		"duration", time.Since(t.started),
	)
	t.emit(Event{Type: EventDone})
}

func (t *turn) resolve(ctx context.Context, sc *scope.Scope) (*conversation.Conversation, error) {
	if t.in.ConversationID != nil {
		return t.s.store.Get(ctx, sc, *t.in.ConversationID)
	}
	return t.s.store.Create(ctx, sc, conversation.DefaultTitle)
}

// persistAnswer stores a non-empty answer and names a conversation that
// still has the default title.
func (t *turn) persistAnswer(ctx context.Context, sc *scope.Scope, conv *conversation.Conversation) error {
	if t.outcome.Content == "" {
		return nil
	}
	if _, err := t.s.store.AppendMessage(ctx, sc, conv.ID, conversation.RoleAssistant, t.outcome.Content); err != nil {
		return err
	}
	if conv.Title == conversation.DefaultTitle {
		if err := t.s.store.UpdateTitle(ctx, sc, conv.ID, conversation.TitleFrom(t.in.Message)); err != nil {
			return err
		}
	}
	return nil
}

func (t *turn) fail(ctx context.Context, err error) {
	if !t.alive || errors.Is(ctx.Err(), context.Canceled) {
		t.cancelled(err)
		return
	}
	t.log.WarnContext(ctx, "turn failed", "conversation_id", t.conversationID, "err", err)
	t.publish(TopicTurnFailed, err)
	t.emit(Event{Type: EventError, Content: SafeMessage(err)})
}

func (t *turn) cancelled(err error) {
	t.log.Info("turn cancelled", "conversation_id", t.conversationID, "tokens", t.tokens)
	t.publish(TopicTurnFailed, err)
}

func (t *turn) publish(topic string, err error) {
	if t.s.bus == nil {
		return
	}
	rec := TurnRecord{
		TurnID:         t.id,
		CallerID:       t.in.CallerID,
		ConversationID: t.conversationID,
		Rounds:         t.outcome.Rounds,
		ToolCalls:      t.outcome.ToolCalls,
		Tokens:         t.tokens,
		Duration:       time.Since(t.started),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	t.s.bus.Publish(topic, rec)
}

// SafeMessage maps a turn error to the text shown to the user.
func SafeMessage(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return msgConversationNotFound
	case errors.Is(err, ErrEmptyMessage):
		return msgEmptyMessage
	case errors.Is(err, agent.ErrMaxToolRounds):
		return msgToolRoundLimit
	case errors.Is(err, llm.ErrModelUnavailable):
		return msgModelUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	default:
		return msgInternal
	}
}

func toModelMessages(msgs []conversation.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

// ============================================================================
// Conversation operations
// ============================================================================

// List returns the caller's conversations, newest first.
func (s *Service) List(ctx context.Context, callerID int64) ([]conversation.Conversation, error) {
	var out []conversation.Conversation
	err := s.withScope(ctx, callerID, func(sc *scope.Scope) error {
		var err error
		out, err = s.store.List(ctx, sc)
		return err
	})
	return out, err
}

// Get returns one of the caller's conversations with its messages.
func (s *Service) Get(ctx context.Context, callerID, id int64) (*Detail, error) {
	var d Detail
	err := s.withScope(ctx, callerID, func(sc *scope.Scope) error {
		conv, err := s.store.Get(ctx, sc, id)
		if err != nil {
			return err
		}
		msgs, err := s.store.Messages(ctx, sc, id)
		if err != nil {
			return err
		}
		d = Detail{Conversation: *conv, Messages: msgs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Delete removes one of the caller's conversations.
func (s *Service) Delete(ctx context.Context, callerID, id int64) error {
	return s.withScope(ctx, callerID, func(sc *scope.Scope) error {
		return s.store.Delete(ctx, sc, id)
	})
}

func (s *Service) withScope(ctx context.Context, callerID int64, fn func(*scope.Scope) error) error {
	sc, err := scope.Open(ctx, s.beginner, callerID)
	if err != nil {
		return err
	}
	if err := fn(sc); err != nil {
		_ = sc.Release(false)
		return err
	}
	return sc.Release(true)
}
