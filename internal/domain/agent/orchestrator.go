// Package agent runs the bounded model/tool loop of one chat turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/domain/tool"
	"github.com/unroll-ai/unroll/internal/infra/llm"
)

// DefaultMaxToolRounds bounds how many tool batches one turn may execute.
const DefaultMaxToolRounds = 8

var (
	ErrMaxToolRounds = errors.New("agent: tool round limit exceeded")
	ErrEmptyHistory  = errors.New("agent: history is empty")
	ErrMissingScope  = errors.New("agent: scope is required")
)

// Config tunes the loop. Zero values fall back to defaults.
type Config struct {
	MaxToolRounds int
	// ParallelTools runs the calls of one batch concurrently. Results are
	// still appended in request order.
	ParallelTools bool
	// Temperature is nil to keep the model's configured default.
	Temperature *float64
	MaxTokens   int
}

// Turn is the seeded input of one loop run.
type Turn struct {
	Scope   *scope.Scope
	History []llm.Message
}

// Outcome describes a finished loop.
type Outcome struct {
	// Content is the concatenation of every emitted token.
	Content string
	// Rounds is the number of executed tool batches.
	Rounds int
	// ToolCalls counts individual tool invocations across all rounds.
	ToolCalls int
	// History is the final message list, including tool traffic.
	History []llm.Message
}

// Emit receives streamed tokens in generation order. Returning false stops
// the loop.
type Emit func(token string) bool

type state int

const (
	stateAwaitingModel state = iota
	stateExecutingTools
	stateTerminated
)

// Orchestrator alternates model steps and tool batches until the model
// answers without requesting tools.
type Orchestrator struct {
	model  llm.ChatModel
	tools  *tool.Registry
	cfg    Config
	logger *slog.Logger
}

func NewOrchestrator(model llm.ChatModel, tools *tool.Registry, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{model: model, tools: tools, cfg: cfg, logger: logger}
}

// Run drives the loop for one turn. On error the returned Outcome still holds
// what was streamed so far; callers must not persist it.
func (o *Orchestrator) Run(ctx context.Context, turn Turn, emit Emit) (Outcome, error) {
	if turn.Scope == nil {
		return Outcome{}, ErrMissingScope
	}
	if len(turn.History) == 0 {
		return Outcome{}, ErrEmptyHistory
	}

	var (
		out     = Outcome{History: slices.Clone(turn.History)}
		content strings.Builder
		pending []llm.ToolCall
	)
	send := func(token string) error {
		content.WriteString(token)
		if !emit(token) {
			return context.Canceled
		}
		return nil
	}

	for st := stateAwaitingModel; st != stateTerminated; {
		if err := ctx.Err(); err != nil {
			out.Content = content.String()
			return out, err
		}

		switch st {
		case stateAwaitingModel:
			final, err := o.step(ctx, out.History, send)
			if err != nil {
				out.Content = content.String()
				return out, err
			}
			if len(final.ToolCalls) == 0 {
				out.History = append(out.History, llm.Message{Role: llm.RoleAssistant, Content: final.Content})
				st = stateTerminated
				continue
			}
			if out.Rounds >= o.cfg.MaxToolRounds {
				out.Content = content.String()
				return out, fmt.Errorf("%w: %d rounds", ErrMaxToolRounds, o.cfg.MaxToolRounds)
			}
			out.History = append(out.History, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   final.Content,
				ToolCalls: final.ToolCalls,
			})
			pending = final.ToolCalls
			st = stateExecutingTools

		case stateExecutingTools:
			results := o.execute(ctx, turn.Scope, pending)
			for i, call := range pending {
				out.History = append(out.History, llm.Message{
					Role:       llm.RoleTool,
					Content:    results[i].Content,
					ToolCallID: call.ID,
					Name:       call.Name,
				})
			}
			out.Rounds++
			out.ToolCalls += len(pending)
			pending = nil
			st = stateAwaitingModel
		}
	}

	out.Content = content.String()
	return out, nil
}

// step streams one model step, forwarding deltas through send. A final that
// arrived without deltas is forwarded as a single token.
func (o *Orchestrator) step(ctx context.Context, history []llm.Message, send func(string) error) (llm.StepEvent, error) {
	req := llm.StepRequest{
		Messages:    history,
		Tools:       o.tools.Definitions(),
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}

	streamed := false
	for ev, err := range o.model.StreamStep(ctx, req) {
		if err != nil {
			return llm.StepEvent{}, err
		}
		switch ev.Kind {
		case llm.StepDelta:
			if ev.Delta == "" {
				continue
			}
			streamed = true
			if err := send(ev.Delta); err != nil {
				return llm.StepEvent{}, err
			}
		case llm.StepFinal, llm.StepToolCalls:
			if !streamed && ev.Content != "" {
				if err := send(ev.Content); err != nil {
					return llm.StepEvent{}, err
				}
			}
			return ev, nil
		}
	}
	return llm.StepEvent{}, fmt.Errorf("%w: step ended without a terminal event", llm.ErrModelUnavailable)
}

// execute runs one batch. Registry.Invoke never fails, so the group only
// waits for completion.
func (o *Orchestrator) execute(ctx context.Context, sc *scope.Scope, calls []llm.ToolCall) []tool.Result {
	results := make([]tool.Result, len(calls))
	invoke := func(ctx context.Context, i int) {
		call := calls[i]
		results[i] = o.tools.Invoke(ctx, sc, call.Name, call.Arguments)
		o.logger.DebugContext(ctx, "tool call",
			"tool", call.Name,
			"call_id", call.ID,
			"kind", string(results[i].Kind),
		)
	}

	if !o.cfg.ParallelTools || len(calls) < 2 {
		for i := range calls {
			invoke(ctx, i)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		g.Go(func() error {
			invoke(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
