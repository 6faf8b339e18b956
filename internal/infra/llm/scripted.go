package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
)

const providerScripted = "scripted"

// ScriptStep is one scripted model response.
type ScriptStep struct {
	// Deltas are streamed before the terminal event.
	Deltas []string
	// ToolCalls, when set, end the step with a tool request batch.
	ToolCalls []ToolCall
	// Final overrides the final content; it defaults to the joined deltas.
	Final string
	// Err fails the step after the deltas were streamed.
	Err error
}

// ScriptedModel is a deterministic in-memory ChatModel. Steps are consumed in
// order; once exhausted the Respond function answers, or the last step
// repeats when Respond is nil.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []ScriptStep
	next     int
	requests []StepRequest

	// Respond computes a step from the request when the script is exhausted.
	Respond func(req StepRequest) ScriptStep
}

// NewScriptedModel returns a model that plays steps in order.
func NewScriptedModel(steps ...ScriptStep) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// StreamStep plays the next scripted step.
func (m *ScriptedModel) StreamStep(ctx context.Context, req StepRequest) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		step, err := m.take(req)
		if err != nil {
			yield(StepEvent{}, unavailable(providerScripted, err))
			return
		}

		for _, d := range step.Deltas {
			if err := ctx.Err(); err != nil {
				yield(StepEvent{}, unavailable(providerScripted, err))
				return
			}
			if !yield(StepEvent{Kind: StepDelta, Delta: d}, nil) {
				return
			}
		}
		if step.Err != nil {
			yield(StepEvent{}, unavailable(providerScripted, step.Err))
			return
		}

		content := step.Final
		if content == "" {
			content = strings.Join(step.Deltas, "")
		}
		yield(terminalEvent(content, step.ToolCalls), nil)
	}
}

func (m *ScriptedModel) take(req StepRequest) (ScriptStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, cloneRequest(req))
	switch {
	case m.next < len(m.steps):
		step := m.steps[m.next]
		m.next++
		return step, nil
	case m.Respond != nil:
		return m.Respond(req), nil
	case len(m.steps) > 0:
		return m.steps[len(m.steps)-1], nil
	default:
		return ScriptStep{}, errors.New("script is empty")
	}
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []StepRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StepRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// ModelInfo returns static metadata.
func (m *ScriptedModel) ModelInfo() ModelMeta {
	return ModelMeta{ID: "script", Provider: providerScripted}
}

// HealthCheck always succeeds.
func (m *ScriptedModel) HealthCheck(context.Context) error { return nil }

func cloneRequest(req StepRequest) StepRequest {
	req.Messages = append([]Message(nil), req.Messages...)
	req.Tools = append([]ToolDefinition(nil), req.Tools...)
	return req
}

// NewOfflineModel returns a ScriptedModel that needs no network: it looks up
// the caller's jobs with the named tool and then reports the tool output.
func NewOfflineModel(lookupTool string) *ScriptedModel {
	m := &ScriptedModel{}
	m.Respond = func(req StepRequest) ScriptStep {
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == RoleTool {
			last := req.Messages[n-1]
			return ScriptStep{Deltas: []string{
				"Offline mode. ",
				fmt.Sprintf("Result of %s:\n", last.Name),
				last.Content,
			}}
		}
		return ScriptStep{ToolCalls: []ToolCall{{ID: "call_0", Name: lookupTool, Arguments: []byte(`{}`)}}}
	}
	return m
}
