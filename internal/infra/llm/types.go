// Package llm defines the model-agnostic language model abstraction.
// All types here are shared between the ChatModel interface and its adapters.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrModelUnavailable wraps every adapter failure: transport errors, non-2xx
// statuses, rate limiting, malformed streams and streams that end without a
// terminal event.
var ErrModelUnavailable = errors.New("language model unavailable")

// Role is the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the history sent to the model.
// Assistant messages that requested tools carry ToolCalls; tool messages
// carry the ToolCallID (and tool Name) they answer.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDefinition is the schema of a tool advertised to the model.
// Parameters holds a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// StepRequest is the input of one reasoning step.
type StepRequest struct {
	Messages []Message
	Tools    []ToolDefinition
	// Temperature overrides the provider default when set; zero is a valid
	// value. MaxTokens overrides it when non-zero.
	Temperature *float64
	MaxTokens   int
}

// pickTemperature returns the request temperature, else the provider default.
// A nil result leaves the vendor default in place.
func pickTemperature(req, def *float64) *float64 {
	if req != nil {
		return req
	}
	return def
}

// StepEventKind discriminates StepEvent.
type StepEventKind string

const (
	// StepDelta carries an incremental text fragment.
	StepDelta StepEventKind = "delta"
	// StepFinal terminates a step with the final answer.
	StepFinal StepEventKind = "final"
	// StepToolCalls terminates a step with a batch of tool requests.
	StepToolCalls StepEventKind = "tool_calls"
)

// StepEvent is one element of a streamed step. A well-formed step yields
// zero or more StepDelta events followed by exactly one terminal event.
type StepEvent struct {
	Kind StepEventKind
	// Delta is set for StepDelta.
	Delta string
	// Content is the full text of the step for StepFinal, and any text the
	// model produced before requesting tools for StepToolCalls.
	Content   string
	ToolCalls []ToolCall
}

// IsTerminal reports whether e ends a step.
func (e StepEvent) IsTerminal() bool {
	return e.Kind == StepFinal || e.Kind == StepToolCalls
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID        string // e.g. "llama3.1:8b", "gpt-4o-mini"
	Provider  string // e.g. "ollama", "openai"
	MaxTokens int    // maximum completion tokens requested per step
}

// unavailable wraps err with ErrModelUnavailable and the provider name.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrModelUnavailable, err)
}

// normalizeArguments turns empty or null tool arguments into an empty object.
func normalizeArguments(raw []byte) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}
