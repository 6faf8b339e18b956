// Package tool holds the read-only data tools the agent can call during a
// turn, the registry that dispatches them by name and the schemas advertised
// to the model.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/unroll-ai/unroll/internal/domain/scope"
)

// Name identifies a tool.
type Name string

var (
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNotRegistered     = errors.New("tool not registered")
	ErrInvalidTool           = errors.New("invalid tool")
	ErrInvalidArguments      = errors.New("invalid arguments")
)

// Tool is the uniform capability every registered tool implements.
type Tool interface {
	Schema() Schema
	// Invoke runs the tool with arguments that already passed schema
	// validation. A nil error with an explanatory string is the answer for
	// lookups that find nothing.
	Invoke(ctx context.Context, sc *scope.Scope, args json.RawMessage) (string, error)
}

// Schema describes a tool to the model.
type Schema struct {
	Name        Name
	Description string
	Input       *jsonschema.Schema

	resolved *jsonschema.Resolved
}

// Parameters returns the JSON encoding of the input schema.
func (s Schema) Parameters() json.RawMessage {
	raw, err := json.Marshal(s.Input)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// Validate checks raw arguments against the resolved input schema.
func (s Schema) Validate(args json.RawMessage) error {
	if s.resolved == nil {
		return fmt.Errorf("%w: schema for %s is not resolved", ErrInvalidTool, s.Name)
	}
	var instance any
	if err := json.Unmarshal(normalizeArgs(args), &instance); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON", ErrInvalidArguments)
	}
	if err := s.resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// Handler is the typed body of a tool.
type Handler[In any] func(ctx context.Context, sc *scope.Scope, in In) (string, error)

type funcTool[In any] struct {
	schema Schema
	fn     Handler[In]
}

// NewFunc builds a Tool whose input schema is inferred from In. Use
// jsonschema struct tags for property descriptions; tune tweaks the inferred
// schema (defaults, bounds) before it is resolved.
func NewFunc[In any](name Name, description string, fn Handler[In], tune ...func(*jsonschema.Schema)) (Tool, error) {
	if name == "" || fn == nil {
		return nil, fmt.Errorf("%w: name and handler are required", ErrInvalidTool)
	}
	input, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: infer schema: %v", ErrInvalidTool, name, err)
	}
	for _, f := range tune {
		f(input)
	}
	resolved, err := input.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: resolve schema: %v", ErrInvalidTool, name, err)
	}
	return &funcTool[In]{
		schema: Schema{Name: name, Description: description, Input: input, resolved: resolved},
		fn:     fn,
	}, nil
}

func (t *funcTool[In]) Schema() Schema { return t.schema }

func (t *funcTool[In]) Invoke(ctx context.Context, sc *scope.Scope, args json.RawMessage) (string, error) {
	var in In
	if err := json.Unmarshal(normalizeArgs(args), &in); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return t.fn(ctx, sc, in)
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || string(args) == "null" {
		return json.RawMessage(`{}`)
	}
	return args
}
