package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/infra/llm"
)

// ResultKind classifies the outcome of an invocation.
type ResultKind string

const (
	ResultOK               ResultKind = "ok"
	ResultUnknownTool      ResultKind = "unknown_tool"
	ResultInvalidArguments ResultKind = "invalid_arguments"
	ResultExecutionFailed  ResultKind = "execution_failed"
)

// Result is the text handed back to the model as a tool message. Failures
// are data: Content explains them and IsError is set.
type Result struct {
	Content string
	IsError bool
	Kind    ResultKind
}

// Registry maps tool names to tools. Registration happens at startup;
// lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[Name]Tool
	order []Name
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[Name]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t == nil || t.Schema().Name == "" {
		return ErrInvalidTool
	}
	name := t.Schema().Name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name Name) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotRegistered, name)
	}
	return t, nil
}

// Schemas lists tool schemas in registration order.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

// Definitions converts Schemas into the model adapter's tool definitions.
func (r *Registry) Definitions() []llm.ToolDefinition {
	schemas := r.Schemas()
	out := make([]llm.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, llm.ToolDefinition{
			Name:        string(s.Name),
			Description: s.Description,
			Parameters:  s.Parameters(),
		})
	}
	return out
}

// Invoke validates args and runs the named tool under sc. It never returns a
// Go error: unknown tools, invalid arguments and failed lookups are encoded
// in the Result so the model can recover.
func (r *Registry) Invoke(ctx context.Context, sc *scope.Scope, name string, args json.RawMessage) Result {
	t, err := r.Get(Name(name))
	if err != nil {
		return Result{Content: fmt.Sprintf("error: unknown tool %q", name), IsError: true, Kind: ResultUnknownTool}
	}
	if err := t.Schema().Validate(args); err != nil {
		return invalidArguments(name, err)
	}

	out, err := t.Invoke(ctx, sc, args)
	if errors.Is(err, ErrInvalidArguments) {
		return invalidArguments(name, err)
	}
	if err != nil {
		return Result{Content: fmt.Sprintf("error: %s failed: %v", name, err), IsError: true, Kind: ResultExecutionFailed}
	}
	return Result{Content: out, Kind: ResultOK}
}

func invalidArguments(name string, err error) Result {
	detail := strings.TrimPrefix(err.Error(), ErrInvalidArguments.Error()+": ")
	return Result{
		Content: fmt.Sprintf("error: invalid arguments for %s: %s", name, detail),
		IsError: true,
		Kind:    ResultInvalidArguments,
	}
}
