package llm

import (
	"context"
	"iter"
)

// ChatModel is the model-agnostic interface for one reasoning step.
// Adapters (Ollama, OpenAI, Anthropic) implement it so the orchestrator is
// never coupled to a specific vendor.
type ChatModel interface {
	// StreamStep sends the history and tool schemas to the model and yields
	// text deltas followed by exactly one terminal event. Any failure is
	// yielded as an error wrapping ErrModelUnavailable, after which the
	// sequence ends.
	StreamStep(ctx context.Context, req StepRequest) iter.Seq2[StepEvent, error]

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}

// Options selects and configures a provider.
type Options struct {
	Provider    string // "ollama" | "openai" | "anthropic"
	BaseURL     string
	Model       string
	APIKey      string
	Temperature *float64 // nil keeps the vendor default
	MaxTokens   int
}
