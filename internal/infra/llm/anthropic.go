package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	providerAnthropic = "anthropic"

	defaultAnthropicMaxTokens = 4096
)

// AnthropicProvider implements ChatModel with the Anthropic Messages API.
type AnthropicProvider struct {
	client      *anthropic.Client
	model       anthropic.Model
	temperature *float64
	maxTokens   int
}

// NewAnthropicProvider builds a provider from Options. An empty APIKey falls
// back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(o Options, extra ...option.RequestOption) *AnthropicProvider {
	opts := make([]option.RequestOption, 0, len(extra)+2)
	if o.APIKey != "" {
		opts = append(opts, option.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	opts = append(opts, extra...)

	client := anthropic.NewClient(opts...)
	model := anthropic.Model(o.Model)
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	maxTokens := o.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{client: &client, model: model, temperature: o.Temperature, maxTokens: maxTokens}
}

// StreamStep streams a message, forwarding text deltas and turning tool_use
// blocks of the accumulated message into tool calls.
func (p *AnthropicProvider) StreamStep(ctx context.Context, req StepRequest) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		params, err := p.buildParams(req)
		if err != nil {
			yield(StepEvent{}, unavailable(providerAnthropic, err))
			return
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close() //nolint:errcheck

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				yield(StepEvent{}, unavailable(providerAnthropic, fmt.Errorf("accumulate stream: %w", err)))
				return
			}
			if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
					if !yield(StepEvent{Kind: StepDelta, Delta: d.Text}, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StepEvent{}, unavailable(providerAnthropic, err))
			return
		}
		if message.StopReason == "" {
			yield(StepEvent{}, unavailable(providerAnthropic, errors.New("stream ended without stop reason")))
			return
		}

		content, calls, err := fromAnthropicContent(message.Content)
		if err != nil {
			yield(StepEvent{}, unavailable(providerAnthropic, err))
			return
		}
		yield(terminalEvent(content, calls), nil)
	}
}

// fromAnthropicContent splits response blocks into text and tool calls.
func fromAnthropicContent(blocks []anthropic.ContentBlockUnion) (string, []ToolCall, error) {
	var (
		text  string
		calls []ToolCall
	)
	for _, block := range blocks {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return "", nil, fmt.Errorf("tool_use %s: encode input: %w", block.Name, err)
			}
			calls = append(calls, ToolCall{ID: block.ID, Name: block.Name, Arguments: normalizeArguments(args)})
		}
	}
	return text, calls, nil
}

// buildParams assembles the request: system prompt, messages and tools.
func (p *AnthropicProvider) buildParams(req StepRequest) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: int64(maxTokens),
	}

	if temperature := pickTemperature(req.Temperature, p.temperature); temperature != nil {
		params.Temperature = anthropic.Float(*temperature)
	}

	system, messages, err := buildAnthropicMessages(req.Messages)
	if err != nil {
		return params, err
	}
	params.System = system
	params.Messages = messages

	tools, err := buildAnthropicTools(req.Tools)
	if err != nil {
		return params, err
	}
	params.Tools = tools
	return params, nil
}

// buildAnthropicMessages converts history into the Messages API shape.
// System messages become the system prompt; consecutive tool results are
// grouped into one user message of tool_result blocks.
func buildAnthropicMessages(history []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var (
		system   []anthropic.TextBlockParam
		messages []anthropic.MessageParam
		results  []anthropic.ContentBlockParamUnion
	)
	flushResults := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if err := json.Unmarshal(normalizeArguments(tc.Arguments), &input); err != nil {
					return nil, nil, fmt.Errorf("tool call %s: decode arguments: %w", tc.Name, err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flushResults()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flushResults()
	return system, messages, nil
}

// buildAnthropicTools converts tool definitions, copying the schema's
// properties and required list into the tool input schema.
func buildAnthropicTools(defs []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(d.Parameters) > 0 {
			if err := json.Unmarshal(d.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: decode parameters: %w", d.Name, err)
			}
		}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		}, d.Name)
		tool.OfTool.Description = anthropic.String(d.Description)
		tools = append(tools, tool)
	}
	return tools, nil
}

// ModelInfo returns static metadata for this provider/model.
func (p *AnthropicProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: string(p.model), Provider: providerAnthropic, MaxTokens: p.maxTokens}
}

// HealthCheck retrieves the configured model from the models endpoint.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var info map[string]any
	if err := p.client.Get(ctx, "v1/models/"+string(p.model), nil, &info); err != nil {
		return unavailable(providerAnthropic, fmt.Errorf("healthcheck: %w", err))
	}
	return nil
}
