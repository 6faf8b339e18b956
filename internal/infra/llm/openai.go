package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerOpenAI = "openai"

// OpenAIProvider implements ChatModel with the OpenAI Chat Completions API.
// Any OpenAI-compatible endpoint works through BaseURL.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature *float64
	maxTokens   int
}

// NewOpenAIProvider builds a provider from Options. An empty BaseURL uses the
// SDK default; an empty APIKey falls back to OPENAI_API_KEY.
func NewOpenAIProvider(o Options, extra ...option.RequestOption) *OpenAIProvider {
	opts := make([]option.RequestOption, 0, len(extra)+2)
	if o.APIKey != "" {
		opts = append(opts, option.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	opts = append(opts, extra...)

	client := openai.NewClient(opts...)
	model := o.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIProvider{client: &client, model: model, temperature: o.Temperature, maxTokens: o.MaxTokens}
}

// aggCall aggregates partial tool call deltas (id, name, arguments) until the
// stream finishes.
type aggCall struct {
	index int64
	id    string
	name  string
	args  strings.Builder
}

// StreamStep streams a chat completion, forwarding text deltas and
// assembling tool calls by index.
func (p *OpenAIProvider) StreamStep(ctx context.Context, req StepRequest) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		params, err := p.buildParams(req)
		if err != nil {
			yield(StepEvent{}, unavailable(providerOpenAI, err))
			return
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close() //nolint:errcheck

		var (
			text     strings.Builder
			agg      = map[int64]*aggCall{}
			finished bool
		)
		for stream.Next() {
			chunk := stream.Current()
			for _, ch := range chunk.Choices {
				if delta := ch.Delta.Content; delta != "" {
					text.WriteString(delta)
					if !yield(StepEvent{Kind: StepDelta, Delta: delta}, nil) {
						return
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					ac, ok := agg[tc.Index]
					if !ok {
						ac = &aggCall{index: tc.Index}
						agg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					ac.args.WriteString(tc.Function.Arguments)
				}
				if ch.FinishReason != "" {
					finished = true
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StepEvent{}, unavailable(providerOpenAI, err))
			return
		}
		if !finished {
			yield(StepEvent{}, unavailable(providerOpenAI, errors.New("stream ended without finish reason")))
			return
		}
		yield(terminalEvent(text.String(), collectCalls(agg)), nil)
	}
}

// collectCalls orders aggregated tool calls by their stream index.
func collectCalls(agg map[int64]*aggCall) []ToolCall {
	if len(agg) == 0 {
		return nil
	}
	ordered := make([]*aggCall, 0, len(agg))
	for _, ac := range agg {
		ordered = append(ordered, ac)
	}
	slices.SortFunc(ordered, func(a, b *aggCall) int { return int(a.index - b.index) })

	calls := make([]ToolCall, 0, len(ordered))
	for _, ac := range ordered {
		id := ac.id
		if id == "" {
			id = fmt.Sprintf("call_%d", ac.index)
		}
		calls = append(calls, ToolCall{ID: id, Name: ac.name, Arguments: normalizeArguments([]byte(ac.args.String()))})
	}
	return calls
}

// buildParams assembles the request parameters including tool definitions.
func (p *OpenAIProvider) buildParams(req StepRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: buildOpenAIMessages(req.Messages),
	}

	temperature, maxTokens := pickTemperature(req.Temperature, p.temperature), req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	if maxTokens != 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	if len(req.Tools) == 0 {
		return params, nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		var schema openai.FunctionParameters
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return params, fmt.Errorf("tool %s: decode parameters: %w", t.Name, err)
			}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  schema,
			},
		})
	}
	params.Tools = tools
	return params, nil
}

// buildOpenAIMessages converts history into chat messages. Tool results stay
// in place after the assistant message that requested them.
func buildOpenAIMessages(history []Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(normalizeArguments(tc.Arguments)),
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}

// ModelInfo returns static metadata for this provider/model.
func (p *OpenAIProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: providerOpenAI, MaxTokens: p.maxTokens}
}

// HealthCheck retrieves the configured model.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if _, err := p.client.Models.Get(ctx, p.model); err != nil {
		return unavailable(providerOpenAI, fmt.Errorf("healthcheck: %w", err))
	}
	return nil
}
