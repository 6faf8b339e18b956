// Ollama HTTP adapter.
// OllamaProvider calls the Ollama REST API using stdlib net/http.
// Endpoints used:
//   - POST /api/chat: streaming chat completion with tools (NDJSON)
//   - GET  /api/tags: health check (lists available models)
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	providerOllama = "ollama"

	healthCheckTimeout = 5 * time.Second
)

// OllamaProvider implements ChatModel against a running Ollama instance.
type OllamaProvider struct {
	baseURL     string
	model       string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
}

// NewOllamaProvider creates an OllamaProvider. Streams are bounded by the
// caller's context, so the client only limits the wait for response headers.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		},
	}
}

// WithDefaults sets the sampling defaults used when a StepRequest leaves them
// unset. A nil temperature keeps the Ollama default.
func (p *OllamaProvider) WithDefaults(temperature *float64, maxTokens int) *OllamaProvider {
	p.temperature = temperature
	p.maxTokens = maxTokens
	return p
}

// ─── internal Ollama JSON types ──────────────────────────────────────────────

type ollamaFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	DoneReason string            `json:"done_reason"`
	Done       bool              `json:"done"`
	Error      string            `json:"error"`
}

// ─── ChatModel implementation ────────────────────────────────────────────────

// StreamStep performs a streaming chat via POST /api/chat and decodes the
// NDJSON response chunk by chunk.
func (p *OllamaProvider) StreamStep(ctx context.Context, req StepRequest) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		body, err := json.Marshal(p.buildChatRequest(req))
		if err != nil {
			yield(StepEvent{}, unavailable(providerOllama, err))
			return
		}

		respBody, err := p.doPost(ctx, "/api/chat", body)
		if err != nil {
			yield(StepEvent{}, unavailable(providerOllama, err))
			return
		}
		defer respBody.Close() //nolint:errcheck

		var (
			text  strings.Builder
			calls []ToolCall
		)
		dec := json.NewDecoder(respBody)
		for {
			var chunk ollamaChatResponse
			if err := dec.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					err = errors.New("stream ended before done")
				}
				yield(StepEvent{}, unavailable(providerOllama, fmt.Errorf("decode chat stream: %w", err)))
				return
			}
			if chunk.Error != "" {
				yield(StepEvent{}, unavailable(providerOllama, errors.New(chunk.Error)))
				return
			}
			if delta := chunk.Message.Content; delta != "" {
				text.WriteString(delta)
				if !yield(StepEvent{Kind: StepDelta, Delta: delta}, nil) {
					return
				}
			}
			for _, tc := range chunk.Message.ToolCalls {
				calls = append(calls, ToolCall{
					// Ollama does not assign call ids.
					ID:        fmt.Sprintf("call_%d", len(calls)),
					Name:      tc.Function.Name,
					Arguments: normalizeArguments(tc.Function.Arguments),
				})
			}
			if chunk.Done {
				yield(terminalEvent(text.String(), calls), nil)
				return
			}
		}
	}
}

// buildChatRequest converts a StepRequest into the Ollama wire format.
func (p *OllamaProvider) buildChatRequest(req StepRequest) ollamaChatRequest {
	msgs := make([]ollamaChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := ollamaChatMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == RoleTool {
			om.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: tc.Name, Arguments: normalizeArguments(tc.Arguments)},
			})
		}
		msgs = append(msgs, om)
	}

	tools := make([]ollamaTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, ollamaTool{
			Type:     "function",
			Function: ollamaToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	return ollamaChatRequest{
		Model:    p.model,
		Messages: msgs,
		Tools:    tools,
		Stream:   true,
		Options:  p.buildChatOptions(req),
	}
}

// buildChatOptions converts sampling settings into the Ollama options map.
func (p *OllamaProvider) buildChatOptions(req StepRequest) map[string]any {
	temperature, maxTokens := pickTemperature(req.Temperature, p.temperature), req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	opts := map[string]any{}
	if temperature != nil {
		opts["temperature"] = *temperature
	}
	if maxTokens != 0 {
		opts["num_predict"] = maxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// ModelInfo returns static metadata for this provider/model.
func (p *OllamaProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: providerOllama, MaxTokens: p.maxTokens}
}

// HealthCheck calls GET /api/tags and returns nil if Ollama is reachable.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return unavailable(providerOllama, fmt.Errorf("healthcheck: %w", err))
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return unavailable(providerOllama, fmt.Errorf("healthcheck: status %d", resp.StatusCode))
	}
	return nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// doPost sends a POST request to baseURL+path and returns the response body.
// Caller is responsible for closing the returned ReadCloser.
func (p *OllamaProvider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("post %s: build request: %w", path, err)
	}
	req.Header.Set(headerContentType, mimeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close() //nolint:errcheck
		return nil, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// terminalEvent builds the event that ends a step.
func terminalEvent(content string, calls []ToolCall) StepEvent {
	if len(calls) > 0 {
		return StepEvent{Kind: StepToolCalls, Content: content, ToolCalls: calls}
	}
	return StepEvent{Kind: StepFinal, Content: content}
}
