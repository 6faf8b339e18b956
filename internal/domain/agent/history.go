package agent

import "github.com/unroll-ai/unroll/internal/infra/llm"

// SeedHistory builds the initial model history: the system prompt, the
// recent transcript, then the user message unless the transcript already
// ends with that same user message.
func SeedHistory(systemPrompt string, recent []llm.Message, userMessage string) []llm.Message {
	out := make([]llm.Message, 0, len(recent)+2)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	out = append(out, recent...)

	if n := len(recent); n > 0 {
		last := recent[n-1]
		if last.Role == llm.RoleUser && last.Content == userMessage {
			return out
		}
	}
	return append(out, llm.Message{Role: llm.RoleUser, Content: userMessage})
}
