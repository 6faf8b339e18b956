package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/unroll-ai/unroll/internal/domain/tool"
)

// ToolHandler describes the tools the assistant can call.
type ToolHandler struct {
	registry *tool.Registry
}

func NewToolHandler(registry *tool.Registry) *ToolHandler {
	return &ToolHandler{registry: registry}
}

type toolResponse struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ListTools handles GET /api/v1/tools, in registration order.
func (h *ToolHandler) ListTools(w http.ResponseWriter, _ *http.Request) {
	schemas := h.registry.Schemas()
	out := make([]toolResponse, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, toolResponse{
			Name:        string(s.Name),
			Description: s.Description,
			InputSchema: s.Parameters(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "meta": map[string]int{"total": len(out)}})
}
