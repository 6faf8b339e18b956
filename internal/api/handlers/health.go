package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/unroll-ai/unroll/internal/infra/llm"
)

// Pinger is satisfied by *sql.DB and *sqldb.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db      Pinger
	model   llm.ChatModel
	logger  *slog.Logger
	timeout time.Duration
}

func NewHealthHandler(db Pinger, model llm.ChatModel, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, model: model, logger: logger, timeout: 5 * time.Second}
}

// Live handles GET /health. It never touches dependencies.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready: 200 when the database and the model
// both answer, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "model": "ok"}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness: database", "error", err)
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := h.model.HealthCheck(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness: model", "error", err, "provider", h.model.ModelInfo().Provider)
		checks["model"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
