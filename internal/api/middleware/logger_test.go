package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unroll-ai/unroll/internal/api/middleware"
	"github.com/unroll-ai/unroll/internal/infra/logging"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, wantLevel: "INFO"},
		{name: "not found", status: http.StatusNotFound, wantLevel: "INFO"},
		{name: "server error", status: http.StatusBadGateway, wantLevel: "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := logging.New(logging.WithWriter(&buf), logging.WithJSON(true), logging.WithLevel(slog.LevelDebug))
			h := chimw.RequestID(middleware.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
			}
			if rec["level"] != tt.wantLevel || rec["msg"] != "http request" {
				t.Errorf("unexpected record: %v", rec)
			}
			if rec["path"] != "/health" || rec["method"] != http.MethodGet {
				t.Errorf("unexpected request fields: %v", rec)
			}
			if status, _ := rec["status"].(float64); int(status) != tt.status {
				t.Errorf("status = %v; want %d", rec["status"], tt.status)
			}
			if bytesOut, _ := rec["bytes"].(float64); bytesOut != 4 {
				t.Errorf("bytes = %v; want 4", rec["bytes"])
			}
			if id, _ := rec["request_id"].(string); id == "" {
				t.Error("expected a request id")
			}
		})
	}
}
