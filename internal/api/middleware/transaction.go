package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unroll-ai/unroll/internal/domain/scope"
)

// Transaction opens one transaction per request and binds it to the request
// context, so every scope opened while serving the request borrows it.
//
// The transaction commits when the handler returns with a status below 500.
// It rolls back when the handler fails with 5xx, when the client went away
// before the handler returned, or when the handler panics (the panic is
// re-raised for the recoverer).
func Transaction(beginner scope.Beginner, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tx, err := beginner.Begin(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "begin request transaction", "error", err)
				writeJSONError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}

			finished := false
			defer func() {
				if finished {
					return
				}
				_ = tx.Rollback()
				if p := recover(); p != nil {
					panic(p)
				}
			}()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(scope.WithTx(ctx, tx)))
			finished = true

			if ctx.Err() != nil || ww.Status() >= http.StatusInternalServerError {
				if err := tx.Rollback(); err != nil {
					logger.WarnContext(ctx, "rollback request transaction", "error", err)
				}
				return
			}
			if err := tx.Commit(); err != nil {
				logger.ErrorContext(ctx, "commit request transaction", "error", err, "path", r.URL.Path)
			}
		})
	}
}
