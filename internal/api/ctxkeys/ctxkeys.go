// Package ctxkeys holds the typed context keys shared by middleware and
// handlers. It is a leaf package so api and api/handlers can both import it.
package ctxkeys

import "context"

// Key is the named type for all API context keys. context.Value compares
// type and value, so these never collide with plain string keys.
type Key string

// UserID is the context key for the authenticated caller. Injected by the
// auth middleware from the token claims.
const UserID Key = "user_id"

// WithUserID binds the authenticated caller to ctx.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, UserID, id)
}

// UserIDFrom returns the caller bound by WithUserID. ok is false when no
// positive id is bound.
func UserIDFrom(ctx context.Context) (id int64, ok bool) {
	id, ok = ctx.Value(UserID).(int64)
	return id, ok && id > 0
}
