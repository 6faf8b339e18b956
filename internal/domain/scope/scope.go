// Package scope carries the caller identity and the transactional handle that
// every tool call and store write of one chat turn goes through.
//
// A turn either borrows the transaction the request boundary bound to its
// context, or owns a transaction opened just for the turn. Borrowed
// transactions are committed or rolled back by whoever bound them; owned ones
// are finished by Release.
package scope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

var (
	ErrMissingCaller = errors.New("scope: caller id is required")
	ErrReleased      = errors.New("scope: already released")
)

// Tx is a transaction the scope can run statements on and finish.
type Tx interface {
	sqldb.Querier
	Commit() error
	Rollback() error
}

// Beginner opens a new transaction for a turn that has none bound.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// BeginnerFunc adapts a function to Beginner.
type BeginnerFunc func(ctx context.Context) (Tx, error)

func (f BeginnerFunc) Begin(ctx context.Context) (Tx, error) { return f(ctx) }

// FromDB returns a Beginner backed by db.
func FromDB(db *sqldb.DB) Beginner {
	return BeginnerFunc(func(ctx context.Context) (Tx, error) {
		return db.Begin(ctx)
	})
}

type txKey struct{}

// WithTx binds tx to ctx so turns started under ctx reuse it.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction bound to ctx, if any.
func TxFrom(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok && tx != nil
}

// Scope is the execution context of one turn. Statements are serialized: a
// transaction runs on a single connection, so concurrent tool calls of one
// batch take turns instead of interleaving row iteration.
type Scope struct {
	callerID int64
	tx       Tx
	owned    bool

	mu       sync.Mutex
	released bool
}

// Open resolves the scope for a turn: reuse the transaction bound to ctx, or
// begin a new one owned by the returned scope.
func Open(ctx context.Context, b Beginner, callerID int64) (*Scope, error) {
	if callerID <= 0 {
		return nil, ErrMissingCaller
	}
	if tx, ok := TxFrom(ctx); ok {
		return &Scope{callerID: callerID, tx: tx}, nil
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scope: open: %w", err)
	}
	return &Scope{callerID: callerID, tx: tx, owned: true}, nil
}

// CallerID is the authenticated user every lookup must be filtered by.
func (s *Scope) CallerID() int64 { return s.callerID }

// Owned reports whether Release finishes the transaction.
func (s *Scope) Owned() bool { return s.owned }

// Release commits (commit=true) or rolls back an owned transaction. It is a
// no-op for borrowed transactions and on every call after the first.
func (s *Scope) Release(commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	if !s.owned {
		return nil
	}
	if commit {
		return s.tx.Commit()
	}
	return s.tx.Rollback()
}

// Exec runs a statement that returns no rows.
func (s *Scope) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrReleased
	}
	return s.tx.ExecContext(ctx, query, args...)
}

// QueryRow runs a single-row query and scans it into dest. sql.ErrNoRows is
// returned unchanged.
func (s *Scope) QueryRow(ctx context.Context, query string, args []any, dest ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}
	return s.tx.QueryRowContext(ctx, query, args...).Scan(dest...)
}

// Query runs query and calls each for every row. Rows are closed before Query returns.
func (s *Scope) Query(ctx context.Context, query string, args []any, each func(*sql.Rows) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := each(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
