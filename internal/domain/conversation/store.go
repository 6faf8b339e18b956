// Package conversation persists chat conversations and their messages.
// Every operation runs through a scope, so reads and writes of one turn share
// the turn's transaction and are limited to the scope's caller.
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

// DefaultTitle is the title of a conversation before its first answered turn.
const DefaultTitle = "New Chat"

const titleRunes = 80

var (
	ErrNotFound    = errors.New("conversation not found")
	ErrInvalidRole = errors.New("invalid message role")
)

// Role is the author of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	ID           int64
	UserID       int64
	Title        string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	MessageCount int
}

type Message struct {
	ID             int64
	ConversationID int64
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// Store is stateless; the scope carries the caller and the transaction.
type Store struct{}

func NewStore() *Store { return &Store{} }

// Create starts a conversation owned by the scope's caller.
func (s *Store) Create(ctx context.Context, sc *scope.Scope, title string) (*Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := sqldb.Now()
	c := &Conversation{UserID: sc.CallerID(), Title: title, CreatedAt: now}
	err := sc.QueryRow(ctx,
		`INSERT INTO conversations (user_id, title, created_at) VALUES (?, ?, ?) RETURNING id`,
		[]any{c.UserID, c.Title, sqldb.FormatTime(now)},
		&c.ID)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// Get returns the conversation if the scope's caller owns it, ErrNotFound otherwise.
func (s *Store) Get(ctx context.Context, sc *scope.Scope, id int64) (*Conversation, error) {
	var (
		c         Conversation
		createdAt string
		updatedAt sql.NullString
	)
	err := sc.QueryRow(ctx, `
		SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.id = ? AND c.user_id = ?`,
		[]any{id, sc.CallerID()},
		&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt, &c.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if err := fillTimes(&c, createdAt, updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the caller's conversations with message counts, newest first.
func (s *Store) List(ctx context.Context, sc *scope.Scope) ([]Conversation, error) {
	out := make([]Conversation, 0)
	err := sc.Query(ctx, `
		SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.user_id = ?
		GROUP BY c.id, c.user_id, c.title, c.created_at, c.updated_at
		ORDER BY c.created_at DESC, c.id DESC`,
		[]any{sc.CallerID()},
		func(rows *sql.Rows) error {
			var (
				c         Conversation
				createdAt string
				updatedAt sql.NullString
			)
			if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt, &c.MessageCount); err != nil {
				return err
			}
			if err := fillTimes(&c, createdAt, updatedAt); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// Delete removes the caller's conversation and its messages.
func (s *Store) Delete(ctx context.Context, sc *scope.Scope, id int64) error {
	// Messages are removed explicitly so deletion does not depend on the
	// driver enforcing ON DELETE CASCADE.
	if _, err := s.Get(ctx, sc, id); err != nil {
		return err
	}
	if _, err := sc.Exec(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := sc.Exec(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, sc.CallerID()); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// AppendMessage adds a message to a conversation the caller owns.
func (s *Store) AppendMessage(ctx context.Context, sc *scope.Scope, conversationID int64, role Role, content string) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := sqldb.Now()
	m := &Message{ConversationID: conversationID, Role: role, Content: content, CreatedAt: now}
	err := sc.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		SELECT c.id, ?, ?, ? FROM conversations c WHERE c.id = ? AND c.user_id = ?
		RETURNING id`,
		[]any{string(role), content, sqldb.FormatTime(now), conversationID, sc.CallerID()},
		&m.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// LoadRecentHistory returns at most limit of the newest messages, oldest
// first. A limit <= 0 returns the whole conversation.
func (s *Store) LoadRecentHistory(ctx context.Context, sc *scope.Scope, conversationID int64, limit int) ([]Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = ? AND c.user_id = ?
		ORDER BY m.id DESC`
	args := []any{conversationID, sc.CallerID()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	out := make([]Message, 0)
	err := sc.Query(ctx, query, args, func(rows *sql.Rows) error {
		var (
			m         Message
			role      string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &createdAt); err != nil {
			return err
		}
		t, err := sqldb.ParseTime(createdAt)
		if err != nil {
			return fmt.Errorf("parse created_at: %w", err)
		}
		m.Role, m.CreatedAt = Role(role), t
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Messages returns every message of the conversation in order.
func (s *Store) Messages(ctx context.Context, sc *scope.Scope, conversationID int64) ([]Message, error) {
	return s.LoadRecentHistory(ctx, sc, conversationID, 0)
}

// UpdateTitle renames the caller's conversation.
func (s *Store) UpdateTitle(ctx context.Context, sc *scope.Scope, conversationID int64, title string) error {
	res, err := sc.Exec(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, sqldb.FormatTime(sqldb.Now()), conversationID, sc.CallerID())
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// TitleFrom derives a conversation title from the first user message: its
// first 80 runes, with "..." when truncated.
func TitleFrom(message string) string {
	r := []rune(message)
	if len(r) <= titleRunes {
		return message
	}
	return string(r[:titleRunes]) + "..."
}

func fillTimes(c *Conversation, createdAt string, updatedAt sql.NullString) error {
	t, err := sqldb.ParseTime(createdAt)
	if err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	c.CreatedAt = t
	if updatedAt.Valid {
		u, err := sqldb.ParseTime(updatedAt.String)
		if err != nil {
			return fmt.Errorf("parse updated_at: %w", err)
		}
		c.UpdatedAt = &u
	}
	return nil
}
