package handlers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unroll-ai/unroll/internal/domain/chat"
	"github.com/unroll-ai/unroll/internal/domain/conversation"
)

// ChatService is the part of domain/chat the handlers use.
type ChatService interface {
	Stream(ctx context.Context, in chat.Input) iter.Seq[chat.Event]
	List(ctx context.Context, callerID int64) ([]conversation.Conversation, error)
	Get(ctx context.Context, callerID, id int64) (*chat.Detail, error)
	Delete(ctx context.Context, callerID, id int64) error
}

type ChatHandler struct {
	chatService ChatService
	logger      *slog.Logger
}

func NewChatHandler(chatService ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

// Chat handles POST /api/v1/chat. The response is a server-sent event
// stream with one `data: <json>` frame per turn event. Request errors are
// plain JSON; once the stream has started, failures arrive as an error
// event.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID != nil && *req.ConversationID <= 0 {
		writeError(w, http.StatusBadRequest, "conversation_id must be positive")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	prepareEventStream(w)

	stream := h.chatService.Stream(r.Context(), chat.Input{
		CallerID:       caller,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	for ev := range stream {
		if err := writeEvent(w, ev); err != nil {
			// Leaving the loop tells the turn its consumer is gone.
			h.logger.DebugContext(r.Context(), "event stream closed by client", "error", err)
			return
		}
		flusher.Flush()
	}
}

func prepareEventStream(w http.ResponseWriter) {
	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeEvent(w http.ResponseWriter, ev chat.Event) error {
	b, err := ev.Encode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// ===== CONVERSATIONS =====

type conversationResponse struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    *string `json:"updated_at"`
	MessageCount int     `json:"message_count"`
}

type messageResponse struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationDetailResponse struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt *string           `json:"updated_at"`
	Messages  []messageResponse `json:"messages"`
}

// ListConversations handles GET /api/v1/chat/conversations.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	convs, err := h.chatService.List(r.Context(), caller)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list conversations", "error", err, "user_id", caller)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationResponse{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    formatTime(c.CreatedAt),
			UpdatedAt:    formatTimePtr(c.UpdatedAt),
			MessageCount: c.MessageCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "meta": map[string]int{"total": len(out)}})
}

// GetConversation handles GET /api/v1/chat/conversations/{id}.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.conversationTarget(w, r)
	if !ok {
		return
	}

	d, err := h.chatService.Get(r.Context(), caller, id)
	if err != nil {
		h.writeConversationError(w, r, id, err)
		return
	}

	msgs := make([]messageResponse, 0, len(d.Messages))
	for _, m := range d.Messages {
		msgs = append(msgs, messageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: formatTime(m.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": conversationDetailResponse{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: formatTime(d.CreatedAt),
		UpdatedAt: formatTimePtr(d.UpdatedAt),
		Messages:  msgs,
	}})
}

// DeleteConversation handles DELETE /api/v1/chat/conversations/{id}.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.conversationTarget(w, r)
	if !ok {
		return
	}

	if err := h.chatService.Delete(r.Context(), caller, id); err != nil {
		h.writeConversationError(w, r, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) conversationTarget(w http.ResponseWriter, r *http.Request) (caller, id int64, ok bool) {
	caller, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return 0, 0, false
	}
	id, err = parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return caller, id, true
}

func (h *ChatHandler) writeConversationError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Conversation %d not found", id))
		return
	}
	h.logger.ErrorContext(r.Context(), "conversation request failed", "error", err, "conversation_id", id)
	writeError(w, http.StatusInternalServerError, "conversation request failed")
}
