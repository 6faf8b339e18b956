package chat

import (
	"encoding/json"
	"time"
)

// EventType names one kind of streamed output event.
type EventType string

const (
	EventMeta  EventType = "meta"
	EventToken EventType = "token"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event is one unit of the streamed response. A turn yields at most one meta
// event first, then tokens, then exactly one done or error event last.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
}

// IsTerminal reports whether e ends the stream.
func (e Event) IsTerminal() bool { return e.Type == EventDone || e.Type == EventError }

// Encode returns the event as a single JSON line without the trailing newline.
func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }

// Event bus topics published once per turn.
const (
	TopicTurnCompleted = "chat.turn.completed"
	TopicTurnFailed    = "chat.turn.failed"
)

// TurnRecord is the event bus payload describing a finished turn.
type TurnRecord struct {
	TurnID         string
	CallerID       int64
	ConversationID int64
	Rounds         int
	ToolCalls      int
	Tokens         int
	Duration       time.Duration
	// Err is empty for completed turns.
	Err string
}
