package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unroll-ai/unroll/internal/domain/agent"
	"github.com/unroll-ai/unroll/internal/domain/conversation"
	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/domain/tool"
	"github.com/unroll-ai/unroll/internal/infra/eventbus"
	"github.com/unroll-ai/unroll/internal/infra/llm"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
	"github.com/unroll-ai/unroll/internal/infra/sqlite"
)

type fixture struct {
	db    *sqldb.DB
	model *llm.ScriptedModel
	bus   *eventbus.Bus
	svc   *Service
	user  int64
	other int64
}

func newFixture(t *testing.T, cfg agent.Config, steps ...llm.ScriptStep) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, cfg, Config{SystemPrompt: "system"}, steps...)
}

func newFixtureWith(t *testing.T, beginner scope.Beginner, cfg agent.Config, chatCfg Config, steps ...llm.ScriptStep) *fixture {
	t.Helper()
	db, err := sqlite.NewMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("sqlite.NewMemoryDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	if beginner == nil {
		beginner = scope.FromDB(db)
	}
	if tb, ok := beginner.(*trackingBeginner); ok {
		tb.db = db
	}

	f := &fixture{db: db, model: llm.NewScriptedModel(steps...), bus: eventbus.New()}
	f.user = createUser(t, db, "recruiter@example.com")
	f.other = createUser(t, db, "other@example.com")
	orch := agent.NewOrchestrator(f.model, registry, cfg, nil)
	f.svc = NewService(beginner, conversation.NewStore(), orch, chatCfg, f.bus, nil)
	return f
}

func createUser(t *testing.T, db *sqldb.DB, email string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO users (email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		email, "Chat User", "x", sqldb.FormatTime(sqldb.Now()),
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func drain(ctx context.Context, svc *Service, in Input) []Event {
	var events []Event
	for ev := range svc.Stream(ctx, in) {
		events = append(events, ev)
	}
	return events
}

// shape renders the event types as a compact string such as "meta token token done".
func shape(events []Event) string {
	parts := make([]string, len(events))
	for i, ev := range events {
		parts[i] = string(ev.Type)
	}
	return strings.Join(parts, " ")
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := f.db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *fixture) messages(t *testing.T, conversationID int64) []conversation.Message {
	t.Helper()
	d, err := f.svc.Get(context.Background(), f.user, conversationID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return d.Messages
}

func ptr[T any](v T) *T { return &v }

func expectTurnEvent(t *testing.T, ch <-chan eventbus.Event) TurnRecord {
	t.Helper()
	select {
	case ev := <-ch:
		rec, ok := ev.Payload.(TurnRecord)
		if !ok {
			t.Fatalf("unexpected payload %T", ev.Payload)
		}
		return rec
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for turn event")
		return TurnRecord{}
	}
}

// ============================================================================
// Successful turns
// ============================================================================

func TestStream_NewConversation_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"Hi", " there"}})
	completed := f.bus.Subscribe(TopicTurnCompleted)

	events := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "hello"})
	if got := shape(events); got != "meta token token done" {
		t.Fatalf("event shape = %q", got)
	}
	convID := events[0].ConversationID
	if convID == 0 {
		t.Fatal("meta event without conversation id")
	}

	msgs := f.messages(t, convID)
	if len(msgs) != 2 || msgs[0].Role != conversation.RoleUser || msgs[1].Content != "Hi there" {
		t.Errorf("unexpected transcript: %+v", msgs)
	}

	d, err := f.svc.Get(context.Background(), f.user, convID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Title != "hello" {
		t.Errorf("title = %q; want hello", d.Title)
	}

	// Fresh conversation: the model sees the system prompt and exactly one user message.
	req := f.model.Requests()[0]
	if len(req.Messages) != 2 || req.Messages[1].Content != "hello" {
		t.Errorf("unexpected seeded history: %+v", req.Messages)
	}

	rec := expectTurnEvent(t, completed)
	if rec.ConversationID != convID || rec.Tokens != 2 || rec.Err != "" || rec.TurnID == "" {
		t.Errorf("unexpected turn record: %+v", rec)
	}
}

func TestStream_ToolRound_PersistsOnlyUserAndAssistant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{},
		llm.ScriptStep{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: string(tool.GetAllJobs), Arguments: json.RawMessage(`{}`)},
			{ID: "b", Name: string(tool.GetAllResumes), Arguments: json.RawMessage(`{}`)},
		}},
		llm.ScriptStep{Deltas: []string{"You have no jobs."}},
	)

	events := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "jobs?"})
	if got := shape(events); got != "meta token done" {
		t.Fatalf("event shape = %q", got)
	}

	second := f.model.Requests()[1].Messages
	var results []llm.Message
	for _, m := range second {
		if m.Role == llm.RoleTool {
			results = append(results, m)
		}
	}
	if len(results) != 2 || results[0].ToolCallID != "a" || results[1].ToolCallID != "b" {
		t.Fatalf("expected two tool results in request order, got %+v", results)
	}

	msgs := f.messages(t, events[0].ConversationID)
	if len(msgs) != 2 {
		t.Errorf("expected only user and assistant rows, got %+v", msgs)
	}
}

func TestStream_EmptyFinalAfterTools_DoneWithoutAssistantRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{},
		llm.ScriptStep{ToolCalls: []llm.ToolCall{{ID: "a", Name: string(tool.GetAllJobs)}}},
		llm.ScriptStep{},
	)

	events := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "anything?"})
	if got := shape(events); got != "meta done" {
		t.Fatalf("event shape = %q", got)
	}
	msgs := f.messages(t, events[0].ConversationID)
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleUser {
		t.Errorf("expected only the user message, got %+v", msgs)
	}
	d, err := f.svc.Get(context.Background(), f.user, events[0].ConversationID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Title != conversation.DefaultTitle {
		t.Errorf("title = %q; want default", d.Title)
	}
}

func TestStream_ExistingConversation_SeedsCappedHistoryOnce(t *testing.T) {
	t.Parallel()

	f := newFixtureWith(t, nil, agent.Config{}, Config{SystemPrompt: "system", HistoryLimit: 2},
		llm.ScriptStep{Deltas: []string{"answer"}})

	first := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "first question"})
	convID := first[0].ConversationID
	second := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "second question", ConversationID: &convID})
	if got := shape(second); got != "meta token done" {
		t.Fatalf("event shape = %q", got)
	}
	if second[0].ConversationID != convID {
		t.Errorf("meta conversation id = %d; want %d", second[0].ConversationID, convID)
	}

	req := f.model.Requests()[1]
	// system + last two stored messages, the newest being the new user message
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(req.Messages), req.Messages)
	}
	if req.Messages[1].Content != "answer" || req.Messages[2].Content != "second question" {
		t.Errorf("unexpected history window: %+v", req.Messages)
	}
	users := 0
	for _, m := range req.Messages {
		if m.Content == "second question" {
			users++
		}
	}
	if users != 1 {
		t.Errorf("user message appears %d times; want 1", users)
	}

	d, err := f.svc.Get(context.Background(), f.user, convID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Title != "first question" || len(d.Messages) != 4 {
		t.Errorf("title=%q messages=%d; want first question, 4", d.Title, len(d.Messages))
	}
}

// ============================================================================
// Failed turns
// ============================================================================

func TestStream_ForeignConversation_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"x"}})
	owned := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "mine"})
	convID := owned[0].ConversationID

	events := drain(context.Background(), f.svc, Input{CallerID: f.other, Message: "let me in", ConversationID: &convID})
	if len(events) != 1 || events[0].Type != EventError || events[0].Content != "Conversation not found" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM messages WHERE content = ?`, "let me in"); n != 0 {
		t.Errorf("expected no message written, found %d", n)
	}
	if got := len(f.model.Requests()); got != 1 {
		t.Errorf("model called %d times; want 1", got)
	}

	missing := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "hi", ConversationID: ptr(int64(9999))})
	if shape(missing) != "error" {
		t.Errorf("unexpected events for missing conversation: %+v", missing)
	}
}

func TestStream_ModelFailure_KeepsUserMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"par"}, Err: errors.New("rate limited")})
	failed := f.bus.Subscribe(TopicTurnFailed)

	events := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "hello"})
	if got := shape(events); got != "meta token error" {
		t.Fatalf("event shape = %q", got)
	}
	last := events[len(events)-1]
	if last.Content != "The assistant is temporarily unavailable. Please try again." {
		t.Errorf("unexpected error content %q", last.Content)
	}
	if strings.Contains(last.Content, "rate limited") {
		t.Error("internal error text leaked to the stream")
	}

	msgs := f.messages(t, events[0].ConversationID)
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("expected only the user message, got %+v", msgs)
	}

	rec := expectTurnEvent(t, failed)
	if !strings.Contains(rec.Err, "rate limited") {
		t.Errorf("turn record should carry the internal error, got %q", rec.Err)
	}
}

func TestStream_ToolRoundLimit_IsErrorEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{MaxToolRounds: 2},
		llm.ScriptStep{ToolCalls: []llm.ToolCall{{ID: "x", Name: string(tool.GetAllJobs)}}})

	events := drain(context.Background(), f.svc, Input{CallerID: f.user, Message: "loop"})
	if got := shape(events); got != "meta error" {
		t.Fatalf("event shape = %q", got)
	}
	if events[1].Content != msgToolRoundLimit {
		t.Errorf("unexpected error content %q", events[1].Content)
	}
	if got := len(f.model.Requests()); got != 3 {
		t.Errorf("model steps = %d; want 3", got)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM messages WHERE role = 'assistant'`); n != 0 {
		t.Errorf("expected no assistant rows, got %d", n)
	}
}

func TestStream_EmptyMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"x"}})
	events := drain(context.Background(), f.svc, Input{CallerID: f.user})
	if len(events) != 1 || events[0].Content != msgEmptyMessage {
		t.Fatalf("unexpected events: %+v", events)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM conversations`); n != 0 {
		t.Errorf("expected no conversation, got %d", n)
	}
}

func TestStream_MissingCaller(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"x"}})
	events := drain(context.Background(), f.svc, Input{Message: "hi"})
	if shape(events) != "error" || events[0].Content != msgInternal {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// ============================================================================
// Cancellation and transactions
// ============================================================================

func TestStream_ConsumerStops_RollsBackOwnedTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"a", "b", "c"}})
	failed := f.bus.Subscribe(TopicTurnFailed)

	var seen []Event
	for ev := range f.svc.Stream(context.Background(), Input{CallerID: f.user, Message: "hello"}) {
		seen = append(seen, ev)
		if ev.Type == EventToken {
			break
		}
	}
	if got := shape(seen); got != "meta token" {
		t.Fatalf("event shape = %q", got)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM messages`); n != 0 {
		t.Errorf("expected rollback of the turn, found %d messages", n)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM conversations`); n != 0 {
		t.Errorf("expected rollback of the turn, found %d conversations", n)
	}
	expectTurnEvent(t, failed)
}

func TestStream_CancelledContext_NoTerminalEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"a"}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []Event
	for ev := range f.svc.Stream(ctx, Input{CallerID: f.user, Message: "hello"}) {
		seen = append(seen, ev)
		if ev.Type == EventMeta {
			cancel()
		}
	}
	if got := shape(seen); got != "meta" {
		t.Fatalf("event shape = %q", got)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM messages`); n != 0 {
		t.Errorf("expected nothing persisted, found %d messages", n)
	}
}

func TestStream_BorrowedTransaction_LeftToCaller(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"ok"}})
	tx, err := f.db.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	ctx := scope.WithTx(context.Background(), tx)

	events := drain(ctx, f.svc, Input{CallerID: f.user, Message: "hello"})
	if got := shape(events); got != "meta token done" {
		t.Fatalf("event shape = %q", got)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM messages`); n != 0 {
		t.Errorf("service committed a borrowed transaction: %d messages", n)
	}
}

// trackingBeginner hands out a fresh transaction per turn and records how
// many are live at once.
type trackingBeginner struct {
	db      *sqldb.DB
	begun   atomic.Int32
	live    atomic.Int32
	maxLive atomic.Int32

	mu   sync.Mutex
	seen map[scope.Tx]bool
}

func (b *trackingBeginner) Begin(ctx context.Context) (scope.Tx, error) {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	b.begun.Add(1)
	n := b.live.Add(1)
	for {
		m := b.maxLive.Load()
		if n <= m || b.maxLive.CompareAndSwap(m, n) {
			break
		}
	}
	tracked := &trackedTx{Tx: tx, b: b}
	b.mu.Lock()
	if b.seen == nil {
		b.seen = make(map[scope.Tx]bool)
	}
	b.seen[tracked] = true
	b.mu.Unlock()
	return tracked, nil
}

type trackedTx struct {
	scope.Tx
	b    *trackingBeginner
	done atomic.Bool
}

func (t *trackedTx) finish() {
	if t.done.CompareAndSwap(false, true) {
		t.b.live.Add(-1)
	}
}

func (t *trackedTx) Commit() error   { t.finish(); return t.Tx.Commit() }
func (t *trackedTx) Rollback() error { t.finish(); return t.Tx.Rollback() }

func TestStream_ConcurrentTurns_NeverShareTransaction(t *testing.T) {
	t.Parallel()

	tb := &trackingBeginner{}
	f := newFixtureWith(t, tb, agent.Config{}, Config{SystemPrompt: "system"},
		llm.ScriptStep{Deltas: []string{"answer"}})

	const turns = 4
	results := make([][]Event, turns)
	var wg sync.WaitGroup
	for i := range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = drain(context.Background(), f.svc, Input{CallerID: f.user, Message: fmt.Sprintf("question %d", i)})
		}()
	}
	wg.Wait()

	ids := map[int64]bool{}
	for i, events := range results {
		if got := shape(events); got != "meta token done" {
			t.Errorf("turn %d: event shape = %q", i, got)
			continue
		}
		ids[events[0].ConversationID] = true
	}
	if len(ids) != turns {
		t.Errorf("expected %d distinct conversations, got %d", turns, len(ids))
	}
	if got := tb.begun.Load(); got != turns {
		t.Errorf("began %d transactions; want %d", got, turns)
	}
	if got := tb.maxLive.Load(); got != 1 {
		t.Errorf("max live transactions = %d; want 1 on a single connection", got)
	}
	if got := tb.live.Load(); got != 0 {
		t.Errorf("%d transactions left open", got)
	}
}

// ============================================================================
// Conversation operations
// ============================================================================

func TestService_ListGetDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.Config{}, llm.ScriptStep{Deltas: []string{"ok"}})
	ctx := context.Background()

	a := drain(ctx, f.svc, Input{CallerID: f.user, Message: "first"})[0].ConversationID
	b := drain(ctx, f.svc, Input{CallerID: f.user, Message: "second"})[0].ConversationID
	drain(ctx, f.svc, Input{CallerID: f.other, Message: "someone else"})

	list, err := f.svc.List(ctx, f.user)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != b || list[1].ID != a || list[0].MessageCount != 2 {
		t.Errorf("unexpected list: %+v", list)
	}

	if _, err := f.svc.Get(ctx, f.other, a); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Get by other user: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.other, a); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Delete by other user: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.user, a); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.user, a); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Get after delete: expected ErrNotFound, got %v", err)
	}
	if n := f.count(t, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, a); n != 0 {
		t.Errorf("expected messages deleted, found %d", n)
	}
}

// ============================================================================
// Errors and encoding
// ============================================================================

func TestSafeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("get: %w", conversation.ErrNotFound), msgConversationNotFound},
		{ErrEmptyMessage, msgEmptyMessage},
		{fmt.Errorf("x: %w", agent.ErrMaxToolRounds), msgToolRoundLimit},
		{fmt.Errorf("ollama: %w: boom", llm.ErrModelUnavailable), msgModelUnavailable},
		{context.DeadlineExceeded, msgTimeout},
		{errors.New("disk on fire"), msgInternal},
	}
	for _, tt := range tests {
		if got := SafeMessage(tt.err); got != tt.want {
			t.Errorf("SafeMessage(%v) = %q; want %q", tt.err, got, tt.want)
		}
	}
}

func TestEvent_Encode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Type: EventMeta, ConversationID: 12}, `{"type":"meta","conversation_id":12}`},
		{Event{Type: EventToken, Content: "hi"}, `{"type":"token","content":"hi"}`},
		{Event{Type: EventError, Content: "Conversation not found"}, `{"type":"error","content":"Conversation not found"}`},
		{Event{Type: EventDone}, `{"type":"done"}`},
	}
	for _, tt := range tests {
		got, err := tt.ev.Encode()
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if string(got) != tt.want {
			t.Errorf("Encode() = %s; want %s", got, tt.want)
		}
		if tt.ev.IsTerminal() != (tt.ev.Type == EventDone || tt.ev.Type == EventError) {
			t.Errorf("IsTerminal mismatch for %s", tt.ev.Type)
		}
	}
}

// heldModel blocks any step whose latest message is "hold" until release is
// closed.
type heldModel struct {
	*llm.ScriptedModel
	started chan struct{}
	release chan struct{}
}

func (m *heldModel) StreamStep(ctx context.Context, req llm.StepRequest) iter.Seq2[llm.StepEvent, error] {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Content == "hold" {
		close(m.started)
		select {
		case <-m.release:
		case <-ctx.Done():
		}
	}
	return m.ScriptedModel.StreamStep(ctx, req)
}

func TestStream_ConcurrentTurns_FileDatabase_SecondTurnWaits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "unroll.db"), sqlite.WithBusyTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("sqlite.NewDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.MigrateUp(ctx, db); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	model := &heldModel{
		ScriptedModel: llm.NewScriptedModel(llm.ScriptStep{Deltas: []string{"answer"}}),
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	orch := agent.NewOrchestrator(model, registry, agent.Config{}, nil)
	svc := NewService(scope.FromDB(db), conversation.NewStore(), orch, Config{SystemPrompt: "system"}, eventbus.New(), nil)

	var held, waiting []Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		held = drain(ctx, svc, Input{CallerID: alice, Message: "hold"})
	}()
	<-model.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		waiting = drain(ctx, svc, Input{CallerID: bob, Message: "quick"})
	}()

	// Keep the first turn open well past the busy timeout.
	time.Sleep(300 * time.Millisecond)
	close(model.release)
	wg.Wait()

	if got := shape(held); got != "meta token done" {
		t.Errorf("held turn shape = %q", got)
	}
	if got := shape(waiting); got != "meta token done" {
		t.Errorf("waiting turn shape = %q", got)
	}

	var answers int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE role = 'assistant' AND content = ?`, "answer",
	).Scan(&answers); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if answers != 2 {
		t.Errorf("persisted answers = %d; want 2", answers)
	}
}
