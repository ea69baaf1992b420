package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"triagebot/internal/analysis"
	"triagebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeBus collects outbound messages synchronously.
type fakeBus struct {
	mu       sync.Mutex
	inbound  chan domain.InboundMessage
	outbound []domain.OutboundMessage
}

func newFakeBus() *fakeBus {
	return &fakeBus{inbound: make(chan domain.InboundMessage, 10)}
}

func (f *fakeBus) Publish(msg domain.InboundMessage)             { f.inbound <- msg }
func (f *fakeBus) Subscribe() <-chan domain.InboundMessage       { return f.inbound }
func (f *fakeBus) OnOutbound(string, func(domain.OutboundMessage)) {}
func (f *fakeBus) Close()                                        {}

func (f *fakeBus) SendOutbound(msg domain.OutboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, msg)
}

func (f *fakeBus) sent() []domain.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OutboundMessage(nil), f.outbound...)
}

// fakeReasoner echoes a canned reply and records the prompt it saw.
type fakeReasoner struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	history [][]domain.ChatTurn
}

func (f *fakeReasoner) Name() string { return "fake" }

func (f *fakeReasoner) Healthy(context.Context) error { return nil }

func (f *fakeReasoner) Chat(_ context.Context, history []domain.ChatTurn, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.history = append(f.history, history)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	mu       sync.Mutex
	messages map[string][]domain.MessageRecord
	analyses []domain.AnalysisRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string][]domain.MessageRecord)}
}

func (f *fakeStore) GetOrCreateConversation(_ context.Context, chatKey string) (*domain.Conversation, error) {
	return &domain.Conversation{ID: "conv-" + chatKey, ChatKey: chatKey}, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, convID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[convID] = append(f.messages[convID], domain.MessageRecord{Role: role, Content: content})
	return nil
}

func (f *fakeStore) RecentMessages(_ context.Context, convID string, limit int) ([]domain.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[convID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.MessageRecord(nil), msgs...), nil
}

func (f *fakeStore) ClearMessages(_ context.Context, convID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, convID)
	return nil
}

func (f *fakeStore) RecordAnalysis(_ context.Context, rec domain.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses = append(f.analyses, rec)
	return nil
}

func (f *fakeStore) RecentAnalyses(_ context.Context, chatKey string, limit int) ([]domain.AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AnalysisRecord
	for i := len(f.analyses) - 1; i >= 0 && len(out) < limit; i-- {
		if f.analyses[i].ChatKey == chatKey {
			out = append(out, f.analyses[i])
		}
	}
	return out, nil
}

func newTestLoop(reasoner *fakeReasoner, bus *fakeBus, store HistoryStore) *Loop {
	return NewLoop(LoopConfig{
		Reasoner: reasoner,
		Pipeline: analysis.NewPipeline(analysis.PipelineConfig{}, testLogger()),
		Store:    store,
		Bus:      bus,
		Logger:   testLogger(),
		BotName:  "ATLAS",
		Version:  "1.0.0",
	})
}

func inbound(content string) domain.InboundMessage {
	return domain.InboundMessage{Channel: "telegram", ChatID: "42", SenderID: "7", Content: content}
}

func TestProcessMessage_PlainChat(t *testing.T) {
	bus := newFakeBus()
	reasoner := &fakeReasoner{reply: "the answer"}
	store := newFakeStore()
	loop := newTestLoop(reasoner, bus, store)

	loop.processMessage(context.Background(), inbound("what is go?"))

	sent := bus.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sent))
	}
	if sent[0].Content != "the answer" {
		t.Fatalf("unexpected reply %q", sent[0].Content)
	}
	if sent[0].Channel != "telegram" || sent[0].ChatID != "42" {
		t.Fatalf("reply misrouted: %+v", sent[0])
	}

	// Both turns persisted.
	msgs, _ := store.RecentMessages(context.Background(), "conv-telegram:42", 10)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("history not persisted: %+v", msgs)
	}
}

func TestProcessMessage_ReasonerFailureStillReplies(t *testing.T) {
	bus := newFakeBus()
	reasoner := &fakeReasoner{err: errors.New("backend down")}
	loop := newTestLoop(reasoner, bus, newFakeStore())

	loop.processMessage(context.Background(), inbound("hello?"))

	sent := bus.sent()
	if len(sent) != 1 {
		t.Fatalf("expected an error reply, got %d messages", len(sent))
	}
	if !strings.Contains(sent[0].Content, "try again") {
		t.Fatalf("unexpected error reply: %q", sent[0].Content)
	}
}

func TestProcessMessage_HistoryFlowsToReasoner(t *testing.T) {
	bus := newFakeBus()
	reasoner := &fakeReasoner{reply: "ok"}
	store := newFakeStore()
	loop := newTestLoop(reasoner, bus, store)

	ctx := context.Background()
	loop.processMessage(ctx, inbound("first"))
	loop.processMessage(ctx, inbound("second"))

	if len(reasoner.history) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(reasoner.history))
	}
	if len(reasoner.history[0]) != 0 {
		t.Fatalf("first call should carry no history, got %d turns", len(reasoner.history[0]))
	}
	if len(reasoner.history[1]) != 2 {
		t.Fatalf("second call should carry 2 turns, got %d", len(reasoner.history[1]))
	}
}

func TestProcessMessage_Attachment(t *testing.T) {
	bus := newFakeBus()
	store := newFakeStore()
	loop := newTestLoop(&fakeReasoner{reply: "unused"}, bus, store)

	msg := inbound("")
	msg.Attachment = &domain.Attachment{
		Name: "note.txt",
		Size: 5,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}
	loop.processMessage(context.Background(), msg)

	sent := bus.sent()
	if len(sent) != 2 {
		t.Fatalf("expected ack + report, got %d messages", len(sent))
	}
	if !strings.Contains(sent[0].Content, "Analyzing") {
		t.Fatalf("expected acknowledgement first, got %q", sent[0].Content)
	}
	if !strings.Contains(sent[1].Content, "note.txt") || !strings.Contains(sent[1].Content, "hello") {
		t.Fatalf("report missing content:\n%s", sent[1].Content)
	}
	if sent[1].Format != "plain" {
		t.Fatalf("report should be sent unformatted, got format %q", sent[1].Format)
	}

	recs, _ := store.RecentAnalyses(context.Background(), "telegram:42", 5)
	if len(recs) != 1 || recs[0].FileName != "note.txt" {
		t.Fatalf("analysis not recorded: %+v", recs)
	}
}

func TestProcessMessage_AttachmentWithCaption(t *testing.T) {
	bus := newFakeBus()
	reasoner := &fakeReasoner{reply: "it is a greeting"}
	loop := newTestLoop(reasoner, bus, newFakeStore())

	msg := inbound("what does this file say?")
	msg.Attachment = &domain.Attachment{
		Name: "note.txt",
		Size: 5,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("hello")), nil
		},
	}
	loop.processMessage(context.Background(), msg)

	sent := bus.sent()
	if len(sent) != 3 {
		t.Fatalf("expected ack + report + answer, got %d messages", len(sent))
	}
	if sent[2].Content != "it is a greeting" {
		t.Fatalf("unexpected caption answer: %q", sent[2].Content)
	}
	if len(reasoner.prompts) != 1 || !strings.Contains(reasoner.prompts[0], "what does this file say?") {
		t.Fatalf("caption not passed to reasoner: %v", reasoner.prompts)
	}
}

func TestProcessMessage_AttachmentOpenFailure(t *testing.T) {
	bus := newFakeBus()
	loop := newTestLoop(&fakeReasoner{}, bus, newFakeStore())

	msg := inbound("")
	msg.Attachment = &domain.Attachment{
		Name: "gone.pdf",
		Open: func(context.Context) (io.ReadCloser, error) {
			return nil, errors.New("file expired")
		},
	}
	loop.processMessage(context.Background(), msg)

	sent := bus.sent()
	if len(sent) != 2 {
		t.Fatalf("expected ack + failure notice, got %d", len(sent))
	}
	if !strings.Contains(sent[1].Content, "couldn't download") {
		t.Fatalf("unexpected failure notice: %q", sent[1].Content)
	}
}

// stallingReasoner holds every chat call until its context ends.
type stallingReasoner struct{}

func (stallingReasoner) Name() string                  { return "stalling" }
func (stallingReasoner) Healthy(context.Context) error { return nil }

func (stallingReasoner) Chat(ctx context.Context, _ []domain.ChatTurn, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_CancelWhileWorkersSaturated(t *testing.T) {
	bus := newFakeBus()
	loop := NewLoop(LoopConfig{
		Reasoner:    stallingReasoner{},
		Pipeline:    analysis.NewPipeline(analysis.PipelineConfig{}, testLogger()),
		Bus:         bus,
		Logger:      testLogger(),
		Concurrency: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// First message occupies the only worker slot; the second leaves Run
	// waiting for a slot. Cancellation must still stop the loop promptly.
	bus.Publish(inbound("first"))
	bus.Publish(inbound("second"))
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop while the worker pool was saturated")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	bus := newFakeBus()
	loop := newTestLoop(&fakeReasoner{reply: "x"}, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	cancel()
	<-done
}
