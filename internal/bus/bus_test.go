package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"triagebot/internal/domain"
)

func newTestBus(size int) *InMemoryBus {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(size, logger)
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBus(10)
	defer b.Close()

	b.Publish(domain.InboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"})

	select {
	case msg := <-b.Subscribe():
		if msg.ChatID != "42" || msg.Content != "hi" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestOutboundRouting(t *testing.T) {
	b := newTestBus(10)
	defer b.Close()

	got := make(chan domain.OutboundMessage, 1)
	b.OnOutbound("telegram", func(msg domain.OutboundMessage) { got <- msg })

	b.SendOutbound(domain.OutboundMessage{Channel: "telegram", ChatID: "1", Content: "reply"})

	select {
	case msg := <-got:
		if msg.Content != "reply" {
			t.Fatalf("unexpected content %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestOutboundUnknownChannelIsDropped(t *testing.T) {
	b := newTestBus(10)
	defer b.Close()
	// Must not panic or block.
	b.SendOutbound(domain.OutboundMessage{Channel: "nope", Content: "x"})
}

func TestPublishAfterClose(t *testing.T) {
	b := newTestBus(10)
	b.Close()
	// Must not panic on a closed bus.
	b.Publish(domain.InboundMessage{Channel: "telegram", Content: "late"})
}
