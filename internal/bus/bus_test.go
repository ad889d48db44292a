package bus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"clipbot/internal/domain"
)

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(4, testEBLogger())

	if err := b.Publish(domain.InboundMessage{ChatID: 1, Text: "https://youtu.be/x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 queued, got %d", b.Len())
	}

	msg := <-b.Subscribe()
	if msg.ChatID != 1 || msg.Text != "https://youtu.be/x" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestInMemoryBus_FIFO(t *testing.T) {
	b := New(8, testEBLogger())
	for i := int64(1); i <= 3; i++ {
		b.Publish(domain.InboundMessage{ChatID: i})
	}
	for i := int64(1); i <= 3; i++ {
		if got := (<-b.Subscribe()).ChatID; got != i {
			t.Errorf("expected chat %d, got %d", i, got)
		}
	}
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(1, testEBLogger())
	b.Close()
	b.Close() // idempotent

	if err := b.Publish(domain.InboundMessage{}); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("expected closed channel")
	}
}

func TestInMemoryBus_FullDropsAfterTimeout(t *testing.T) {
	b := New(1, testEBLogger())
	b.timeout = 20 * time.Millisecond

	if err := b.Publish(domain.InboundMessage{ChatID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(domain.InboundMessage{ChatID: 2}); err == nil {
		t.Fatal("expected error when queue stays full")
	}
}

func TestInMemoryBus_FullWaitsForSpace(t *testing.T) {
	b := New(1, testEBLogger())
	b.Publish(domain.InboundMessage{ChatID: 1})

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-b.Subscribe()
	}()
	if err := b.Publish(domain.InboundMessage{ChatID: 2}); err != nil {
		t.Fatalf("expected publish to succeed once space frees, got %v", err)
	}
}

// --- Redis encoding ---

func TestMessageCodec(t *testing.T) {
	in := domain.InboundMessage{
		Channel:      "telegram",
		ChatID:       -100123,
		SenderID:     42,
		Username:     "alice",
		MessageID:    7,
		Text:         "https://www.tiktok.com/@x/video/1",
		CallbackID:   "cb",
		CallbackData: "send_link",
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s, err := encodeMessage(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeMessage(s)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}

	if _, err := decodeMessage("{not json"); err == nil {
		t.Error("expected decode error")
	}
}

// TestRedisQueue_RoundTrip needs a live server, e.g.
// CLIPBOT_TEST_REDIS_URL=redis://localhost:6379/15.
func TestRedisQueue_RoundTrip(t *testing.T) {
	url := os.Getenv("CLIPBOT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CLIPBOT_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	key := "clipbot:test:" + time.Now().Format("150405.000000")
	q, err := NewRedisQueue(ctx, url, key, testEBLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() {
		q.client.Del(ctx, key)
		q.Close()
	}()

	for i := int64(1); i <= 2; i++ {
		if err := q.Publish(domain.InboundMessage{ChatID: i, Text: "hi"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	sub := q.Subscribe()
	for i := int64(1); i <= 2; i++ {
		select {
		case msg := <-sub:
			if msg.ChatID != i {
				t.Errorf("expected chat %d, got %d", i, msg.ChatID)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}
