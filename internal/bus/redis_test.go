package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"clipbot/internal/domain"
)

func TestRedisMessageCodec(t *testing.T) {
	in := domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    42,
		SenderID:  7,
		Username:  "alice",
		MessageID: 3,
		Text:      "https://youtu.be/abc",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := encodeMessage(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.ChatID != in.ChatID || out.Text != in.Text || !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("expected %+v, got %+v", in, out)
	}

	if _, err := decodeMessage("{not json"); err == nil {
		t.Error("expected decode error for malformed payload")
	}
}

func TestNewRedisQueue_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := NewRedisQueue(ctx, "redis://127.0.0.1:1/0", "test", testEBLogger()); err == nil {
		t.Error("expected ping error for unreachable redis")
	}
}

func TestRedisQueue_CloseWithoutSubscribe(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	q := newRedisQueue(client, "test", testEBLogger())

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Close to return promptly")
	}

	if err := q.Publish(domain.InboundMessage{Text: "x"}); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Requeue(domain.InboundMessage{Text: "x"}); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed from Requeue, got %v", err)
	}
	if _, ok := <-q.Subscribe(); ok {
		t.Error("expected closed subscription channel")
	}
	q.Close()
}
