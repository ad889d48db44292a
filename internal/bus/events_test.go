package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testEBLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var received int32
	eb.On("test.event", func(e Event) {
		atomic.AddInt32(&received, 1)
	})

	eb.Emit(Event{Type: "test.event", Payload: "value"})

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected 1 event received, got %d", received)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("*", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: "event.a"})
	eb.Emit(Event{Type: "event.b"})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_PanicRecovery(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	eb.On("panic", func(e Event) {
		panic("test panic")
	})

	// Should not panic the caller
	eb.Emit(Event{Type: "panic"})
}

func TestEventBus_MultipleHandlers(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("test", func(e Event) { atomic.AddInt32(&count, 1) })
	eb.On("test", func(e Event) { atomic.AddInt32(&count, 1) })
	eb.On("test", func(e Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: "test"})

	if atomic.LoadInt32(&count) != 3 {
		t.Errorf("expected 3 handlers called, got %d", count)
	}
}

func TestEventBus_TimestampAutoSet(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var got time.Time
	eb.On("test", func(e Event) { got = e.Timestamp })

	before := time.Now()
	eb.Emit(Event{Type: "test"})
	if got.Before(before) {
		t.Errorf("expected timestamp set at emit, got %v", got)
	}

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eb.Emit(Event{Type: "test", Timestamp: fixed})
	if !got.Equal(fixed) {
		t.Errorf("expected caller timestamp kept, got %v", got)
	}
}

func TestEventBus_PanicDoesNotStopOtherHandlers(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("test", func(e Event) { panic("boom") })
	eb.On("test", func(e Event) { atomic.AddInt32(&count, 1) })
	eb.On("*", func(e Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: "test"})
	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2 handlers after panic, got %d", count)
	}
}

func TestEventBus_NilSafeEmit(t *testing.T) {
	var eb *EventBus
	eb.Emit(Event{Type: "ignored"})
}
