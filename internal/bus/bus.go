// Package bus carries inbound messages from transports to the dispatch
// loop, and internal events between components.
package bus

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"clipbot/internal/domain"
)

const publishTimeout = 10 * time.Second

var errQueueFull = errors.New("inbound queue full")

// InMemoryBus is a Go-channel based queue for in-process handoff.
type InMemoryBus struct {
	inbound chan domain.InboundMessage
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
	timeout time.Duration
}

var _ domain.MessageBus = (*InMemoryBus)(nil)

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundMessage, bufferSize),
		logger:  logger,
		timeout: publishTimeout,
	}
}

// Publish enqueues msg. When the buffer is full it waits up to 10 seconds
// before dropping the message and returning an error.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return domain.ErrQueueClosed
	}

	select {
	case b.inbound <- msg:
		return nil
	default:
	}

	b.logger.Warn("inbound queue full, waiting", "channel", msg.Channel, "chat", msg.ChatID)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
		b.logger.Info("message queued after wait", "channel", msg.Channel, "chat", msg.ChatID)
		return nil
	case <-timer.C:
		b.logger.Error("message dropped: inbound queue full",
			"channel", msg.Channel,
			"chat", msg.ChatID,
			"sender", msg.SenderID,
		)
		return errQueueFull
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// Len returns the number of queued messages.
func (b *InMemoryBus) Len() int {
	return len(b.inbound)
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
