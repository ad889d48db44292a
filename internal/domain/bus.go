package domain

import "errors"

// ErrQueueClosed is returned when publishing to a closed queue.
var ErrQueueClosed = errors.New("queue closed")

// MessageBus hands inbound messages from transports to the dispatch loop.
type MessageBus interface {
	Publish(msg InboundMessage) error
	Subscribe() <-chan InboundMessage
	Close()
}

// Requeuer is implemented by queues that can return a dequeued message to
// the head of the queue, so it survives a consumer shutting down.
type Requeuer interface {
	Requeue(msg InboundMessage) error
}
