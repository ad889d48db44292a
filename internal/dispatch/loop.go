// Package dispatch drains the inbound queue and hands each message to a
// processor on its own goroutine.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"clipbot/internal/domain"
)

const defaultConcurrency = 16

// Processor handles one inbound message to completion.
type Processor interface {
	Process(ctx context.Context, msg domain.InboundMessage)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, msg domain.InboundMessage)

func (f ProcessorFunc) Process(ctx context.Context, msg domain.InboundMessage) { f(ctx, msg) }

// LoopConfig holds the dependencies of the dispatch loop.
type LoopConfig struct {
	Bus         domain.MessageBus
	Processor   Processor
	Logger      *slog.Logger
	Concurrency int // max messages handled at once (default 16)
	// OnReceive is called for every dequeued message before it is handled.
	OnReceive func(domain.InboundMessage)
}

// Loop consumes the inbound queue with bounded concurrency.
type Loop struct {
	bus         domain.MessageBus
	processor   Processor
	logger      *slog.Logger
	concurrency int
	onReceive   func(domain.InboundMessage)

	inflight sync.WaitGroup
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		bus:         cfg.Bus,
		processor:   cfg.Processor,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		onReceive:   cfg.OnReceive,
	}
}

// Run dequeues until ctx is done or the queue closes. Messages already
// being handled keep a context that is not cancelled with ctx; use Wait
// to drain them.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("dispatch loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()
	workCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound queue closed, dispatch loop stopping")
				return
			}
			if l.onReceive != nil {
				l.onReceive(msg)
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.handOffAtShutdown(workCtx, sem, msg)
				l.logger.Info("dispatch loop stopping")
				return
			}
			l.dispatch(workCtx, sem, msg)
		}
	}
}

// handOffAtShutdown deals with a message dequeued after shutdown began.
// Queues that support it take the message back; otherwise it still gets
// the next free slot.
func (l *Loop) handOffAtShutdown(workCtx context.Context, sem chan struct{}, msg domain.InboundMessage) {
	if rq, ok := l.bus.(domain.Requeuer); ok {
		err := rq.Requeue(msg)
		if err == nil {
			l.logger.Info("message requeued at shutdown", "chat", msg.ChatID, "sender", msg.SenderID)
			return
		}
		l.logger.Warn("requeue failed, handling message before stopping", "chat", msg.ChatID, "err", err)
	}
	sem <- struct{}{}
	l.dispatch(workCtx, sem, msg)
}

// dispatch runs msg on its own goroutine. The caller holds a slot in sem.
func (l *Loop) dispatch(workCtx context.Context, sem chan struct{}, msg domain.InboundMessage) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		defer func() { <-sem }()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("message handler panicked", "chat", msg.ChatID, "panic", r)
			}
		}()
		l.processor.Process(workCtx, msg)
	}()
}

// Wait blocks until every message handed out by Run has been handled or
// ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight messages: %w", ctx.Err())
	}
}
