package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"clipbot/internal/domain"
)

const (
	redisOpTimeout  = 5 * time.Second
	redisPopTimeout = 2 * time.Second
	redisRetryDelay = time.Second
)

// RedisQueue is a MessageBus backed by a Redis list, so several webhook
// receivers can feed the same dispatch loop. Producers LPUSH and the
// consumer BRPOPs, which keeps the list FIFO.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger

	out       chan domain.InboundMessage
	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

var (
	_ domain.MessageBus = (*RedisQueue)(nil)
	_ domain.Requeuer   = (*RedisQueue)(nil)
)

// NewRedisQueue connects to Redis and verifies the connection. rawURL may
// be a redis:// URL or a bare host:port.
func NewRedisQueue(ctx context.Context, rawURL, key string, logger *slog.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		opt = &redis.Options{Addr: rawURL}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opt.Addr, err)
	}
	return newRedisQueue(client, key, logger), nil
}

func newRedisQueue(client *redis.Client, key string, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client: client,
		key:    key,
		logger: logger,
		out:    make(chan domain.InboundMessage),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (q *RedisQueue) Publish(msg domain.InboundMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrQueueClosed
	}

	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(q.ctx, redisOpTimeout)
	defer cancel()
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Subscribe starts the consumer on first call. Every call returns the
// same channel.
func (q *RedisQueue) Subscribe() <-chan domain.InboundMessage {
	q.startOnce.Do(func() { go q.consume() })
	return q.out
}

func (q *RedisQueue) consume() {
	defer close(q.done)
	defer close(q.out)

	for {
		if q.ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(q.ctx, redisPopTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if q.ctx.Err() != nil {
				return
			}
			q.logger.Error("redis brpop failed", "key", q.key, "err", err)
			select {
			case <-time.After(redisRetryDelay):
			case <-q.ctx.Done():
				return
			}
			continue
		}

		// BRPOP returns [key, value].
		msg, err := decodeMessage(res[1])
		if err != nil {
			q.logger.Warn("dropping malformed queued message", "err", err)
			continue
		}
		select {
		case q.out <- msg:
		case <-q.ctx.Done():
			// Put it back so another consumer can take it.
			if err := q.pushBack(msg); err != nil {
				q.logger.Error("requeue on close failed", "key", q.key, "err", err)
			}
			return
		}
	}
}

// Requeue puts msg back at the consuming end of the list, ahead of newer
// messages.
func (q *RedisQueue) Requeue(msg domain.InboundMessage) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	return q.pushBack(msg)
}

func (q *RedisQueue) pushBack(msg domain.InboundMessage) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Len returns the number of queued messages.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close stops the consumer and closes the connection.
func (q *RedisQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	// Never subscribed: nothing to stop, but the channels must still close.
	q.startOnce.Do(func() {
		close(q.out)
		close(q.done)
	})
	select {
	case <-q.done:
	case <-time.After(redisPopTimeout + redisOpTimeout):
		q.logger.Warn("redis consumer did not stop in time", "key", q.key)
	}
	if err := q.client.Close(); err != nil {
		q.logger.Debug("redis close", "err", err)
	}
}

func encodeMessage(msg domain.InboundMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode queued message: %w", err)
	}
	return string(data), nil
}

func decodeMessage(s string) (domain.InboundMessage, error) {
	var msg domain.InboundMessage
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return msg, fmt.Errorf("decode queued message: %w", err)
	}
	return msg, nil
}
