package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"clipbot/internal/bus"
	"clipbot/internal/config"
	"clipbot/internal/delivery"
	"clipbot/internal/dispatch"
	"clipbot/internal/domain"
	"clipbot/internal/extract"
	"clipbot/internal/media"
	"clipbot/internal/metrics"
	"clipbot/internal/store"
	"clipbot/internal/worker"
)

// app holds the components shared by every command that runs the
// delivery pipeline.
type app struct {
	cfg       *config.Config
	events    *bus.EventBus
	metrics   *metrics.Collector
	store     *store.SQLiteStore // nil when DB_PATH is empty
	pool      *worker.Pool
	extractor *extract.YtDlp
	builder   *media.OptionsBuilder
	limiter   *dispatch.KeyedLimiter
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Download.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	a := &app{
		cfg:     cfg,
		events:  bus.NewEventBus(logger),
		metrics: metrics.NewCollector("clipbot"),
		pool:    worker.NewPool(cfg.Download.MaxWorkers, logger),
		extractor: extract.NewYtDlp(extract.YtDlpConfig{
			BinaryPath: cfg.Download.YtDlpPath,
			Timeout:    cfg.Download.Timeout,
		}, logger),
		builder: media.NewOptionsBuilder(media.OptionsConfig{
			DownloadDir: cfg.Download.Dir,
			Format:      cfg.Download.Format,
			CookiesFile: cfg.Download.CookiesFile,
			Proxy:       cfg.Download.Proxy,
			DeviceID:    cfg.Download.DeviceID,
			Impersonate: cfg.Download.Impersonate,
		}, logger),
		limiter: dispatch.NewKeyedLimiter(cfg.Dispatch.RateLimitBurst, cfg.Dispatch.RateLimitPerMinute),
	}
	metrics.NewRecorder(a.metrics).Subscribe(a.events)

	if cfg.Store.DBPath != "" {
		s, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.Subscribe(a.events)
		a.store = s
	}

	if path, err := a.extractor.Resolve(); err != nil {
		logger.Warn("yt-dlp not found; downloads will fail until it is installed", "path", cfg.Download.YtDlpPath)
	} else {
		logger.Debug("yt-dlp resolved", "path", path)
	}
	return a, nil
}

func (a *app) handler(m domain.Messenger) *delivery.Handler {
	return delivery.NewHandler(delivery.HandlerConfig{
		Messenger: m,
		Extractor: a.extractor,
		Builder:   a.builder,
		Pool:      a.pool,
		Events:    a.events,
		Logger:    logger,
	})
}

func (a *app) router(m domain.Messenger) *delivery.Router {
	cfg := delivery.RouterConfig{
		Handler:   a.handler(m),
		Messenger: m,
		Limiter:   a.limiter,
		AllowFrom: a.cfg.Telegram.AllowFrom,
		Events:    a.events,
		Logger:    logger,
	}
	if a.store != nil {
		cfg.Store = a.store
	}
	return delivery.NewRouter(cfg)
}

// queue returns the Redis queue when REDIS_URL is set, else an in-memory one.
func (a *app) queue(ctx context.Context) (domain.MessageBus, error) {
	if a.cfg.Queue.RedisURL == "" {
		return bus.New(a.cfg.Queue.Size, logger), nil
	}
	q, err := bus.NewRedisQueue(ctx, a.cfg.Queue.RedisURL, a.cfg.Queue.RedisKey, logger)
	if err != nil {
		return nil, fmt.Errorf("redis queue: %w", err)
	}
	logger.Info("using redis inbound queue", "key", a.cfg.Queue.RedisKey)
	return q, nil
}

// loop builds the dispatch loop feeding q into the router.
func (a *app) loop(q domain.MessageBus, r *delivery.Router) *dispatch.Loop {
	return dispatch.NewLoop(dispatch.LoopConfig{
		Bus:         q,
		Processor:   r,
		Logger:      logger,
		Concurrency: a.cfg.Dispatch.MaxConcurrent,
		OnReceive: func(msg domain.InboundMessage) {
			a.events.Emit(bus.Event{Type: bus.EventUpdateReceived, Source: "dispatch", Payload: msg})
		},
	})
}

// housekeeping drops idle rate-limit buckets and old job records.
func (a *app) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := a.limiter.Prune()
			cleaned := a.pool.Clean(time.Hour)
			logger.Debug("housekeeping", "buckets_pruned", pruned, "jobs_cleaned", cleaned, "jobs_active", len(a.pool.ListActive()))
		}
	}
}

// drain waits for in-flight messages and downloads, then releases resources.
func (a *app) drain(l *dispatch.Loop, q domain.MessageBus) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if l != nil {
		if werr := l.Wait(ctx); werr != nil {
			logger.Warn("shutdown timed out waiting for messages", "err", werr)
			err = werr
		}
	}
	a.pool.Close()
	if werr := a.pool.Wait(ctx); werr != nil {
		logger.Warn("shutdown timed out waiting for downloads", "err", werr)
		err = werr
	}
	if q != nil {
		q.Close()
	}
	a.close()
	return err
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("store close failed", "err", err)
		}
	}
}
