package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clipbot/internal/domain"
)

const healthText = "Bot is running"

// WebhookConfig configures the webhook HTTP server.
type WebhookConfig struct {
	Host   string
	Port   int
	Secret string // the webhook path is /<Secret>, or /webhook when empty
	// Metrics, when set, is served at GET /metrics.
	Metrics         http.Handler
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Webhook receives Telegram updates over HTTP and enqueues them. It also
// serves the health and metrics endpoints.
type Webhook struct {
	host            string
	port            int
	path            string
	metrics         http.Handler
	shutdownTimeout time.Duration
	logger          *slog.Logger
	server          *http.Server
}

var _ domain.Channel = (*Webhook)(nil)

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	path := "/webhook"
	if cfg.Secret != "" {
		path = "/" + cfg.Secret
	}
	return &Webhook{
		host:            cfg.Host,
		port:            cfg.Port,
		path:            path,
		metrics:         cfg.Metrics,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Path is the route Telegram posts updates to.
func (w *Webhook) Path() string { return w.path }

// Router builds the HTTP routes publishing to bus.
func (w *Webhook) Router(bus domain.MessageBus) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), w.requestLogger())

	r.POST(w.path, w.handleUpdate(bus))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, healthText) })
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if w.metrics != nil {
		r.GET("/metrics", gin.WrapH(w.metrics))
	}
	return r
}

// Start serves HTTP until ctx is cancelled.
func (w *Webhook) Start(ctx context.Context, bus domain.MessageBus) error {
	gin.SetMode(gin.ReleaseMode)
	w.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", w.host, w.port),
		Handler:           w.Router(bus),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// Stop is a no-op; the server stops when Start's context is cancelled.
func (w *Webhook) Stop() error { return nil }

// handleUpdate acknowledges every well-formed update once it is queued.
// Handling happens later on the dispatch loop, so its failures never
// change the response.
func (w *Webhook) handleUpdate(bus domain.MessageBus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			w.logger.Warn("invalid webhook payload", "err", err)
			c.String(http.StatusBadRequest, "Invalid JSON")
			return
		}

		msg, ok := FromUpdate(update)
		if ok {
			if err := bus.Publish(msg); err != nil {
				// Telegram redelivers on a non-2xx response.
				w.logger.Error("enqueue update failed", "update_id", update.UpdateID, "err", err)
				c.String(http.StatusServiceUnavailable, "Busy")
				return
			}
		}
		c.String(http.StatusOK, "OK")
	}
}

// requestLogger logs each request at debug level. The webhook route is
// logged by name so the secret path never reaches the logs.
func (w *Webhook) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == w.path {
			route = "webhook"
		}
		w.logger.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
