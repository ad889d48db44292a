// Package delivery turns an inbound link into a document in the chat: it
// acknowledges the request, extracts the media on the worker pool, locates
// the downloaded file and sends it back.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"clipbot/internal/bus"
	"clipbot/internal/domain"
	"clipbot/internal/extract"
	"clipbot/internal/media"
	"clipbot/internal/worker"
)

// HandlerConfig wires a Handler to its collaborators.
type HandlerConfig struct {
	Messenger   domain.Messenger
	Extractor   domain.Extractor
	Builder     *media.OptionsBuilder
	Pool        *worker.Pool
	Events      *bus.EventBus // optional
	Logger      *slog.Logger
	WelcomeText string // empty = DefaultWelcomeText
}

// Handler runs the fetch-and-deliver pipeline for one message at a time.
// It keeps no per-request state and may be called concurrently.
type Handler struct {
	messenger domain.Messenger
	extractor domain.Extractor
	builder   *media.OptionsBuilder
	pool      *worker.Pool
	events    *bus.EventBus
	logger    *slog.Logger
	welcome   string
	newID     func() string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = DefaultWelcomeText
	}
	if cfg.Builder == nil {
		cfg.Builder = media.NewOptionsBuilder(media.OptionsConfig{}, cfg.Logger)
	}
	if cfg.Pool == nil {
		cfg.Pool = worker.NewPool(1, cfg.Logger)
	}
	return &Handler{
		messenger: cfg.Messenger,
		extractor: cfg.Extractor,
		builder:   cfg.Builder,
		pool:      cfg.Pool,
		events:    cfg.Events,
		logger:    cfg.Logger,
		welcome:   cfg.WelcomeText,
		newID:     uuid.NewString,
	}
}

// WelcomeText returns the text sent for /start, /help and non-link messages.
func (h *Handler) WelcomeText() string { return h.welcome }

// Deliver handles one text message and returns its outcome. Failures are
// logged and reported to the chat as generic status text; nothing is
// returned to the caller except the outcome.
func (h *Handler) Deliver(ctx context.Context, msg domain.InboundMessage) domain.Outcome {
	text := strings.TrimSpace(msg.Text)
	if !media.IsFetchable(text) {
		if _, err := h.messenger.SendText(ctx, msg.ChatID, h.welcome); err != nil {
			h.logger.Warn("welcome reply failed", "chat_id", msg.ChatID, "err", err)
		}
		h.emit(bus.EventDeliveryFinished, domain.DownloadRecord{
			ChatID: msg.ChatID, SenderID: msg.SenderID, Outcome: domain.OutcomeNotRequest,
		})
		return domain.OutcomeNotRequest
	}

	started := time.Now()
	rec := domain.DownloadRecord{
		ID:        h.newID(),
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		URL:       text,
		Category:  media.Classify(text),
		CreatedAt: started.UTC(),
	}
	logger := h.logger.With("request_id", rec.ID, "chat_id", rec.ChatID, "category", rec.Category)
	h.emit(bus.EventDeliveryStarted, rec)

	finish := func(o domain.Outcome) domain.Outcome {
		rec.Outcome = o
		rec.DurationMS = time.Since(started).Milliseconds()
		h.emit(bus.EventDeliveryFinished, rec)
		logger.Info("delivery finished", "outcome", o, "duration_ms", rec.DurationMS)
		return o
	}

	ackID, err := h.messenger.SendText(ctx, msg.ChatID, msgAck)
	if err != nil {
		logger.Error("acknowledgment failed", "url", rec.URL, "err", err)
		return finish(domain.OutcomeSendFailed)
	}
	status := func(text string) {
		if err := h.messenger.EditText(ctx, msg.ChatID, ackID, text); err != nil {
			logger.Warn("status edit failed", "err", err)
		}
	}

	res, err := h.extract(ctx, rec, logger)
	if err != nil {
		status(fetchFailedText(rec.Category))
		return finish(domain.OutcomeFetchFailed)
	}

	path, ok := extract.LocateArtifact(res)
	if !ok {
		logger.Error("artifact not found", "url", rec.URL, "candidates", extract.Candidates(res))
		status(msgNoFile)
		return finish(domain.OutcomeNoFile)
	}

	rec.Title = media.SanitizeTitle(res.Title)
	rec.SizeBytes = artifactSize(path, res)
	size := ""
	if rec.SizeBytes > 0 {
		size = humanize.Bytes(uint64(rec.SizeBytes))
	}
	status(sendingText(size))

	doc := domain.Document{
		Path:     path,
		Filename: media.DocumentFilename(res.Title, path),
		Caption:  rec.Title,
	}
	if err := h.messenger.SendDocument(ctx, msg.ChatID, doc); err != nil {
		logger.Error("document send failed", "url", rec.URL, "path", path, "size", size, "err", err)
		status(msgSendFailed)
		return finish(domain.OutcomeSendFailed)
	}

	status(successText(rec.Title))
	if err := os.Remove(path); err != nil {
		logger.Debug("artifact cleanup failed", "path", path, "err", err)
	}
	return finish(domain.OutcomeDelivered)
}

// extract runs the extraction on the worker pool. The job is detached from
// ctx cancellation; a download that has started runs to completion.
func (h *Handler) extract(ctx context.Context, rec domain.DownloadRecord, logger *slog.Logger) (*domain.ExtractResult, error) {
	opts := h.builder.Build(rec.URL, rec.Category)
	start := time.Now()

	fut := worker.Submit(h.pool, context.WithoutCancel(ctx), "extract "+rec.ID,
		func(jobCtx context.Context) (*domain.ExtractResult, error) {
			return h.extractor.Extract(jobCtx, rec.URL, opts)
		})
	res, err := fut.Await(ctx)
	if err == nil && res == nil {
		err = errors.New("extractor returned no result")
	}

	h.emit(bus.EventExtractionFinished, domain.ExtractionReport{
		Category: rec.Category, Duration: time.Since(start), OK: err == nil,
	})

	if err != nil {
		attrs := []any{"url", rec.URL, "job", fut.ID, "err", err}
		var te *extract.ToolError
		if errors.As(err, &te) {
			attrs = append(attrs, "exit_code", te.ExitCode, "stderr", te.Stderr)
		}
		logger.Error("extraction failed", attrs...)
		return nil, err
	}
	logger.Debug("extraction complete", "job", fut.ID, "title", res.Title, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// artifactSize prefers the size on disk over what the extractor reported.
func artifactSize(path string, res *domain.ExtractResult) int64 {
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}
	return extract.ReportedSize(res)
}

func (h *Handler) emit(eventType string, payload any) {
	h.events.Emit(bus.Event{Type: eventType, Source: "delivery", Payload: payload})
}
