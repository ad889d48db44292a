package delivery

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"clipbot/internal/bus"
	"clipbot/internal/dispatch"
	"clipbot/internal/domain"
	"clipbot/internal/media"
)

// RouterConfig wires a Router.
type RouterConfig struct {
	Handler   *Handler
	Messenger domain.Messenger
	Store     domain.Store // optional; /stats and user tracking are off without it
	Limiter   *dispatch.KeyedLimiter
	AllowFrom []string // Telegram user IDs; empty = everyone
	Events    *bus.EventBus
	Logger    *slog.Logger
}

// Router sends each inbound message to the right place: commands and
// button presses are answered directly, link messages go to the Handler.
type Router struct {
	handler   *Handler
	messenger domain.Messenger
	store     domain.Store
	limiter   *dispatch.KeyedLimiter
	allowFrom map[int64]bool
	events    *bus.EventBus
	logger    *slog.Logger
}

var _ dispatch.Processor = (*Router)(nil)

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	allowed := make(map[int64]bool)
	for _, s := range cfg.AllowFrom {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			cfg.Logger.Warn("ignoring invalid allow-list entry", "value", s)
			continue
		}
		allowed[id] = true
	}
	return &Router{
		handler:   cfg.Handler,
		messenger: cfg.Messenger,
		store:     cfg.Store,
		limiter:   cfg.Limiter,
		allowFrom: allowed,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
}

// Process implements dispatch.Processor.
func (r *Router) Process(ctx context.Context, msg domain.InboundMessage) {
	if !r.isAllowed(msg.SenderID) {
		r.logger.Warn("unauthorized user", "sender_id", msg.SenderID, "username", msg.Username)
		if msg.IsCallback() {
			r.answer(ctx, msg, msgUnauthorized)
			return
		}
		r.reply(ctx, msg.ChatID, msgUnauthorized)
		return
	}

	switch {
	case msg.IsCallback():
		r.handleCallback(ctx, msg)
	case msg.IsCommand():
		r.handleCommand(ctx, msg)
	default:
		if media.IsFetchable(msg.Text) && !r.limiter.Allow(msg.SenderID) {
			r.logger.Info("rate limited", "sender_id", msg.SenderID, "chat_id", msg.ChatID)
			r.reply(ctx, msg.ChatID, msgRateLimited)
			r.events.Emit(bus.Event{Type: bus.EventDeliveryFinished, Source: "router", Payload: domain.DownloadRecord{
				ID:        r.handler.newID(),
				ChatID:    msg.ChatID,
				SenderID:  msg.SenderID,
				URL:       strings.TrimSpace(msg.Text),
				Category:  media.Classify(msg.Text),
				Outcome:   domain.OutcomeRateLimited,
				CreatedAt: time.Now().UTC(),
			}})
			return
		}
		r.handler.Deliver(ctx, msg)
	}
}

func (r *Router) handleCommand(ctx context.Context, msg domain.InboundMessage) {
	switch strings.ToLower(msg.Command) {
	case "start":
		r.trackUser(ctx, msg)
		if err := r.messenger.SendWelcome(ctx, msg.ChatID, r.handler.WelcomeText()); err != nil {
			r.logger.Warn("welcome send failed", "chat_id", msg.ChatID, "err", err)
		}
	case "stats":
		r.reply(ctx, msg.ChatID, r.statsFor(ctx, msg.SenderID))
	default:
		r.reply(ctx, msg.ChatID, r.handler.WelcomeText())
	}
}

func (r *Router) handleCallback(ctx context.Context, msg domain.InboundMessage) {
	switch msg.CallbackData {
	case CallbackSendLink:
		r.answer(ctx, msg, SendLinkPrompt)
	default:
		r.logger.Debug("unknown callback", "data", msg.CallbackData)
		r.answer(ctx, msg, "")
	}
}

// trackUser records the sender. A store failure does not block the welcome.
func (r *Router) trackUser(ctx context.Context, msg domain.InboundMessage) {
	if r.store == nil {
		return
	}
	now := time.Now().UTC()
	u := domain.User{TelegramID: msg.SenderID, Username: msg.Username, CreatedAt: now, LastSeenAt: now}
	if err := r.store.UpsertUser(ctx, u); err != nil {
		r.logger.Warn("user upsert failed", "sender_id", msg.SenderID, "err", err)
	}
}

func (r *Router) statsFor(ctx context.Context, senderID int64) string {
	if r.store == nil {
		return "📊 Download history is not enabled on this bot."
	}
	counts, err := r.store.CountsBySender(ctx, senderID)
	if err != nil {
		r.logger.Error("stats query failed", "sender_id", senderID, "err", err)
		return "❌ Could not load your stats right now."
	}
	return statsText(counts)
}

func (r *Router) answer(ctx context.Context, msg domain.InboundMessage, text string) {
	if err := r.messenger.AnswerCallback(ctx, msg.CallbackID, msg.ChatID, msg.MessageID, text); err != nil {
		r.logger.Warn("callback answer failed", "chat_id", msg.ChatID, "err", err)
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if _, err := r.messenger.SendText(ctx, chatID, text); err != nil {
		r.logger.Warn("reply failed", "chat_id", chatID, "err", err)
	}
}

func (r *Router) isAllowed(senderID int64) bool {
	if len(r.allowFrom) == 0 {
		return true
	}
	return r.allowFrom[senderID]
}
