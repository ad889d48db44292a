package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clipbot/internal/delivery"
	"clipbot/internal/dispatch"
	"clipbot/internal/domain"
)

const (
	telegramPollTimeout    = 30
	telegramMaxSendRetries = 3
)

// Telegram is the Bot API transport. It implements domain.Messenger for
// outgoing calls and domain.Channel for long polling.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	limiter *dispatch.RateLimiter
	logger  *slog.Logger
}

var (
	_ domain.Messenger = (*Telegram)(nil)
	_ domain.Channel   = (*Telegram)(nil)
)

type TelegramConfig struct {
	Token       string
	APIEndpoint string // default tgbotapi.APIEndpoint
	// Limiter paces outgoing calls across all chats. Optional.
	Limiter *dispatch.RateLimiter
	Logger  *slog.Logger
}

// NewTelegram connects to the Bot API and verifies the token.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	_ = tgbotapi.SetLogger(botLogger{cfg.Logger})

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, cfg.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	return &Telegram{bot: bot, limiter: cfg.Limiter, logger: cfg.Logger}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Username returns the bot's @handle.
func (t *Telegram) Username() string { return t.bot.Self.UserName }

// Start removes any registered webhook and long-polls for updates until
// ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := FromUpdate(update)
			if !ok {
				continue
			}
			if err := bus.Publish(msg); err != nil {
				t.logger.Error("enqueue update failed", "update_id", update.UpdateID, "err", err)
			}
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics if called twice.
func (t *Telegram) Stop() error { return nil }

// RegisterWebhook points Telegram at url.
func (t *Telegram) RegisterWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook config: %w", err)
	}
	if _, err := t.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	info, err := t.bot.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		t.logger.Warn("telegram reports webhook errors", "last_error", info.LastErrorMessage)
	}
	t.logger.Info("webhook registered", "pending_updates", info.PendingUpdateCount)
	return nil
}

// FromUpdate translates a Bot API update. It returns false for updates the
// bot does not act on.
func FromUpdate(update tgbotapi.Update) (domain.InboundMessage, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return domain.InboundMessage{}, false
		}
		return domain.InboundMessage{
			Channel:      "telegram",
			ChatID:       cq.Message.Chat.ID,
			SenderID:     cq.From.ID,
			Username:     cq.From.UserName,
			MessageID:    cq.Message.MessageID,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
			Timestamp:    time.Now(),
		}, true
	}

	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.InboundMessage{}, false
	}
	msg := domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    m.Chat.ID,
		SenderID:  m.From.ID,
		Username:  m.From.UserName,
		MessageID: m.MessageID,
		Text:      text,
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.IsCommand() {
		msg.Command = m.Command()
		msg.CommandArgs = m.CommandArguments()
	}
	return msg, true
}

// --- domain.Messenger ---

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	sent, err := t.send(ctx, tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *Telegram) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := t.send(ctx, tgbotapi.NewEditMessageText(chatID, messageID, text))
	if isNotModified(err) {
		return nil
	}
	return err
}

func (t *Telegram) SendDocument(ctx context.Context, chatID int64, doc domain.Document) error {
	f, err := os.Open(doc.Path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: doc.Filename, Reader: f})
	cfg.Caption = doc.Caption
	// Uploads are not retried: the reader is consumed by the first attempt.
	if err := t.pace(ctx); err != nil {
		return err
	}
	if _, err := t.bot.Send(cfg); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (t *Telegram) SendWelcome(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(delivery.SendLinkButtonText, delivery.CallbackSendLink),
		),
	)
	_, err := t.send(ctx, msg)
	return err
}

// AnswerCallback stops the button spinner and, when text is set, replaces
// the message that carried the button.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID string, chatID int64, messageID int, text string) error {
	if err := t.pace(ctx); err != nil {
		return err
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		t.logger.Debug("callback answer failed", "err", err)
	}
	if text == "" {
		return nil
	}
	return t.EditText(ctx, chatID, messageID, text)
}

// send delivers c, waiting out Telegram flood limits (HTTP 429).
func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	for attempt := 0; ; attempt++ {
		if err := t.pace(ctx); err != nil {
			return tgbotapi.Message{}, err
		}
		sent, err := t.bot.Send(c)
		if err == nil {
			return sent, nil
		}

		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 || attempt >= telegramMaxSendRetries {
			return tgbotapi.Message{}, err
		}
		retryAfter := time.Duration(apiErr.RetryAfter) * time.Second
		t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return tgbotapi.Message{}, ctx.Err()
		}
	}
}

func (t *Telegram) pace(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// botLogger routes the Bot API library's logs to slog at debug level.
type botLogger struct{ l *slog.Logger }

func (b botLogger) Println(v ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "tgbotapi")
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "tgbotapi")
}
