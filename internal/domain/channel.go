package domain

import "context"

// Channel is a source of inbound messages (webhook, long polling, console).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}

// Messenger is the outbound side of the chat transport.
// EditText must update the previously sent message in place.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (messageID int, err error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	SendDocument(ctx context.Context, chatID int64, doc Document) error
	SendWelcome(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID string, chatID int64, messageID int, text string) error
}

// Document is a local file to transmit as an attachment.
type Document struct {
	Path     string
	Filename string
	Caption  string
}
