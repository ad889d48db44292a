package domain

import "time"

// InboundMessage is a transport-neutral view of one chat update. It is
// JSON-encoded when the inbound queue lives in Redis.
type InboundMessage struct {
	Channel     string `json:"channel"`
	ChatID      int64  `json:"chat_id"`
	SenderID    int64  `json:"sender_id"`
	Username    string `json:"username,omitempty"`
	MessageID   int    `json:"message_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Command     string `json:"command,omitempty"` // without the leading slash, empty for plain text
	CommandArgs string `json:"command_args,omitempty"`
	// Callback fields are set when the update is an inline button press.
	CallbackID   string    `json:"callback_id,omitempty"`
	CallbackData string    `json:"callback_data,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// IsCallback reports whether the message is an inline keyboard callback.
func (m InboundMessage) IsCallback() bool { return m.CallbackID != "" }

// IsCommand reports whether the message is a bot command.
func (m InboundMessage) IsCommand() bool { return m.Command != "" }
