package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Handler routes plain text messages to the conversation callback and sends
// the returned reply. The callback always returns a reply string; there is
// no error path from the conversation back to Telegram.
type Handler struct {
	bot    *Bot
	logger zerolog.Logger

	onMessage func(MessageContext) string

	// seams for tests; default to the bot's senders.
	send   func(chatID int64, text string, replyTo int) error
	typing func(chatID int64) error
}

// MessageContext contains message metadata. Message bodies are never logged.
type MessageContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Text      string
	Timestamp time.Time
	ChatType  string
}

// NewHandler creates a new message handler.
func NewHandler(bot *Bot) *Handler {
	return &Handler{
		bot:    bot,
		logger: bot.logger.With().Str("module", "handler").Logger(),
		send:   bot.SendMessageWithReply,
		typing: bot.SendTyping,
	}
}

// SetOnMessage sets the conversation callback.
func (h *Handler) SetOnMessage(callback func(MessageContext) string) {
	h.onMessage = callback
}

// HandleMessage processes an incoming text message.
func (h *Handler) HandleMessage(update tgbotapi.Update) error {
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message

	ctx := MessageContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
		ChatType:  msg.Chat.Type,
	}

	h.logger.Debug().
		Int64("user_id", ctx.UserID).
		Str("chat_type", ctx.ChatType).
		Msg("Message received")

	if h.onMessage == nil {
		return nil
	}

	// Typing indicator failures are cosmetic
	if err := h.typing(ctx.ChatID); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to send typing action")
	}

	reply := h.onMessage(ctx)

	return h.send(ctx.ChatID, reply, ctx.MessageID)
}
