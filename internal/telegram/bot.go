package telegram

import (
	"fmt"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/savta-labs/savta/internal/config"
	"github.com/savta-labs/savta/internal/logger"
)

// Bot wraps the Telegram long-polling transport. It owns update delivery
// and message sending; conversation behavior lives behind the handlers.
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	logger zerolog.Logger

	commands *Commands
	handler  *Handler

	// running is read by the update loop goroutine while Stop flips it.
	running atomic.Bool
	updates tgbotapi.UpdatesChannel
	done    chan struct{}
}

// New creates a new Telegram bot instance.
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:    api,
		config: cfg,
		logger: log.GetZerolog().With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// SetCommands sets the command handler.
func (b *Bot) SetCommands(commands *Commands) {
	b.commands = commands
}

// SetHandler sets the text message handler.
func (b *Bot) SetHandler(handler *Handler) {
	b.handler = handler
}

// Start begins processing updates.
func (b *Bot) Start() error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	if u.Timeout <= 0 {
		u.Timeout = 60
	}

	b.updates = b.api.GetUpdatesChan(u)
	b.done = make(chan struct{})

	go b.processUpdates()

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops the bot and waits for the update loop to drain.
func (b *Bot) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")

	b.api.StopReceivingUpdates()
	<-b.done

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// IsRunning reports whether the update loop is active.
func (b *Bot) IsRunning() bool {
	return b.running.Load()
}

func (b *Bot) processUpdates() {
	defer close(b.done)

	for update := range b.updates {
		if !b.running.Load() {
			break
		}

		if err := b.handleUpdate(update); err != nil {
			b.logger.Error().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to handle update")
		}
	}
}

// handleUpdate routes an update. Non-message updates and non-text messages
// are ignored; the persona only speaks text.
func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	if update.Message.IsCommand() && b.commands != nil {
		return b.commands.HandleCommand(update)
	}

	if b.handler != nil {
		return b.handler.HandleMessage(update)
	}

	return nil
}

// SendMessage sends a plain text message.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().Int64("chat_id", chatID).Msg("Message sent")

	return nil
}

// SendMessageWithReply sends a text message as a reply.
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToMessageID

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("reply_to", replyToMessageID).
		Msg("Reply sent")

	return nil
}

// SendTyping shows the typing indicator while a reply is being generated.
func (b *Bot) SendTyping(chatID int64) error {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Send(action); err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}
	return nil
}
