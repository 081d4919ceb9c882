package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Commands dispatches bot commands like /start and /help.
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]CommandFunc

	// send is a seam for tests; defaults to bot.SendMessage.
	send func(chatID int64, text string) error
}

// CommandFunc handles one command and returns the text to send back.
type CommandFunc func(CommandContext) string

// CommandContext contains command metadata.
type CommandContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Command   string
}

// NewCommands creates a new command dispatcher.
func NewCommands(bot *Bot) *Commands {
	return &Commands{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
		send:     bot.SendMessage,
	}
}

// Register registers a command handler.
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Info().Str("command", command).Msg("Command registered")
}

// HandleCommand processes an incoming command and sends the handler's reply.
func (c *Commands) HandleCommand(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	command := msg.Command()

	ctx := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		Command:   command,
	}

	c.logger.Debug().
		Int64("user_id", ctx.UserID).
		Str("command", command).
		Msg("Command received")

	handler, exists := c.handlers[command]
	if !exists {
		return c.send(ctx.ChatID, fmt.Sprintf("Unknown command: /%s", command))
	}

	return c.send(ctx.ChatID, handler(ctx))
}

// SetCommands publishes the command list to Telegram.
func (c *Commands) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := c.bot.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}

// Registered returns all registered command names.
func (c *Commands) Registered() []string {
	commands := make([]string, 0, len(c.handlers))
	for cmd := range c.handlers {
		commands = append(commands, cmd)
	}
	return commands
}
