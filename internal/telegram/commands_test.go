package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandUpdate(command string) tgbotapi.Update {
	text := "/" + command
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From: &tgbotapi.User{
				ID:       12345,
				UserName: "testuser",
			},
			Chat: &tgbotapi.Chat{
				ID:   67890,
				Type: "private",
			},
			Text: text,
			Date: 1234567890,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(text)},
			},
		},
	}
}

func TestNewCommands(t *testing.T) {
	bot := createTestBot(t)
	commands := NewCommands(bot)

	assert.NotNil(t, commands)
	assert.NotNil(t, commands.handlers)
}

func TestCommands_RegisterAndDispatch(t *testing.T) {
	bot := createTestBot(t)
	commands := NewCommands(bot)

	var sent string
	commands.send = func(chatID int64, text string) error {
		sent = text
		return nil
	}

	var got CommandContext
	commands.Register("start", func(ctx CommandContext) string {
		got = ctx
		return "welcome"
	})

	require.NoError(t, commands.HandleCommand(commandUpdate("start")))

	assert.Equal(t, "start", got.Command)
	assert.Equal(t, int64(12345), got.UserID)
	assert.Equal(t, int64(67890), got.ChatID)
	assert.Equal(t, "welcome", sent)
}

func TestCommands_UnknownCommand(t *testing.T) {
	bot := createTestBot(t)
	commands := NewCommands(bot)

	var sent string
	commands.send = func(chatID int64, text string) error {
		sent = text
		return nil
	}

	require.NoError(t, commands.HandleCommand(commandUpdate("dance")))
	assert.Contains(t, sent, "/dance")
}

func TestCommands_NonCommandIgnored(t *testing.T) {
	bot := createTestBot(t)
	commands := NewCommands(bot)

	commands.send = func(chatID int64, text string) error {
		t.Fatal("nothing should be sent")
		return nil
	}

	assert.NoError(t, commands.HandleCommand(textUpdate(1, 2, "plain text")))
	assert.NoError(t, commands.HandleCommand(tgbotapi.Update{}))
}

func TestCommands_Registered(t *testing.T) {
	bot := createTestBot(t)
	commands := NewCommands(bot)

	commands.Register("start", func(CommandContext) string { return "" })
	commands.Register("help", func(CommandContext) string { return "" })

	assert.ElementsMatch(t, []string{"start", "help"}, commands.Registered())
}
