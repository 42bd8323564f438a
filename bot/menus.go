package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Command lists for Telegram's menu button. Buyers mostly use the reply
// keyboard, so their list stays short.

var commandsBuyer = []tgbotapi.BotCommand{
	{Command: "start", Description: "Show the main menu"},
	{Command: "help", Description: "Show available commands"},
}

var commandsAdmin = []tgbotapi.BotCommand{
	{Command: "start", Description: "Show the main menu"},
	{Command: "stock", Description: "Products and available keys"},
	{Command: "accounts", Description: "Accounts and balances"},
	{Command: "help", Description: "Show available commands"},
}

func (t *TgBot) setDefaultCommands() {
	_, err := t.api.SetMyCommands(commandsBuyer, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}
}

// syncAdminMenus gives every chat linked to an administrator the admin menu.
func (t *TgBot) syncAdminMenus() {
	for _, chatId := range t.admins() {
		_, err := t.api.SetMyCommands(commandsAdmin, &tgbotapi.SetMyCommandsOpts{
			Scope: tgbotapi.BotCommandScopeChat{ChatId: chatId},
		})
		if err != nil {
			t.log.Warn("setting admin commands", "chat_id", chatId, "error", err)
		}
	}
}
