package bot

import (
	"context"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

const helpText = "Use the menu buttons to log in, buy keys and check your account.\n\n" +
	"/start - main menu\n" +
	"/help - this message"

const helpTextAdmin = "\n\nAdministrator commands:\n" +
	"/stock - products and available keys\n" +
	"/accounts - accounts and balances"

// start resets the conversation and shows the main menu.
func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	t.sendReply(chatId, t.conv.Start(reqCtx, chatId))
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	text := helpText
	if t.core.IsAdminChat(reqCtx, chatId) {
		text += helpTextAdmin
	}
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
	return err
}

// onText feeds a message into the conversation of the sender.
func (t *TgBot) onText(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	t.sendReply(chatId, t.conv.Handle(reqCtx, chatId, ctx.EffectiveMessage.Text))
	return nil
}
