package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"keyshop/entity"
	"keyshop/internal/session"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// --- Keyboard builders ---

// replyMarkup converts a conversation reply into Telegram markup. A message
// carries one markup only: inline actions win over the reply keyboard,
// which then stays as it was.
func replyMarkup(reply session.Reply) tgbotapi.ReplyMarkup {
	if len(reply.Actions) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(reply.Actions))
		for _, a := range reply.Actions {
			row = append(row, tgbotapi.InlineKeyboardButton{
				Text:         a.Label,
				CallbackData: a.Data,
			})
		}
		return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{row}}
	}
	if reply.Keyboard == nil {
		return nil
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Keyboard))
	for _, labels := range reply.Keyboard {
		row := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			row = append(row, tgbotapi.KeyboardButton{Text: label})
		}
		rows = append(rows, row)
	}
	return tgbotapi.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}

func formatHistory(list []*entity.Purchase) string {
	if len(list) == 0 {
		return "📜 You have no purchases yet."
	}
	var sb strings.Builder
	sb.WriteString("📜 Purchase history\n")
	for i, p := range list {
		sb.WriteString(fmt.Sprintf("\n%d. %s - $%s\n   🔐 %s\n   %s\n",
			i+1,
			p.ProductName,
			entity.FormatMoney(p.Price),
			p.License,
			p.CreatedAt.Format("2006-01-02 15:04"),
		))
	}
	return sb.String()
}

// --- Callback handlers ---

// onHistoryCallback answers the "Purchase history" button of the account screen.
func (t *TgBot) onHistoryCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	chatId := cq.From.Id

	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	list, err := t.core.History(reqCtx, chatId)
	if errors.Is(err, entity.ErrAccountNotFound) {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Please log in first", ShowAlert: true})
		return nil
	}
	if err != nil {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Error occurred"})
		t.reportError(chatId, "history", err)
		return nil
	}

	_, _ = cq.Answer(t.api, nil)
	t.sendReply(chatId, session.Reply{Text: formatHistory(list)})
	return nil
}
