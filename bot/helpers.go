package bot

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"keyshop/internal/session"
	"keyshop/lib/logger"
	"keyshop/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// plainResponse sends a MarkdownV2 message, falling back to raw text when
// Telegram rejects the markup.
func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

// sendReply sends a conversation reply as plain text: licenses and product
// names are shown exactly as stored.
func (t *TgBot) sendReply(chatId int64, reply session.Reply) {
	if reply.Text == "" {
		return
	}
	opts := &tgbotapi.SendMessageOpts{}
	if markup := replyMarkup(reply); markup != nil {
		opts.ReplyMarkup = markup
	}
	if _, err := t.api.SendMessage(chatId, reply.Text, opts); err != nil {
		t.log.With(slog.Int64("id", chatId)).Error("sending reply", sl.Err(err))
	}
}

func Sanitize(input string) string {
	return logger.Sanitize(input)
}

func (t *TgBot) notifyAdmins(msg string) {
	for _, id := range t.admins() {
		t.plainResponse(id, msg)
	}
}

// splitMessage cuts text into parts of at most maxLen bytes, preferring line
// breaks and never cutting inside a UTF-8 sequence.
func splitMessage(text string, maxLen int) []string {
	var parts []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n") + 1
		if cutAt == 0 {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				cutAt = maxLen
			}
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return append(parts, text)
}

// reportError logs the error, notifies admins with details, and sends a neutral message to the user.
func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		slog.Int64("user_id", chatId),
		sl.Err(err),
	)
	t.notifyAdmins(fmt.Sprintf(
		"Command `%s` failed\nUser: `%d`\nError: `%s`",
		Sanitize(command), chatId, Sanitize(err.Error()),
	))
	t.plainResponse(chatId, "Something went wrong\\. Please try again later\\.")
}
