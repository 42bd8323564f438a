package bot

import (
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"keyshop/entity"
	"keyshop/internal/session"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyMarkupKeyboard(t *testing.T) {
	markup := replyMarkup(session.Reply{Text: "menu", Keyboard: session.MainMenu(true)})

	kb, ok := markup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.ResizeKeyboard)
	require.Len(t, kb.Keyboard, 2)
	assert.Equal(t, session.BtnBuyKeys, kb.Keyboard[0][0].Text)
	assert.Equal(t, session.BtnMyAccount, kb.Keyboard[1][0].Text)
	assert.Equal(t, session.BtnLogOut, kb.Keyboard[1][1].Text)
}

func TestReplyMarkupActionsWin(t *testing.T) {
	markup := replyMarkup(session.Reply{
		Text:     "account",
		Keyboard: session.MainMenu(true),
		Actions:  []session.Action{{Label: "📜 Purchase history", Data: session.ActionHistory}},
	})

	inline, ok := markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, inline.InlineKeyboard, 1)
	assert.Equal(t, session.ActionHistory, inline.InlineKeyboard[0][0].CallbackData)
}

func TestReplyMarkupNone(t *testing.T) {
	assert.Nil(t, replyMarkup(session.Reply{Text: "just text"}))
}

func TestFormatHistory(t *testing.T) {
	assert.Contains(t, formatHistory(nil), "no purchases")

	at := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)
	text := formatHistory([]*entity.Purchase{
		{ProductName: "Widget", Price: decimal.RequireFromString("10"), License: "AAA-1", CreatedAt: at},
		{ProductName: "Gadget", Price: decimal.RequireFromString("2.5"), License: "BBB-2", CreatedAt: at},
	})
	assert.Contains(t, text, "1. Widget - $10.00")
	assert.Contains(t, text, "2. Gadget - $2.50")
	assert.Contains(t, text, "AAA-1")
	assert.Contains(t, text, "2026-03-01 14:05")
}

func TestFormatStockGroupsByCategory(t *testing.T) {
	products := []*entity.ProductStock{
		{Product: entity.Product{Id: 1, Name: "Widget", Category: "Tools", Price: decimal.RequireFromString("10")}, Available: 3, Used: 1},
		{Product: entity.Product{Id: 2, Name: "Game.X", Category: "Games", Price: decimal.RequireFromString("5")}, Available: 0, Used: 2},
		{Product: entity.Product{Id: 3, Name: "Hammer", Category: "Tools", Price: decimal.RequireFromString("1.5")}, Available: 1},
	}
	text := formatStock(products)

	assert.Contains(t, text, "\\(3 total\\)")
	assert.Contains(t, text, "Game\\.X")
	assert.Contains(t, text, "$10\\.00")
	assert.Contains(t, text, "available:3")
	assert.Less(t, strings.Index(text, "*Tools*"), strings.Index(text, "*Games*"))
	assert.Equal(t, 1, strings.Count(text, "*Tools*"))

	assert.Equal(t, "No products found\\.", formatStock(nil))
}

func TestFormatAccounts(t *testing.T) {
	chat := int64(42)
	text := formatAccounts([]*entity.Account{
		{Id: 1, Handle: "admin", IsAdmin: true, Balance: decimal.Zero, TelegramId: &chat},
		{Id: 2, Handle: "bob_1", Balance: decimal.RequireFromString("15")},
	})
	assert.Contains(t, text, "admin \\| $0\\.00 \\| admin \\| chat:on")
	assert.Contains(t, text, "bob\\_1 \\| $15\\.00 \\| buyer \\| chat:off")
}

func TestFormatDigestOrdersTopics(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	text := formatDigest([]DigestEntry{
		{Message: "disk slow", Topic: topicWarnings, Level: slog.LevelWarn, Timestamp: ts},
		{Message: "alice bought Widget", Topic: topicSales, Level: slog.LevelInfo, Timestamp: ts},
	})

	assert.Contains(t, text, "\\(2 messages\\)")
	assert.Contains(t, text, "`09:30` disk slow")
	assert.Less(t, strings.Index(text, "*Sales*"), strings.Index(text, "*Warnings*"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("line one\nline two\nline three", 12)
	require.Len(t, parts, 3)
	assert.Equal(t, "line one\n", parts[0])
	assert.Equal(t, "line two\n", parts[1])
	assert.Equal(t, "line three", parts[2])

	parts = splitMessage(strings.Repeat("x", 25), 10)
	require.Len(t, parts, 3)
	assert.Equal(t, strings.Repeat("x", 5), parts[2])
}

func TestWarningsAndSalesGoToDigest(t *testing.T) {
	b := &TgBot{}
	b.digest = NewDigestBuffer(b, time.Hour)

	b.SendMessageWithLevel("*WARN* `slow query`", slog.LevelWarn)
	b.NotifySale(&entity.Purchase{ProductName: "Widget", Price: decimal.RequireFromString("10")}, "alice")

	entries := b.digest.take()
	require.Len(t, entries, 2)
	assert.Equal(t, topicWarnings, entries[0].Topic)
	assert.Equal(t, topicSales, entries[1].Topic)
	assert.Equal(t, "alice bought Widget for $10\\.00", entries[1].Message)
	assert.Empty(t, b.digest.take())
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("ключ", 5) // 8 bytes each
	parts := splitMessage(text, 7)
	for _, part := range parts {
		assert.True(t, utf8.ValidString(part), part)
		assert.LessOrEqual(t, len(part), 7)
	}
	assert.Equal(t, text, strings.Join(parts, ""))
}
