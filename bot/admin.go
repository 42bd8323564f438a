package bot

import (
	"context"
	"fmt"
	"strings"

	"keyshop/entity"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// requireAdmin checks the account linked to the chat, not the cache.
func (t *TgBot) requireAdmin(ctx context.Context, chatId int64) bool {
	if t.core.IsAdminChat(ctx, chatId) {
		return true
	}
	t.plainResponse(chatId, "Admin access required\\.")
	return false
}

// stockCmd lists all products with their key counts.
func (t *TgBot) stockCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if !t.requireAdmin(reqCtx, chatId) {
		return nil
	}

	products, err := t.core.Products(reqCtx)
	if err != nil {
		t.reportError(chatId, "/stock", err)
		return nil
	}
	for _, part := range splitMessage(formatStock(products), maxTelegramMessageLen) {
		t.plainResponse(chatId, part)
	}
	return nil
}

// accountsCmd lists accounts with balances.
func (t *TgBot) accountsCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if !t.requireAdmin(reqCtx, chatId) {
		return nil
	}

	accounts, err := t.core.Accounts(reqCtx)
	if err != nil {
		t.reportError(chatId, "/accounts", err)
		return nil
	}
	for _, part := range splitMessage(formatAccounts(accounts), maxTelegramMessageLen) {
		t.plainResponse(chatId, part)
	}
	return nil
}

func formatStock(products []*entity.ProductStock) string {
	if len(products) == 0 {
		return "No products found\\."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Products* \\(%d total\\)\n", len(products)))

	// Group by category, keeping the order products came in
	var categories []string
	grouped := map[string][]*entity.ProductStock{}
	for _, p := range products {
		if _, ok := grouped[p.Category]; !ok {
			categories = append(categories, p.Category)
		}
		grouped[p.Category] = append(grouped[p.Category], p)
	}

	for _, category := range categories {
		sb.WriteString(fmt.Sprintf("\n*%s*:\n", Sanitize(category)))
		for _, p := range grouped[category] {
			sb.WriteString(fmt.Sprintf("  `%d` %s \\| $%s \\| available:%d \\| used:%d\n",
				p.Id,
				Sanitize(p.Name),
				Sanitize(entity.FormatMoney(p.Price)),
				p.Available,
				p.Used,
			))
		}
	}
	return sb.String()
}

func formatAccounts(accounts []*entity.Account) string {
	if len(accounts) == 0 {
		return "No accounts found\\."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Accounts* \\(%d total\\)\n\n", len(accounts)))
	for _, a := range accounts {
		role := "buyer"
		if a.IsAdmin {
			role = "admin"
		}
		linked := "off"
		if a.IsLinked() {
			linked = "on"
		}
		sb.WriteString(fmt.Sprintf("  `%d` %s \\| $%s \\| %s \\| chat:%s\n",
			a.Id,
			Sanitize(a.Handle),
			Sanitize(entity.FormatMoney(a.Balance)),
			role,
			linked,
		))
	}
	return sb.String()
}
