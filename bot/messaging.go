package bot

import (
	"fmt"
	"log/slog"

	"keyshop/entity"
)

// SendMessageWithLevel receives log records forwarded by the logger. Errors
// reach administrators at once, anything lower waits for the digest.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	if level >= slog.LevelError {
		t.notifyAdmins(msg)
		return
	}
	t.digest.Add(msg, topicWarnings, level)
}

// NotifySale reports a completed purchase in the next digest.
func (t *TgBot) NotifySale(p *entity.Purchase, handle string) {
	t.digest.Add(formatSale(p, handle), topicSales, slog.LevelInfo)
}

func formatSale(p *entity.Purchase, handle string) string {
	return fmt.Sprintf("%s bought %s for $%s",
		Sanitize(handle),
		Sanitize(p.ProductName),
		Sanitize(entity.FormatMoney(p.Price)),
	)
}
