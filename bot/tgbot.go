// Package bot is the Telegram storefront.
//
//   - tgbot.go     TgBot struct, lifecycle (Start/Stop), admin chat cache
//   - commands.go  buyer entry points: /start, /help and free text
//   - admin.go     admin commands: /stock, /accounts
//   - callbacks.go inline and reply keyboard builders, purchase history callback
//   - menus.go     per-chat command menus
//   - messaging.go log notifications and sale reports for administrators
//   - digest.go    DigestBuffer for batched admin reports
//   - helpers.go   message sending, splitting and error reporting
//
// Buyer messages go through the conversation machine and are sent as plain
// text; admin messages are MarkdownV2.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keyshop/entity"
	"keyshop/internal/session"
	"keyshop/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
)

const (
	requestTimeout       = 30 * time.Second
	adminRefreshInterval = 5 * time.Minute
)

type BotConfig struct {
	DigestIntervalMin int
}

// Conversation is the per-chat state machine.
type Conversation interface {
	Start(ctx context.Context, chatId int64) session.Reply
	Handle(ctx context.Context, chatId int64, text string) session.Reply
}

// Core is the part of the application the bot reads from.
type Core interface {
	History(ctx context.Context, telegramId int64) ([]*entity.Purchase, error)
	IsAdminChat(ctx context.Context, telegramId int64) bool
	AdminChatIds(ctx context.Context) ([]int64, error)
	Products(ctx context.Context) ([]*entity.ProductStock, error)
	Accounts(ctx context.Context) ([]*entity.Account, error)
}

type TgBot struct {
	log      *slog.Logger
	api      *tgbotapi.Bot
	conv     Conversation
	core     Core
	mu       sync.RWMutex // guards adminIds
	adminIds []int64      // chats linked to administrator accounts
	updater  *ext.Updater
	digest   *DigestBuffer
	config   BotConfig
}

// NewTgBot creates the bot API client. The bot logs through log only, never
// through a logger that notifies administrators, so failed sends can not loop.
func NewTgBot(apiKey string, log *slog.Logger, cfg BotConfig) (*TgBot, error) {
	if cfg.DigestIntervalMin == 0 {
		cfg.DigestIntervalMin = 60
	}

	tgBot := &TgBot{
		log:    log.With(sl.Module("tgbot")),
		config: cfg,
	}
	tgBot.digest = NewDigestBuffer(tgBot, time.Duration(cfg.DigestIntervalMin)*time.Minute)

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

// SetCore and SetConversation must be called before Start.
func (t *TgBot) SetCore(core Core) {
	t.core = core
}

func (t *TgBot) SetConversation(conv Conversation) {
	t.conv = conv
}

func (t *TgBot) Start() error {
	if t.core == nil || t.conv == nil {
		return fmt.Errorf("bot is not attached to the shop")
	}
	t.loadAdmins()
	t.digest.StartTicker()

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))

	dispatcher.AddHandler(handlers.NewCommand("stock", t.stockCmd))
	dispatcher.AddHandler(handlers.NewCommand("accounts", t.accountsCmd))

	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(session.ActionHistory), t.onHistoryCallback))

	// everything else typed or pressed on the reply keyboard
	dispatcher.AddHandler(handlers.NewMessage(message.Text, t.onText))

	t.setDefaultCommands()
	t.syncAdminMenus()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	t.digest.Stop()
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}

// loadAdmins refreshes the cached administrator chats used for notifications.
func (t *TgBot) loadAdmins() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ids, err := t.core.AdminChatIds(ctx)
	if err != nil {
		t.log.Warn("loading admin chats", sl.Err(err))
		return
	}

	t.mu.Lock()
	t.adminIds = ids
	t.mu.Unlock()

	t.log.With(slog.Int("admins", len(ids))).Debug("loaded admin chats")
}

func (t *TgBot) admins() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, len(t.adminIds))
	copy(ids, t.adminIds)
	return ids
}
