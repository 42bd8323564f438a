package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keyshop/entity"
	"keyshop/impl/auth"
	"keyshop/impl/purchase"
	"keyshop/lib/password"
	"keyshop/lib/sl"

	"github.com/shopspring/decimal"
)

const (
	historyLimit       = 10
	defaultBookkeepingTimeout = 5 * time.Second
)

// Repository is the durable store of accounts, products and keys.
type Repository interface {
	purchase.Store
	auth.Database
	Account(ctx context.Context, id int64) (*entity.Account, error)
	Accounts(ctx context.Context) ([]*entity.Account, error)
	AdminTelegramIds(ctx context.Context) ([]int64, error)
	CreateAccount(ctx context.Context, account *entity.Account) (*entity.Account, error)
	AdjustBalance(ctx context.Context, accountId int64, delta decimal.Decimal) (*entity.Account, error)
	Categories(ctx context.Context) ([]string, error)
	ProductsInCategory(ctx context.Context, category string) ([]*entity.ProductStock, error)
	Products(ctx context.Context) ([]*entity.ProductStock, error)
	Product(ctx context.Context, id int64) (*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	AddKeys(ctx context.Context, productId int64, licenses []string) (*entity.KeyLoadResult, error)
	Keys(ctx context.Context, productId int64) ([]*entity.Key, error)
	Purchases(ctx context.Context, accountId int64, limit int) ([]*entity.Purchase, error)
}

// Journal keeps purchase receipts outside the main store.
type Journal interface {
	SavePurchase(ctx context.Context, p *entity.Purchase) error
	Purchases(ctx context.Context, accountId int64, limit int) ([]*entity.Purchase, error)
}

type Metrics interface {
	RecordPurchase(result string, duration time.Duration)
	RecordLogin(result string)
	RecordKeysLoaded(count int)
}

type SaleNotifier interface {
	NotifySale(p *entity.Purchase, handle string)
}

type Core struct {
	repo     Repository
	buyer    *purchase.Coordinator
	auth     *auth.Auth
	journal  Journal
	metrics  Metrics
	notifier SaleNotifier
	log      *slog.Logger
	// bounds journal and notifier work after a purchase commits
	bookkeepingTimeout time.Duration
}

func New(repo Repository, log *slog.Logger) *Core {
	if repo == nil {
		panic("repository is nil")
	}
	return &Core{
		repo:  repo,
		buyer: purchase.New(repo, log),
		auth:  auth.New(repo, log),
		log:   log.With(sl.Module("core")),

		bookkeepingTimeout: defaultBookkeepingTimeout,
	}
}

func (c *Core) SetJournal(journal Journal) {
	c.journal = journal
}

func (c *Core) SetMetrics(metrics Metrics) {
	c.metrics = metrics
}

func (c *Core) SetSaleNotifier(notifier SaleNotifier) {
	c.notifier = notifier
}

// EnsureAdmin creates the administrator account when the store has no
// accounts at all. Without a configured credential nothing is created.
func (c *Core) EnsureAdmin(ctx context.Context, conf *entity.NewAccount) error {
	accounts, err := c.repo.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}
	if conf.Credential == "" {
		c.log.Warn("no accounts and no admin credential configured; administrator not created")
		return nil
	}
	conf.IsAdmin = true
	account, err := c.CreateAccount(ctx, conf)
	if err != nil {
		return fmt.Errorf("seed administrator: %w", err)
	}
	c.log.With(
		slog.Int64("account_id", account.Id),
		slog.String("handle", account.Handle),
	).Info("administrator created")
	return nil
}

func (c *Core) Resolve(ctx context.Context, telegramId int64) (*entity.Account, error) {
	return c.auth.Resolve(ctx, telegramId)
}

func (c *Core) Login(ctx context.Context, telegramId int64, handle, credential string) (*entity.Account, error) {
	account, err := c.auth.Login(ctx, telegramId, handle, credential)
	if c.metrics != nil {
		c.metrics.RecordLogin(entity.ErrorKind(err))
	}
	return account, err
}

func (c *Core) Logout(ctx context.Context, telegramId int64) error {
	return c.auth.Logout(ctx, telegramId)
}

func (c *Core) AuthenticateAdmin(ctx context.Context, handle, credential string) (*entity.Account, error) {
	return c.auth.AuthenticateAdmin(ctx, handle, credential)
}

func (c *Core) Categories(ctx context.Context) ([]string, error) {
	return c.repo.Categories(ctx)
}

func (c *Core) ProductsInCategory(ctx context.Context, category string) ([]*entity.ProductStock, error) {
	return c.repo.ProductsInCategory(ctx, category)
}

// Purchase buys one key of the product at the price the buyer was shown.
func (c *Core) Purchase(ctx context.Context, accountId, productId int64, price decimal.Decimal) (*entity.Purchase, error) {
	started := time.Now()
	result, err := c.buyer.AttemptPurchase(ctx, accountId, productId, purchase.ExpectPrice(price))
	if c.metrics != nil {
		c.metrics.RecordPurchase(entity.ErrorKind(err), time.Since(started))
	}
	if err != nil {
		return nil, err
	}

	// the purchase is committed; bookkeeping below must not fail or stall it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.bookkeepingTimeout)
	defer cancel()
	if c.journal != nil {
		if err = c.journal.SavePurchase(ctx, result); err != nil {
			c.log.With(
				slog.String("purchase_id", result.Id),
				sl.Err(err),
			).Warn("journal purchase")
		}
	}
	if c.notifier != nil {
		handle := fmt.Sprintf("#%d", accountId)
		if account, err := c.repo.Account(ctx, accountId); err == nil {
			handle = account.Handle
		}
		c.notifier.NotifySale(result, handle)
	}
	return result, nil
}

// History lists the latest purchases of the account linked to the chat.
func (c *Core) History(ctx context.Context, telegramId int64) ([]*entity.Purchase, error) {
	account, err := c.auth.Resolve(ctx, telegramId)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, entity.ErrAccountNotFound
	}
	if c.journal != nil {
		list, err := c.journal.Purchases(ctx, account.Id, historyLimit)
		if err == nil {
			return list, nil
		}
		c.log.With(
			slog.Int64("account_id", account.Id),
			sl.Err(err),
		).Warn("journal history; falling back to store")
	}
	return c.repo.Purchases(ctx, account.Id, historyLimit)
}

func (c *Core) AdminChatIds(ctx context.Context) ([]int64, error) {
	return c.repo.AdminTelegramIds(ctx)
}

func (c *Core) Accounts(ctx context.Context) ([]*entity.Account, error) {
	return c.repo.Accounts(ctx)
}

func (c *Core) Account(ctx context.Context, id int64) (*entity.Account, error) {
	return c.repo.Account(ctx, id)
}

func (c *Core) CreateAccount(ctx context.Context, req *entity.NewAccount) (*entity.Account, error) {
	if len(req.Credential) > password.MaxLength {
		return nil, entity.ValidationError(fmt.Sprintf("credential is longer than %d bytes", password.MaxLength))
	}
	hash, err := password.GetHash(req.Credential)
	if err != nil {
		return nil, err
	}
	return c.repo.CreateAccount(ctx, &entity.Account{
		Handle:     req.Handle,
		Credential: hash,
		Balance:    req.Balance.Round(2),
		IsAdmin:    req.IsAdmin,
	})
}

func (c *Core) AdjustBalance(ctx context.Context, accountId int64, delta decimal.Decimal) (*entity.Account, error) {
	account, err := c.repo.AdjustBalance(ctx, accountId, delta.Round(2))
	if err != nil {
		return nil, err
	}
	c.log.With(
		slog.Int64("account_id", accountId),
		slog.String("delta", entity.FormatMoney(delta)),
		slog.String("balance", entity.FormatMoney(account.Balance)),
	).Info("balance adjusted")
	return account, nil
}

func (c *Core) Products(ctx context.Context) ([]*entity.ProductStock, error) {
	return c.repo.Products(ctx)
}

func (c *Core) Product(ctx context.Context, id int64) (*entity.Product, error) {
	return c.repo.Product(ctx, id)
}

func (c *Core) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	return c.repo.CreateProduct(ctx, product)
}

func (c *Core) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	if err := c.repo.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return c.repo.Product(ctx, product.Id)
}

func (c *Core) DeleteProduct(ctx context.Context, id int64) error {
	if err := c.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	c.log.With(slog.Int64("product_id", id)).Info("product deleted")
	return nil
}

func (c *Core) AddKeys(ctx context.Context, productId int64, batch *entity.KeyBatch) (*entity.KeyLoadResult, error) {
	result, err := c.repo.AddKeys(ctx, productId, batch.Lines())
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordKeysLoaded(result.Added)
	}
	c.log.With(
		slog.Int64("product_id", productId),
		slog.Int("added", result.Added),
		slog.Int("duplicates", len(result.Duplicates)),
	).Info("keys loaded")
	return result, nil
}

func (c *Core) Keys(ctx context.Context, productId int64) ([]*entity.Key, error) {
	return c.repo.Keys(ctx, productId)
}

// IsAdminChat reports whether the chat is linked to an administrator.
func (c *Core) IsAdminChat(ctx context.Context, telegramId int64) bool {
	account, err := c.auth.Resolve(ctx, telegramId)
	if err != nil && !errors.Is(err, entity.ErrAccountNotFound) {
		c.log.With(slog.Int64("telegram_id", telegramId), sl.Err(err)).Warn("admin check")
	}
	return account != nil && account.IsAdmin
}
