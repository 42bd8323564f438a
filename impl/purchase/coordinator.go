// Package purchase settles one purchase attempt: it claims a single
// available key and debits the buyer inside one storage transaction.
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"keyshop/entity"
	"keyshop/lib/sl"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tx is the inventory and ledger contract available inside one atomic unit.
// Every method reads or writes state as of the running transaction.
type Tx interface {
	// AccountForUpdate returns the account and holds it against concurrent
	// debits until the transaction ends.
	AccountForUpdate(ctx context.Context, accountId int64) (*entity.Account, error)
	Product(ctx context.Context, productId int64) (*entity.Product, error)
	// FindAvailableKey returns nil when no key can be claimed by this
	// transaction.
	FindAvailableKey(ctx context.Context, productId int64) (*entity.KeyRef, error)
	// ClaimKey reports false when the key is no longer available.
	ClaimKey(ctx context.Context, keyId, accountId int64) (bool, error)
	// DebitAccount reports false when the balance is below amount.
	DebitAccount(ctx context.Context, accountId int64, amount decimal.Decimal) (decimal.Decimal, bool, error)
}

// Store runs fn in one transaction: committed when fn returns nil,
// rolled back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Option func(*attempt)

type attempt struct {
	expectPrice *decimal.Decimal
}

// ExpectPrice fails the attempt with ErrPriceChanged when the product price
// at commit time differs from the price the buyer was shown.
func ExpectPrice(price decimal.Decimal) Option {
	return func(a *attempt) {
		a.expectPrice = &price
	}
}

type Coordinator struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

func New(store Store, log *slog.Logger) *Coordinator {
	if store == nil {
		panic("purchase store is nil")
	}
	return &Coordinator{
		store: store,
		now:   time.Now,
		log:   log.With(sl.Module("purchase")),
	}
}

// AttemptPurchase claims one available key of the product for the account
// and debits its price. On any error nothing is changed. The attempt is not
// cancelled by ctx once started.
func (c *Coordinator) AttemptPurchase(ctx context.Context, accountId, productId int64, opts ...Option) (*entity.Purchase, error) {
	var a attempt
	for _, opt := range opts {
		opt(&a)
	}

	ctx = context.WithoutCancel(ctx)
	log := c.log.With(
		slog.Int64("account_id", accountId),
		slog.Int64("product_id", productId),
	)

	var result *entity.Purchase
	err := c.store.InTx(ctx, func(tx Tx) error {
		account, err := tx.AccountForUpdate(ctx, accountId)
		if err != nil {
			return err
		}
		product, err := tx.Product(ctx, productId)
		if err != nil {
			return err
		}
		if a.expectPrice != nil && !a.expectPrice.Equal(product.Price) {
			return entity.ErrPriceChanged
		}

		key, err := tx.FindAvailableKey(ctx, productId)
		if err != nil {
			return err
		}
		if key == nil {
			return entity.ErrOutOfStock
		}
		if account.Balance.LessThan(product.Price) {
			return entity.ErrInsufficientBalance
		}

		claimed, err := tx.ClaimKey(ctx, key.Id, accountId)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: key %d claimed concurrently", entity.ErrConflict, key.Id)
		}

		balance, ok, err := tx.DebitAccount(ctx, accountId, product.Price)
		if err != nil {
			return err
		}
		if !ok {
			return entity.ErrInsufficientBalance
		}

		result = &entity.Purchase{
			Id:          uuid.NewString(),
			AccountId:   accountId,
			ProductId:   productId,
			ProductName: product.Name,
			KeyId:       key.Id,
			License:     key.License,
			Price:       product.Price,
			Balance:     balance,
			CreatedAt:   c.now(),
		}
		return nil
	})

	kind := entity.ErrorKind(err)
	switch kind {
	case entity.KindOk:
		log.With(
			slog.String("purchase_id", result.Id),
			slog.Int64("key_id", result.KeyId),
			slog.String("price", entity.FormatMoney(result.Price)),
		).Info("purchase completed")
		return result, nil
	case entity.KindStorage:
		log.Error("purchase aborted", sl.Err(err))
	default:
		log.With(slog.String("reason", kind)).Debug("purchase rejected")
	}
	return nil, fmt.Errorf("purchase: %w", err)
}
