package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"keyshop/entity"
	"keyshop/internal/database/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJournal struct {
	saved   []*entity.Purchase
	saveErr error
	readErr error
}

func (j *fakeJournal) SavePurchase(_ context.Context, p *entity.Purchase) error {
	if j.saveErr != nil {
		return j.saveErr
	}
	j.saved = append(j.saved, p)
	return nil
}

func (j *fakeJournal) Purchases(_ context.Context, _ int64, _ int) ([]*entity.Purchase, error) {
	if j.readErr != nil {
		return nil, j.readErr
	}
	return j.saved, nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	purchases map[string]int
	logins    map[string]int
	keys      int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{purchases: map[string]int{}, logins: map[string]int{}}
}

func (m *fakeMetrics) RecordPurchase(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[result]++
}

func (m *fakeMetrics) RecordLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[result]++
}

func (m *fakeMetrics) RecordKeysLoaded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys += count
}

type fakeNotifier struct {
	handles []string
}

func (n *fakeNotifier) NotifySale(_ *entity.Purchase, handle string) {
	n.handles = append(n.handles, handle)
}

func newCore(t *testing.T) (*Core, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestEnsureAdmin(t *testing.T) {
	c, store := newCore(t)
	ctx := context.Background()

	require.NoError(t, c.EnsureAdmin(ctx, &entity.NewAccount{Handle: "admin"}))
	accounts, _ := store.Accounts(ctx)
	assert.Empty(t, accounts)

	seed := &entity.NewAccount{Handle: "admin", Credential: "adminpass", Balance: decimal.NewFromInt(1000)}
	require.NoError(t, c.EnsureAdmin(ctx, seed))
	require.NoError(t, c.EnsureAdmin(ctx, seed))
	accounts, _ = store.Accounts(ctx)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsAdmin)
	assert.NotEqual(t, "adminpass", accounts[0].Credential)

	admin, err := c.AuthenticateAdmin(ctx, "Admin", "adminpass")
	require.NoError(t, err)
	assert.Equal(t, accounts[0].Id, admin.Id)
}

func setupShop(t *testing.T, c *Core) (*entity.Account, *entity.Product) {
	t.Helper()
	ctx := context.Background()
	account, err := c.CreateAccount(ctx, &entity.NewAccount{
		Handle:     "alice",
		Credential: "pw",
		Balance:    decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	product, err := c.CreateProduct(ctx, &entity.Product{Name: "Widget", Category: "Tools", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)
	res, err := c.AddKeys(ctx, product.Id, &entity.KeyBatch{Licenses: "K1\nK2\n\nK1"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Added)
	return account, product
}

func TestPurchase_Bookkeeping(t *testing.T) {
	c, _ := newCore(t)
	journal := &fakeJournal{}
	metrics := newFakeMetrics()
	notifier := &fakeNotifier{}
	c.SetJournal(journal)
	c.SetMetrics(metrics)
	c.SetSaleNotifier(notifier)
	account, product := setupShop(t, c)
	ctx := context.Background()

	res, err := c.Purchase(ctx, account.Id, product.Id, product.Price)
	require.NoError(t, err)
	assert.Equal(t, "K1", res.License)
	require.Len(t, journal.saved, 1)
	assert.Equal(t, res.Id, journal.saved[0].Id)
	assert.Equal(t, []string{"alice"}, notifier.handles)

	_, err = c.Purchase(ctx, account.Id, product.Id, decimal.NewFromInt(9))
	assert.ErrorIs(t, err, entity.ErrPriceChanged)

	assert.Equal(t, 1, metrics.purchases[entity.KindOk])
	assert.Equal(t, 1, metrics.purchases[entity.KindPriceChanged])
	assert.Equal(t, 2, metrics.keys)
	assert.Len(t, notifier.handles, 1)
}

func TestPurchase_JournalFailureKeepsPurchase(t *testing.T) {
	c, store := newCore(t)
	c.SetJournal(&fakeJournal{saveErr: errors.New("mongo down")})
	account, product := setupShop(t, c)
	ctx := context.Background()

	res, err := c.Purchase(ctx, account.Id, product.Id, product.Price)
	require.NoError(t, err)
	assert.Equal(t, "20.00", entity.FormatMoney(res.Balance))

	stored, _ := store.Account(ctx, account.Id)
	assert.Equal(t, "20.00", entity.FormatMoney(stored.Balance))
}

// blockingJournal waits for its context like a journal that never answers.
type blockingJournal struct {
	ctxErr error
}

func (j *blockingJournal) SavePurchase(ctx context.Context, _ *entity.Purchase) error {
	<-ctx.Done()
	j.ctxErr = ctx.Err()
	return ctx.Err()
}

func (j *blockingJournal) Purchases(_ context.Context, _ int64, _ int) ([]*entity.Purchase, error) {
	return nil, nil
}

func TestPurchase_SlowJournalIsBounded(t *testing.T) {
	c, _ := newCore(t)
	c.bookkeepingTimeout = 50 * time.Millisecond
	journal := &blockingJournal{}
	c.SetJournal(journal)
	account, product := setupShop(t, c)

	// the caller deadline is far away and must not be what ends the wait
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	started := time.Now()
	res, err := c.Purchase(ctx, account.Id, product.Id, product.Price)
	require.NoError(t, err)
	assert.Equal(t, "K1", res.License)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.ErrorIs(t, journal.ctxErr, context.DeadlineExceeded)
}

func TestCreateAccount_CredentialTooLong(t *testing.T) {
	c, _ := newCore(t)
	_, err := c.CreateAccount(context.Background(), &entity.NewAccount{
		Handle:     "long",
		Credential: strings.Repeat("x", 80),
	})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestHistory(t *testing.T) {
	c, _ := newCore(t)
	account, product := setupShop(t, c)
	ctx := context.Background()

	_, err := c.History(ctx, 55)
	assert.ErrorIs(t, err, entity.ErrAccountNotFound)

	_, err = c.Login(ctx, 55, "alice", "pw")
	require.NoError(t, err)
	_, err = c.Purchase(ctx, account.Id, product.Id, product.Price)
	require.NoError(t, err)

	list, err := c.History(ctx, 55)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "K1", list[0].License)
	assert.Equal(t, "Widget", list[0].ProductName)

	journal := &fakeJournal{readErr: errors.New("mongo down")}
	c.SetJournal(journal)
	list, err = c.History(ctx, 55)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLoginMetrics(t *testing.T) {
	c, _ := newCore(t)
	metrics := newFakeMetrics()
	c.SetMetrics(metrics)
	setupShop(t, c)
	ctx := context.Background()

	_, err := c.Login(ctx, 1, "alice", "bad")
	assert.ErrorIs(t, err, entity.ErrInvalidCredentials)
	_, err = c.Login(ctx, 1, "alice", "pw")
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.logins[entity.KindUnauthorized])
	assert.Equal(t, 1, metrics.logins[entity.KindOk])
	assert.False(t, c.IsAdminChat(ctx, 1))
	assert.False(t, c.IsAdminChat(ctx, 2))
}

func TestAdjustBalance(t *testing.T) {
	c, _ := newCore(t)
	account, _ := setupShop(t, c)
	ctx := context.Background()

	updated, err := c.AdjustBalance(ctx, account.Id, decimal.RequireFromString("-29.999"))
	require.NoError(t, err)
	assert.Equal(t, "0.00", entity.FormatMoney(updated.Balance))

	_, err = c.AdjustBalance(ctx, account.Id, decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, entity.ErrInsufficientBalance)
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	c, _ := newCore(t)
	account, product := setupShop(t, c)
	ctx := context.Background()

	edit := *product
	edit.Price = decimal.NewFromInt(12)
	updated, err := c.UpdateProduct(ctx, &edit)
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(12)))

	require.NoError(t, c.DeleteProduct(ctx, product.Id))
	_, err = c.Purchase(ctx, account.Id, product.Id, decimal.NewFromInt(12))
	assert.ErrorIs(t, err, entity.ErrProductNotFound)
	_, err = c.Keys(ctx, product.Id)
	assert.ErrorIs(t, err, entity.ErrProductNotFound)
}
