// Package memory keeps the whole shop in process memory. Transactions are
// serialized by one mutex and undone from a journal on rollback.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"keyshop/entity"
	"keyshop/impl/purchase"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu          sync.Mutex
	accounts    map[int64]*entity.Account
	products    map[int64]*entity.Product
	keys        map[int64]*entity.Key
	lastAccount int64
	lastProduct int64
	lastKey     int64
	now         func() time.Time
}

func New() *Store {
	return &Store{
		accounts: make(map[int64]*entity.Account),
		products: make(map[int64]*entity.Product),
		keys:     make(map[int64]*entity.Key),
		now:      time.Now,
	}
}

func (s *Store) Close() {}

type tx struct {
	s    *Store
	undo []func()
}

func (s *Store) InTx(_ context.Context, fn func(tx purchase.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	err := fn(t)
	if err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	return err
}

func (t *tx) AccountForUpdate(_ context.Context, accountId int64) (*entity.Account, error) {
	a, ok := t.s.accounts[accountId]
	if !ok {
		return nil, entity.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (t *tx) Product(_ context.Context, productId int64) (*entity.Product, error) {
	p, ok := t.s.products[productId]
	if !ok {
		return nil, entity.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (t *tx) FindAvailableKey(_ context.Context, productId int64) (*entity.KeyRef, error) {
	var found *entity.Key
	for _, k := range t.s.keys {
		if k.ProductId != productId || k.Status != entity.KeyAvailable {
			continue
		}
		if found == nil || k.Id < found.Id {
			found = k
		}
	}
	if found == nil {
		return nil, nil
	}
	return &entity.KeyRef{Id: found.Id, License: found.License}, nil
}

func (t *tx) ClaimKey(_ context.Context, keyId, accountId int64) (bool, error) {
	k, ok := t.s.keys[keyId]
	if !ok || k.Status != entity.KeyAvailable {
		return false, nil
	}
	prev := *k
	usedAt := t.s.now()
	k.Status = entity.KeyUsed
	k.AccountId = &accountId
	k.UsedAt = &usedAt
	t.undo = append(t.undo, func() { *k = prev })
	return true, nil
}

func (t *tx) DebitAccount(_ context.Context, accountId int64, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	a, ok := t.s.accounts[accountId]
	if !ok {
		return decimal.Zero, false, entity.ErrAccountNotFound
	}
	if a.Balance.LessThan(amount) {
		return a.Balance, false, nil
	}
	prev := a.Balance
	a.Balance = a.Balance.Sub(amount)
	t.undo = append(t.undo, func() { a.Balance = prev })
	return a.Balance, true, nil
}

func (s *Store) Account(_ context.Context, id int64) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, entity.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) AccountByTelegram(_ context.Context, telegramId int64) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.TelegramId != nil && *a.TelegramId == telegramId {
			c := *a
			return &c, nil
		}
	}
	return nil, entity.ErrAccountNotFound
}

func (s *Store) AccountByHandle(_ context.Context, handle string) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.SameHandle(handle) {
			c := *a
			return &c, nil
		}
	}
	return nil, entity.ErrAccountNotFound
}

func (s *Store) LinkTelegram(_ context.Context, accountId int64, telegramId *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountId]
	if !ok {
		return entity.ErrAccountNotFound
	}
	if telegramId != nil {
		for _, other := range s.accounts {
			if other.TelegramId != nil && *other.TelegramId == *telegramId {
				other.TelegramId = nil
			}
		}
		id := *telegramId
		telegramId = &id
	}
	a.TelegramId = telegramId
	return nil
}

func (s *Store) Accounts(_ context.Context) ([]*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make([]*entity.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		c := *a
		accounts = append(accounts, &c)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Id < accounts[j].Id })
	return accounts, nil
}

func (s *Store) AdminTelegramIds(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, a := range s.accounts {
		if a.IsAdmin && a.TelegramId != nil {
			ids = append(ids, *a.TelegramId)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) CreateAccount(_ context.Context, account *entity.Account) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.SameHandle(account.Handle) {
			return nil, entity.ErrHandleTaken
		}
	}
	s.lastAccount++
	c := *account
	c.Id = s.lastAccount
	c.TelegramId = nil
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = s.now()
	}
	s.accounts[c.Id] = &c
	r := c
	return &r, nil
}

func (s *Store) AdjustBalance(_ context.Context, accountId int64, delta decimal.Decimal) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountId]
	if !ok {
		return nil, entity.ErrAccountNotFound
	}
	balance := a.Balance.Add(delta)
	if balance.IsNegative() {
		return nil, entity.ErrInsufficientBalance
	}
	if balance.GreaterThan(entity.MaxAmount) {
		return nil, entity.ValidationError("balance must not exceed " + entity.FormatMoney(entity.MaxAmount))
	}
	a.Balance = balance
	c := *a
	return &c, nil
}

// stock counts keys of a product; the caller holds the lock.
func (s *Store) stock(productId int64) (available, used int) {
	for _, k := range s.keys {
		if k.ProductId != productId {
			continue
		}
		if k.Status == entity.KeyAvailable {
			available++
		} else {
			used++
		}
	}
	return available, used
}

func (s *Store) productStock(filter func(p *entity.ProductStock) bool) []*entity.ProductStock {
	var list []*entity.ProductStock
	for _, p := range s.products {
		ps := &entity.ProductStock{Product: *p}
		ps.Available, ps.Used = s.stock(p.Id)
		if filter(ps) {
			list = append(list, ps)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].Id < list[j].Id
	})
	return list
}

func (s *Store) Categories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var categories []string
	for _, p := range s.productStock(func(p *entity.ProductStock) bool { return p.Available > 0 }) {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *Store) ProductsInCategory(_ context.Context, category string) ([]*entity.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productStock(func(p *entity.ProductStock) bool {
		return p.Category == category && p.Available > 0
	}), nil
}

func (s *Store) Products(_ context.Context) ([]*entity.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productStock(func(*entity.ProductStock) bool { return true }), nil
}

func (s *Store) Product(_ context.Context, id int64) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, entity.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) CreateProduct(_ context.Context, product *entity.Product) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProduct++
	c := *product
	c.Id = s.lastProduct
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.products[c.Id] = &c
	r := c
	return &r, nil
}

func (s *Store) UpdateProduct(_ context.Context, product *entity.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[product.Id]
	if !ok {
		return entity.ErrProductNotFound
	}
	p.Name = product.Name
	p.Category = product.Category
	p.Price = product.Price
	p.Description = product.Description
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return entity.ErrProductNotFound
	}
	delete(s.products, id)
	for keyId, k := range s.keys {
		if k.ProductId == id {
			delete(s.keys, keyId)
		}
	}
	return nil
}

func (s *Store) AddKeys(_ context.Context, productId int64, licenses []string) (*entity.KeyLoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productId]; !ok {
		return nil, entity.ErrProductNotFound
	}
	stored := make(map[string]bool, len(s.keys))
	for _, k := range s.keys {
		stored[k.License] = true
	}
	result := &entity.KeyLoadResult{}
	for _, license := range licenses {
		license = strings.TrimSpace(license)
		if license == "" {
			continue
		}
		if stored[license] {
			result.Duplicates = append(result.Duplicates, license)
			continue
		}
		s.lastKey++
		s.keys[s.lastKey] = &entity.Key{
			Id:        s.lastKey,
			License:   license,
			Status:    entity.KeyAvailable,
			ProductId: productId,
		}
		stored[license] = true
		result.Added++
	}
	return result, nil
}

func (s *Store) Keys(_ context.Context, productId int64) ([]*entity.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productId]; !ok {
		return nil, entity.ErrProductNotFound
	}
	var keys []*entity.Key
	for _, k := range s.keys {
		if k.ProductId == productId {
			c := *k
			keys = append(keys, &c)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Id < keys[j].Id })
	return keys, nil
}

// Purchases rebuilds receipts from the keys claimed by the account, newest
// first. Prices are the current product prices.
func (s *Store) Purchases(_ context.Context, accountId int64, limit int) ([]*entity.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*entity.Purchase
	for _, k := range s.keys {
		if k.AccountId == nil || *k.AccountId != accountId {
			continue
		}
		p := &entity.Purchase{
			AccountId: accountId,
			ProductId: k.ProductId,
			KeyId:     k.Id,
			License:   k.License,
		}
		if product, ok := s.products[k.ProductId]; ok {
			p.ProductName = product.Name
			p.Price = product.Price
		}
		if k.UsedAt != nil {
			p.CreatedAt = *k.UsedAt
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].KeyId > list[j].KeyId
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
