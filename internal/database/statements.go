package database

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	accountColumns = `id, telegram_id, handle, credential, balance, is_admin, registered_at`
	productColumns = `id, name, category, price, description, created_at`

	queryAccountForUpdate = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? FOR UPDATE`
	queryProductForShare  = `SELECT ` + productColumns + ` FROM products WHERE id = ? FOR SHARE`
	queryFindAvailableKey = `SELECT id, license FROM license_keys
		WHERE product_id = ? AND status = 'available'
		ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED`
	queryClaimKey = `UPDATE license_keys SET status = 'used', account_id = ?, used_at = ?
		WHERE id = ? AND status = 'available'`
	queryDebitAccount = `UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ?`
	queryBalance      = `SELECT balance FROM accounts WHERE id = ?`

	queryAccountLock     = `SELECT id FROM accounts WHERE id = ? FOR UPDATE`
	queryUnlinkTelegram  = `UPDATE accounts SET telegram_id = NULL WHERE telegram_id = ?`
	querySetTelegram     = `UPDATE accounts SET telegram_id = ? WHERE id = ?`
	queryProductExists   = `SELECT id FROM products WHERE id = ? FOR SHARE`
	queryInsertKey       = `INSERT INTO license_keys (license, status, product_id) VALUES (?, 'available', ?)`
	queryInsertAccount   = `INSERT INTO accounts (handle, credential, balance, is_admin, registered_at) VALUES (?, ?, ?, ?, ?)`
	queryInsertProduct   = `INSERT INTO products (name, category, price, description, created_at) VALUES (?, ?, ?, ?, ?)`
	queryAdjustBalance   = `UPDATE accounts SET balance = balance + ? WHERE id = ? AND balance + ? >= 0`
	queryUpdateProduct   = `UPDATE products SET name = ?, category = ?, price = ?, description = ? WHERE id = ?`
	queryDeleteProduct   = `DELETE FROM products WHERE id = ?`
	queryAccountById     = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	queryAccountByHandle = `SELECT ` + accountColumns + ` FROM accounts WHERE handle = ?`
	queryAccountByChat   = `SELECT ` + accountColumns + ` FROM accounts WHERE telegram_id = ?`
	queryAccounts        = `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`
	queryAdminChats      = `SELECT telegram_id FROM accounts
		WHERE is_admin = TRUE AND telegram_id IS NOT NULL ORDER BY telegram_id`
	queryProductById = `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	queryCategories  = `SELECT DISTINCT p.category FROM products p
		JOIN license_keys k ON k.product_id = p.id AND k.status = 'available'
		ORDER BY p.category`
	queryProductsInCategory = `SELECT p.id, p.name, p.category, p.price, p.description, p.created_at,
		COUNT(k.id), 0
		FROM products p
		JOIN license_keys k ON k.product_id = p.id AND k.status = 'available'
		WHERE p.category = ?
		GROUP BY p.id, p.name, p.category, p.price, p.description, p.created_at
		ORDER BY p.name, p.id`
	queryProducts = `SELECT p.id, p.name, p.category, p.price, p.description, p.created_at,
		COALESCE(SUM(k.status = 'available'), 0), COALESCE(SUM(k.status = 'used'), 0)
		FROM products p
		LEFT JOIN license_keys k ON k.product_id = p.id
		GROUP BY p.id, p.name, p.category, p.price, p.description, p.created_at
		ORDER BY p.name, p.id`
	queryKeys = `SELECT id, license, status, product_id, account_id, used_at
		FROM license_keys WHERE product_id = ? ORDER BY id`
	queryPurchases = `SELECT k.id, k.license, k.product_id, p.name, p.price, k.used_at
		FROM license_keys k
		JOIN products p ON p.id = k.product_id
		WHERE k.account_id = ?
		ORDER BY k.used_at DESC, k.id DESC LIMIT ?`
)

func (s *MySql) prepareStmt(ctx context.Context, name, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.statements[name]; ok {
		return stmt, nil
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement [%s]: %w", name, err)
	}

	s.statements[name] = stmt
	return stmt, nil
}

func (s *MySql) closeStmt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, stmt := range s.statements {
		_ = stmt.Close()
		delete(s.statements, name)
	}
}
