package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"keyshop/entity"
	"keyshop/impl/purchase"
	"keyshop/internal/config"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

const (
	errDuplicateEntry    = 1062
	errLockWaitTimeout   = 1205
	errDeadlock          = 1213
	errLockNowaitFailure = 3572
	errOutOfRange        = 1264
	errDataTooLong       = 1406
)

type MySql struct {
	db         *sql.DB
	statements map[string]*sql.Stmt
	mu         sync.Mutex
	now        func() time.Time
}

// DataSourceName is the driver DSN; clientFoundRows makes RowsAffected
// count matched rows, so an update to identical values still reports 1.
func DataSourceName(conf config.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true",
		conf.UserName, conf.Password, conf.HostName, conf.Port, conf.Database)
}

// MigrationURL is the golang-migrate URL for the same database.
func MigrationURL(conf config.MySQLConfig) string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		conf.UserName, conf.Password, conf.HostName, conf.Port, conf.Database)
}

func NewSQLClient(conf *config.Config) (*MySql, error) {
	db, err := sql.Open("mysql", DataSourceName(conf.MySQL))
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// try to ping three times with a 30-second interval; wait for a database to start
	for i := 0; i < 3; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i == 2 {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		time.Sleep(30 * time.Second)
	}

	db.SetMaxOpenConns(conf.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if conf.MySQL.Migrate {
		if err = RunMigrations(MigrationURL(conf.MySQL)); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return NewMySql(db), nil
}

// NewMySql wraps an open connection pool.
func NewMySql(db *sql.DB) *MySql {
	return &MySql{
		db:         db,
		statements: make(map[string]*sql.Stmt),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MySql) Close() {
	s.closeStmt()
	_ = s.db.Close()
}

// storageError classifies driver errors: lock contention becomes a conflict,
// anything else unexpected means the store is unavailable. Domain errors pass through.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if entity.ErrorKind(err) != entity.KindStorage || errors.Is(err, entity.ErrStorageUnavailable) {
		return err
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDeadlock, errLockWaitTimeout, errLockNowaitFailure:
			return fmt.Errorf("%w: %s", entity.ErrConflict, me.Message)
		case errOutOfRange, errDataTooLong:
			return entity.ValidationError(me.Message)
		}
	}
	return fmt.Errorf("%w: %v", entity.ErrStorageUnavailable, err)
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*entity.Account, error) {
	var a entity.Account
	var telegramId sql.NullInt64
	if err := row.Scan(
		&a.Id,
		&telegramId,
		&a.Handle,
		&a.Credential,
		&a.Balance,
		&a.IsAdmin,
		&a.RegisteredAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrAccountNotFound
		}
		return nil, err
	}
	if telegramId.Valid {
		a.TelegramId = &telegramId.Int64
	}
	return &a, nil
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	var p entity.Product
	if err := row.Scan(
		&p.Id,
		&p.Name,
		&p.Category,
		&p.Price,
		&p.Description,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

// InTx runs fn in one InnoDB transaction and commits when fn succeeds.
func (s *MySql) InTx(ctx context.Context, fn func(tx purchase.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&mysqlTx{tx: tx, now: s.now})
	})
}

func (s *MySql) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(fmt.Errorf("begin: %w", err))
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return storageError(err)
	}
	if err = tx.Commit(); err != nil {
		return storageError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type mysqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *mysqlTx) AccountForUpdate(ctx context.Context, accountId int64) (*entity.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, queryAccountForUpdate, accountId))
}

func (t *mysqlTx) Product(ctx context.Context, productId int64) (*entity.Product, error) {
	return scanProduct(t.tx.QueryRowContext(ctx, queryProductForShare, productId))
}

func (t *mysqlTx) FindAvailableKey(ctx context.Context, productId int64) (*entity.KeyRef, error) {
	var key entity.KeyRef
	err := t.tx.QueryRowContext(ctx, queryFindAvailableKey, productId).Scan(&key.Id, &key.License)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (t *mysqlTx) ClaimKey(ctx context.Context, keyId, accountId int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, queryClaimKey, accountId, t.now(), keyId)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *mysqlTx) DebitAccount(ctx context.Context, accountId int64, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	res, err := t.tx.ExecContext(ctx, queryDebitAccount, amount, accountId, amount)
	if err != nil {
		return decimal.Zero, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return decimal.Zero, false, err
	}
	var balance decimal.Decimal
	if err = t.tx.QueryRowContext(ctx, queryBalance, accountId).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, entity.ErrAccountNotFound
		}
		return decimal.Zero, false, err
	}
	return balance, n == 1, nil
}

func (s *MySql) queryAccount(ctx context.Context, name, query string, arg any) (*entity.Account, error) {
	stmt, err := s.prepareStmt(ctx, name, query)
	if err != nil {
		return nil, storageError(err)
	}
	a, err := scanAccount(stmt.QueryRowContext(ctx, arg))
	return a, storageError(err)
}

func (s *MySql) Account(ctx context.Context, id int64) (*entity.Account, error) {
	return s.queryAccount(ctx, "accountById", queryAccountById, id)
}

// AccountByHandle relies on the case-insensitive collation of the handle column.
func (s *MySql) AccountByHandle(ctx context.Context, handle string) (*entity.Account, error) {
	return s.queryAccount(ctx, "accountByHandle", queryAccountByHandle, handle)
}

func (s *MySql) AccountByTelegram(ctx context.Context, telegramId int64) (*entity.Account, error) {
	return s.queryAccount(ctx, "accountByChat", queryAccountByChat, telegramId)
}

// LinkTelegram binds the chat to the account, unbinding it from any other
// account first. A nil telegramId unlinks the account.
func (s *MySql) LinkTelegram(ctx context.Context, accountId int64, telegramId *int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, queryAccountLock, accountId).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		if telegramId != nil {
			if _, err = tx.ExecContext(ctx, queryUnlinkTelegram, *telegramId); err != nil {
				return err
			}
		}
		var value sql.NullInt64
		if telegramId != nil {
			value = sql.NullInt64{Int64: *telegramId, Valid: true}
		}
		_, err = tx.ExecContext(ctx, querySetTelegram, value, accountId)
		return err
	})
}

func (s *MySql) Accounts(ctx context.Context) ([]*entity.Account, error) {
	stmt, err := s.prepareStmt(ctx, "accounts", queryAccounts)
	if err != nil {
		return nil, storageError(err)
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var accounts []*entity.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, storageError(err)
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return accounts, nil
}

func (s *MySql) AdminTelegramIds(ctx context.Context) ([]int64, error) {
	stmt, err := s.prepareStmt(ctx, "adminChats", queryAdminChats)
	if err != nil {
		return nil, storageError(err)
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, storageError(err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return ids, nil
}

func (s *MySql) CreateAccount(ctx context.Context, account *entity.Account) (*entity.Account, error) {
	stmt, err := s.prepareStmt(ctx, "insertAccount", queryInsertAccount)
	if err != nil {
		return nil, storageError(err)
	}
	c := *account
	c.TelegramId = nil
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = s.now()
	}
	res, err := stmt.ExecContext(ctx, c.Handle, c.Credential, c.Balance, c.IsAdmin, c.RegisteredAt)
	if isDuplicate(err) {
		return nil, entity.ErrHandleTaken
	}
	if err != nil {
		return nil, storageError(err)
	}
	if c.Id, err = res.LastInsertId(); err != nil {
		return nil, storageError(err)
	}
	return &c, nil
}

// AdjustBalance applies a signed delta; the result may not go below zero.
func (s *MySql) AdjustBalance(ctx context.Context, accountId int64, delta decimal.Decimal) (*entity.Account, error) {
	stmt, err := s.prepareStmt(ctx, "adjustBalance", queryAdjustBalance)
	if err != nil {
		return nil, storageError(err)
	}
	res, err := stmt.ExecContext(ctx, delta, accountId, delta)
	if err != nil {
		return nil, storageError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageError(err)
	}
	account, err := s.Account(ctx, accountId)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, entity.ErrInsufficientBalance
	}
	return account, nil
}

func (s *MySql) Categories(ctx context.Context) ([]string, error) {
	stmt, err := s.prepareStmt(ctx, "categories", queryCategories)
	if err != nil {
		return nil, storageError(err)
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err = rows.Scan(&category); err != nil {
			return nil, storageError(err)
		}
		categories = append(categories, category)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return categories, nil
}

func (s *MySql) productStock(ctx context.Context, name, query string, args ...any) ([]*entity.ProductStock, error) {
	stmt, err := s.prepareStmt(ctx, name, query)
	if err != nil {
		return nil, storageError(err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var products []*entity.ProductStock
	for rows.Next() {
		var p entity.ProductStock
		if err = rows.Scan(
			&p.Id,
			&p.Name,
			&p.Category,
			&p.Price,
			&p.Description,
			&p.CreatedAt,
			&p.Available,
			&p.Used,
		); err != nil {
			return nil, storageError(err)
		}
		products = append(products, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return products, nil
}

// ProductsInCategory lists products of the category that have available keys.
func (s *MySql) ProductsInCategory(ctx context.Context, category string) ([]*entity.ProductStock, error) {
	return s.productStock(ctx, "productsInCategory", queryProductsInCategory, category)
}

func (s *MySql) Products(ctx context.Context) ([]*entity.ProductStock, error) {
	return s.productStock(ctx, "products", queryProducts)
}

func (s *MySql) Product(ctx context.Context, id int64) (*entity.Product, error) {
	stmt, err := s.prepareStmt(ctx, "productById", queryProductById)
	if err != nil {
		return nil, storageError(err)
	}
	p, err := scanProduct(stmt.QueryRowContext(ctx, id))
	return p, storageError(err)
}

func (s *MySql) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	stmt, err := s.prepareStmt(ctx, "insertProduct", queryInsertProduct)
	if err != nil {
		return nil, storageError(err)
	}
	c := *product
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	res, err := stmt.ExecContext(ctx, c.Name, c.Category, c.Price, c.Description, c.CreatedAt)
	if err != nil {
		return nil, storageError(err)
	}
	if c.Id, err = res.LastInsertId(); err != nil {
		return nil, storageError(err)
	}
	return &c, nil
}

func (s *MySql) UpdateProduct(ctx context.Context, product *entity.Product) error {
	stmt, err := s.prepareStmt(ctx, "updateProduct", queryUpdateProduct)
	if err != nil {
		return storageError(err)
	}
	res, err := stmt.ExecContext(ctx, product.Name, product.Category, product.Price, product.Description, product.Id)
	return s.affectedOne(res, err, entity.ErrProductNotFound)
}

// DeleteProduct removes the product; its keys go with it by cascade.
func (s *MySql) DeleteProduct(ctx context.Context, id int64) error {
	stmt, err := s.prepareStmt(ctx, "deleteProduct", queryDeleteProduct)
	if err != nil {
		return storageError(err)
	}
	res, err := stmt.ExecContext(ctx, id)
	return s.affectedOne(res, err, entity.ErrProductNotFound)
}

func (s *MySql) affectedOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return storageError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// AddKeys stores the licenses as available keys of the product. Licenses
// already present anywhere in the store are reported, not inserted.
func (s *MySql) AddKeys(ctx context.Context, productId int64, licenses []string) (*entity.KeyLoadResult, error) {
	result := &entity.KeyLoadResult{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, queryProductExists, productId).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ErrProductNotFound
		}
		if err != nil {
			return err
		}
		for _, license := range licenses {
			license = strings.TrimSpace(license)
			if license == "" {
				continue
			}
			_, err = tx.ExecContext(ctx, queryInsertKey, license, productId)
			if isDuplicate(err) {
				result.Duplicates = append(result.Duplicates, license)
				continue
			}
			if err != nil {
				return err
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *MySql) Keys(ctx context.Context, productId int64) ([]*entity.Key, error) {
	if _, err := s.Product(ctx, productId); err != nil {
		return nil, err
	}
	stmt, err := s.prepareStmt(ctx, "keys", queryKeys)
	if err != nil {
		return nil, storageError(err)
	}
	rows, err := stmt.QueryContext(ctx, productId)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var keys []*entity.Key
	for rows.Next() {
		var k entity.Key
		var accountId sql.NullInt64
		var usedAt sql.NullTime
		if err = rows.Scan(&k.Id, &k.License, &k.Status, &k.ProductId, &accountId, &usedAt); err != nil {
			return nil, storageError(err)
		}
		if accountId.Valid {
			k.AccountId = &accountId.Int64
		}
		if usedAt.Valid {
			k.UsedAt = &usedAt.Time
		}
		keys = append(keys, &k)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return keys, nil
}

// Purchases rebuilds receipts from keys claimed by the account, newest first.
// Prices are the current product prices.
func (s *MySql) Purchases(ctx context.Context, accountId int64, limit int) ([]*entity.Purchase, error) {
	stmt, err := s.prepareStmt(ctx, "purchases", queryPurchases)
	if err != nil {
		return nil, storageError(err)
	}
	rows, err := stmt.QueryContext(ctx, accountId, limit)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var list []*entity.Purchase
	for rows.Next() {
		p := entity.Purchase{AccountId: accountId}
		var usedAt sql.NullTime
		if err = rows.Scan(&p.KeyId, &p.License, &p.ProductId, &p.ProductName, &p.Price, &usedAt); err != nil {
			return nil, storageError(err)
		}
		if usedAt.Valid {
			p.CreatedAt = usedAt.Time
		}
		list = append(list, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return list, nil
}
