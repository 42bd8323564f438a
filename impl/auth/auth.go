// Package auth resolves chat identities to accounts and checks credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"keyshop/entity"
	"keyshop/lib/password"
	"keyshop/lib/sl"
)

type Database interface {
	AccountByTelegram(ctx context.Context, telegramId int64) (*entity.Account, error)
	AccountByHandle(ctx context.Context, handle string) (*entity.Account, error)
	LinkTelegram(ctx context.Context, accountId int64, telegramId *int64) error
}

type Auth struct {
	db  Database
	log *slog.Logger
}

func New(db Database, log *slog.Logger) *Auth {
	return &Auth{
		db:  db,
		log: log.With(sl.Module("auth")),
	}
}

// Resolve returns the account linked to the chat, or nil when there is none.
func (a *Auth) Resolve(ctx context.Context, telegramId int64) (*entity.Account, error) {
	account, err := a.db.AccountByTelegram(ctx, telegramId)
	if errors.Is(err, entity.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}
	return account, nil
}

// check matches the handle case-insensitively and the credential exactly.
func (a *Auth) check(ctx context.Context, handle, credential string) (*entity.Account, error) {
	account, err := a.db.AccountByHandle(ctx, handle)
	if errors.Is(err, entity.ErrAccountNotFound) {
		return nil, entity.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if err = password.CompareHash(account.Credential, credential); err != nil {
		return nil, entity.ErrInvalidCredentials
	}
	return account, nil
}

// Login checks the credentials and links the chat to the account. The chat
// is unlinked from any account it was bound to before.
func (a *Auth) Login(ctx context.Context, telegramId int64, handle, credential string) (*entity.Account, error) {
	log := a.log.With(slog.Int64("telegram_id", telegramId), slog.String("handle", handle))

	account, err := a.check(ctx, handle, credential)
	if err != nil {
		log.With(sl.Err(err)).Debug("login failed")
		return nil, err
	}
	if err = a.db.LinkTelegram(ctx, account.Id, &telegramId); err != nil {
		return nil, fmt.Errorf("link chat: %w", err)
	}
	account.TelegramId = &telegramId
	log.With(slog.Int64("account_id", account.Id)).Info("chat linked")
	return account, nil
}

// Logout unlinks the chat; a chat without an account is left as is.
func (a *Auth) Logout(ctx context.Context, telegramId int64) error {
	account, err := a.Resolve(ctx, telegramId)
	if err != nil || account == nil {
		return err
	}
	if err = a.db.LinkTelegram(ctx, account.Id, nil); err != nil {
		return fmt.Errorf("unlink chat: %w", err)
	}
	a.log.With(
		slog.Int64("telegram_id", telegramId),
		slog.Int64("account_id", account.Id),
	).Info("chat unlinked")
	return nil
}

// AuthenticateAdmin checks credentials of an administrator account.
func (a *Auth) AuthenticateAdmin(ctx context.Context, handle, credential string) (*entity.Account, error) {
	account, err := a.check(ctx, handle, credential)
	if err != nil {
		return nil, err
	}
	if !account.IsAdmin {
		return nil, entity.ErrInvalidCredentials
	}
	return account, nil
}
