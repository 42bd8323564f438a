package cont

import (
	"context"
	"keyshop/entity"
)

type ctxKey string

const AccountDataKey ctxKey = "accountData"

func PutAccount(c context.Context, account *entity.Account) context.Context {
	return context.WithValue(c, AccountDataKey, *account)
}

func GetAccount(c context.Context) *entity.Account {
	account, ok := c.Value(AccountDataKey).(entity.Account)
	if !ok {
		return nil
	}
	return &account
}
