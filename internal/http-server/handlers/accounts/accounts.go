package accounts

import (
	"context"
	"log/slog"
	"net/http"

	"keyshop/entity"
	"keyshop/lib/api/cont"
	"keyshop/lib/api/params"
	"keyshop/lib/api/response"
	"keyshop/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"
)

type Core interface {
	Accounts(ctx context.Context) ([]*entity.Account, error)
	CreateAccount(ctx context.Context, req *entity.NewAccount) (*entity.Account, error)
	AdjustBalance(ctx context.Context, accountId int64, delta decimal.Decimal) (*entity.Account, error)
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		list, err := handler.Accounts(r.Context())
		if err != nil {
			logger.Log(r.Context(), response.LogLevel(err), "list accounts", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error("Failed to list accounts"))
			return
		}

		render.JSON(w, r, response.Ok(list))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.NewAccount
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request: "+err.Error()))
			return
		}
		logger = logger.With(slog.String("handle", req.Handle))

		account, err := handler.CreateAccount(r.Context(), &req)
		if err != nil {
			logger.Log(r.Context(), response.LogLevel(err), "create account", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger.With(slog.Int64("id", account.Id)).Info("account created")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(account))
	}
}

// AdjustBalance applies a signed delta; the balance can not go below zero.
func AdjustBalance(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		id, err := params.Id(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		var req entity.BalanceAdjustment
		if err = render.Bind(r, &req); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request: "+err.Error()))
			return
		}
		logger = logger.With(
			slog.Int64("id", id),
			slog.String("delta", req.Delta.String()),
		)

		account, err := handler.AdjustBalance(r.Context(), id, req.Delta)
		if err != nil {
			logger.Log(r.Context(), response.LogLevel(err), "adjust balance", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger.With(slog.String("balance", account.Balance.String())).Info("balance adjusted")

		render.JSON(w, r, response.Ok(account))
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	logger := log.With(
		sl.Module("http.handlers.accounts"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	if admin := cont.GetAccount(r.Context()); admin != nil {
		logger = logger.With(slog.String("admin", admin.Handle))
	}
	return logger
}
