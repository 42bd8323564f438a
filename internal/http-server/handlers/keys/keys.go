package keys

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
)

type Core interface {
	Keys(ctx context.Context, productId int64) ([]*entity.Key, error)
	AddKeys(ctx context.Context, productId int64, batch *entity.KeyBatch) (*entity.KeyLoadResult, error)
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		id, err := params.Id(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		list, err := handler.Keys(r.Context(), id)
		if err != nil {
			logger.With(slog.Int64("product_id", id)).Log(r.Context(), response.LogLevel(err), "list keys", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		render.JSON(w, r, response.Ok(list))
	}
}

// Load stores a newline separated batch of licenses. Blank lines are skipped,
// licenses that already exist are returned as duplicates.
func Load(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		id, err := params.Id(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger = logger.With(slog.Int64("product_id", id))

		var batch entity.KeyBatch
		if err = render.Bind(r, &batch); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request: "+err.Error()))
			return
		}

		result, err := handler.AddKeys(r.Context(), id, &batch)
		if err != nil {
			logger.Log(r.Context(), response.LogLevel(err), "load keys", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger.With(
			slog.Int("added", result.Added),
			slog.Int("duplicates", len(result.Duplicates)),
		).Info("keys loaded")

		render.JSON(w, r, response.Ok(result))
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	logger := log.With(
		sl.Module("http.handlers.keys"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	if admin := cont.GetAccount(r.Context()); admin != nil {
		logger = logger.With(slog.String("admin", admin.Handle))
	}
	return logger
}
