package products

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
	Products(ctx context.Context) ([]*entity.ProductStock, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		list, err := handler.Products(r.Context())
		if err != nil {
			logger.Log(r.Context(), response.LogLevel(err), "list products", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error("Failed to list products"))
			return
		}

		render.JSON(w, r, response.Ok(list))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var product entity.Product
		if err := render.Bind(r, &product); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request: "+err.Error()))
			return
		}

		created, err := handler.CreateProduct(r.Context(), &product)
		if err != nil {
			logger.Log(r.Context(), response.LogLevel(err), "create product", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger.With(
			slog.Int64("id", created.Id),
			slog.String("name", created.Name),
		).Info("product created")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(created))
	}
}

// Update replaces name, category, price and description. Purchases already
// made keep the price they were charged.
func Update(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		id, err := params.Id(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		var product entity.Product
		if err = render.Bind(r, &product); err != nil {
			logger.Warn("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid request: "+err.Error()))
			return
		}
		product.Id = id

		updated, err := handler.UpdateProduct(r.Context(), &product)
		if err != nil {
			logger.With(slog.Int64("id", id)).Log(r.Context(), response.LogLevel(err), "update product", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger.With(slog.Int64("id", id)).Info("product updated")

		render.JSON(w, r, response.Ok(updated))
	}
}

// Delete removes the product together with all of its keys.
func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		id, err := params.Id(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		if err = handler.DeleteProduct(r.Context(), id); err != nil {
			logger.With(slog.Int64("id", id)).Log(r.Context(), response.LogLevel(err), "delete product", sl.Err(err))
			render.Status(r, response.StatusCode(err))
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		logger.With(slog.Int64("id", id)).Info("product deleted")

		render.JSON(w, r, response.Ok(nil))
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	logger := log.With(
		sl.Module("http.handlers.products"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	if admin := cont.GetAccount(r.Context()); admin != nil {
		logger = logger.With(slog.String("admin", admin.Handle))
	}
	return logger
}
