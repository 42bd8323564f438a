package params

import (
	"net/http"
	"strconv"

	"keyshop/entity"

	"github.com/go-chi/chi/v5"
)

// Id reads the numeric {id} route parameter.
func Id(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, entity.ValidationError("invalid id: " + raw)
	}
	return id, nil
}
