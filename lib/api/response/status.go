package response

import (
	"log/slog"
	"net/http"

	"keyshop/entity"
)

// StatusCode maps a domain error to the HTTP status returned by the admin API.
func StatusCode(err error) int {
	switch entity.ErrorKind(err) {
	case entity.KindOk:
		return http.StatusOK
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindInsufficientBalance, entity.KindOutOfStock, entity.KindPriceChanged:
		return http.StatusUnprocessableEntity
	case entity.KindConflict:
		return http.StatusConflict
	case entity.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

// LogLevel is the severity a failed admin request is logged at: storage
// failures are errors, rejected input and missing records are warnings.
func LogLevel(err error) slog.Level {
	if entity.ErrorKind(err) == entity.KindStorage {
		return slog.LevelError
	}
	return slog.LevelWarn
}
