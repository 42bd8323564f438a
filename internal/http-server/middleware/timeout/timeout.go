package timeout

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context. Storage calls made by handlers give
// up when it expires; a purchase already in flight is not affected.
func Timeout(d time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}
