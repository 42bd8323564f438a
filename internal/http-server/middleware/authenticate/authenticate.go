package authenticate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"keyshop/entity"
	"keyshop/lib/api/cont"
	"keyshop/lib/api/response"
	"keyshop/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Authenticate interface {
	AuthenticateAdmin(ctx context.Context, handle, credential string) (*entity.Account, error)
}

// New checks Basic credentials against administrator accounts and logs
// every request passing through it.
func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			remote := r.RemoteAddr
			// if the request is coming from a proxy, use the X-Forwarded-For header
			xRemote := r.Header.Get("X-Forwarded-For")
			if xRemote != "" {
				remote = xRemote
			}
			logger := log.With(
				mod,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", remote),
				slog.String("request_id", id),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				logger.With(
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Float64("duration", time.Since(t1).Seconds()),
				).Info("incoming request")
			}()

			handle, credential, ok := r.BasicAuth()
			if !ok {
				logger = logger.With(sl.Err(fmt.Errorf("basic credentials not found")))
				authFailed(ww, r, "Authorization header not found")
				return
			}
			logger = logger.With(slog.String("handle", handle))

			if auth == nil {
				authFailed(ww, r, "Unauthorized: authentication not enabled")
				return
			}

			account, err := auth.AuthenticateAdmin(r.Context(), handle, credential)
			if err != nil {
				logger = logger.With(sl.Err(err))
				if entity.ErrorKind(err) == entity.KindStorage {
					render.Status(r, http.StatusServiceUnavailable)
					render.JSON(ww, r, response.Error("Storage unavailable"))
					return
				}
				authFailed(ww, r, "Unauthorized: invalid credentials")
				return
			}
			ctx := cont.PutAccount(r.Context(), account)

			ww.Header().Set("X-Request-ID", id)
			ww.Header().Set("X-User", account.Handle)
			next.ServeHTTP(ww, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

func authFailed(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="keyshop"`)
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error(message))
}
