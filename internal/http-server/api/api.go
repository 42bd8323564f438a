package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"keyshop/internal/config"
	"keyshop/internal/http-server/handlers/accounts"
	handlerErrors "keyshop/internal/http-server/handlers/errors"
	"keyshop/internal/http-server/handlers/keys"
	"keyshop/internal/http-server/handlers/products"
	"keyshop/internal/http-server/middleware/authenticate"
	"keyshop/internal/http-server/middleware/timeout"
	"keyshop/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const requestTimeout = 10 * time.Second

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	accounts.Core
	products.Core
	keys.Core
}

// NewRouter builds the admin API. All /v1 routes require an administrator;
// metrics may be nil when not collected.
func NewRouter(log *slog.Logger, handler Handler, metrics http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(requestTimeout))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(handlerErrors.NotFound(log))
	router.MethodNotAllowed(handlerErrors.NotAllowed(log))

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/accounts", func(r chi.Router) {
			r.Get("/", accounts.List(log, handler))
			r.Post("/", accounts.Create(log, handler))
			r.Post("/{id}/balance", accounts.AdjustBalance(log, handler))
		})
		rootApi.Route("/products", func(r chi.Router) {
			r.Get("/", products.List(log, handler))
			r.Post("/", products.Create(log, handler))
			r.Put("/{id}", products.Update(log, handler))
			r.Delete("/{id}", products.Delete(log, handler))
			r.Get("/{id}/keys", keys.List(log, handler))
			r.Post("/{id}/keys", keys.Load(log, handler))
		})
	})
	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics)
	}

	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler, metrics http.Handler) *Server {
	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      NewRouter(log, handler, metrics),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &server
}

// Start blocks until the server is shut down.
func (s *Server) Start() error {
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIp, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	s.log.Info("starting api server", slog.String("address", serverAddress))

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("stopping api server")
	return s.httpServer.Shutdown(ctx)
}
