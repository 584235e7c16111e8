package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/internal/transport/web"
	"github.com/vlasovmx/stockfolio/internal/transport/web/middleware"
)

type WebServer struct {
	server *http.Server
	cfg    *config.Config
}

func New(cfg *config.Config, ctrl *web.Controller) *WebServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", ctrl.RequireAuth(ctrl.Index))

	mux.HandleFunc("GET /register", ctrl.RegisterForm)
	mux.HandleFunc("POST /register", ctrl.Register)
	mux.HandleFunc("GET /login", ctrl.LoginForm)
	mux.HandleFunc("POST /login", ctrl.Login)
	mux.HandleFunc("GET /logout", ctrl.Logout)

	mux.HandleFunc("GET /quote", ctrl.RequireAuth(ctrl.QuoteForm))
	mux.HandleFunc("POST /quote", ctrl.RequireAuth(ctrl.Quote))
	mux.HandleFunc("GET /buy", ctrl.RequireAuth(ctrl.BuyForm))
	mux.HandleFunc("POST /buy", ctrl.RequireAuth(ctrl.Buy))
	mux.HandleFunc("GET /sell", ctrl.RequireAuth(ctrl.SellForm))
	mux.HandleFunc("POST /sell", ctrl.RequireAuth(ctrl.Sell))
	mux.HandleFunc("GET /history", ctrl.RequireAuth(ctrl.History))
	mux.HandleFunc("GET /changepassword", ctrl.RequireAuth(ctrl.ChangePasswordForm))
	mux.HandleFunc("POST /changepassword", ctrl.RequireAuth(ctrl.ChangePassword))
	mux.HandleFunc("GET /statement", ctrl.RequireAuth(ctrl.Statement))

	handler := middleware.Recover(middleware.Logger(middleware.NoCache(mux)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &WebServer{server: server, cfg: cfg}
}

func (s *WebServer) Start() {
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error from server.ListenAndServe", slog.String("err", err.Error()))
			panic(err)
		}
	}()
	slog.Info("web server started", slog.Int("port", s.cfg.HTTP.Port))
}

func (s *WebServer) Stop() {
	slog.Info("start stopping web server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error("error from server.Shutdown", slog.String("err", err.Error()))
	}

	slog.Info("web server stopped")
}
