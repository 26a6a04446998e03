// hostdesk server: account and webhosting-plan JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/hostdesk/internal/account"
	"github.com/kuitang/hostdesk/internal/api"
	"github.com/kuitang/hostdesk/internal/config"
	"github.com/kuitang/hostdesk/internal/crypto"
	"github.com/kuitang/hostdesk/internal/db"
	"github.com/kuitang/hostdesk/internal/email"
	"github.com/kuitang/hostdesk/internal/obs"
	"github.com/kuitang/hostdesk/internal/ratelimit"
	"github.com/kuitang/hostdesk/internal/splittoken"
	"github.com/kuitang/hostdesk/internal/webhosting"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	obs.Init()
	noEmail, addr := config.ParseFlags()
	cfg := config.MustLoadConfig(noEmail, addr)
	obs.SetLevel(cfg.LogLevel)
	obs.SetTrustedProxies(cfg.TrustedProxies)
	cfg.PrintStartupSummary()

	if err := run(cfg); err != nil {
		obs.Pkg("main").Error("server_exit", "error", err)
		os.Exit(1)
	}
}

// application holds the wired services and the HTTP handler.
type application struct {
	db       *db.DB
	accounts *account.Service
	limiter  *ratelimit.RateLimiter
	handler  http.Handler
}

func (a *application) Close() {
	a.limiter.Stop()
	if err := a.db.Close(); err != nil {
		obs.Pkg("main").Warn("database_close_failed", "error", err)
	}
}

func newApplication(cfg *config.Config) (*application, error) {
	keyHex, err := crypto.DatabaseKeyHex(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("derive database key: %w", err)
	}
	database, err := db.Open(cfg.DatabasePath, keyHex)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	tokens := splittoken.NewFactory(cfg.NewTokenHasher())
	accounts := account.NewService(database, tokens, cfg.NewPasswordHasher(), newEmailService(cfg), account.Config{
		BaseURL:        cfg.BaseURL,
		ResetTTL:       cfg.ResetTokenTTL,
		EmailChangeTTL: cfg.EmailChangeTokenTTL,
	})
	plans := webhosting.NewPlanService(database)
	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)

	handler := api.NewRouter(api.NewHandler(accounts, plans), api.RouterConfig{
		Limiter:    limiter,
		AdminToken: cfg.AdminToken,
		Ping:       database.Ping,
	})

	return &application{db: database, accounts: accounts, limiter: limiter, handler: handler}, nil
}

func newEmailService(cfg *config.Config) email.EmailService {
	if cfg.NoEmail {
		return email.NewMockEmailService()
	}
	return email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail)
}

func run(cfg *config.Config) error {
	logger := obs.Pkg("main")

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.accounts.RunCleanup(ctx, cfg.TokenCleanupInterval)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server_stopped")
	return nil
}
