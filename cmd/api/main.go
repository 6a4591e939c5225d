package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"escrowflow/auth"
	"escrowflow/config"
	"escrowflow/contract"
	"escrowflow/db"
	"escrowflow/document"
	"escrowflow/escrow"
	"escrowflow/migrations"
	"escrowflow/milestone"
	"escrowflow/party"
	"escrowflow/payment"
	"escrowflow/pkg/logger"
	"escrowflow/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	superuser := flag.String("create-superuser", "", "create a superuser with this email (password from SUPERUSER_PASSWORD) and exit")
	flag.Parse()

	if err := run(*configPath, *superuser); err != nil {
		slog.Error("escrowflow exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, superuserEmail string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL, db.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	authService := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	if superuserEmail != "" {
		user, err := authService.CreateSuperuser(ctx, superuserEmail, os.Getenv("SUPERUSER_PASSWORD"))
		if err != nil {
			return fmt.Errorf("create superuser: %w", err)
		}
		slog.Info("superuser created", "user_id", user.ID, "email", user.Email)
		return nil
	}

	server, err := newServer(ctx, cfg, pool, authService)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// newServer wires repositories and services onto a Server. Document routes
// stay disabled when no object storage endpoint is configured.
func newServer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, authService *auth.Service) (*Server, error) {
	s := &Server{
		authService:      authService,
		partyService:     party.NewService(party.NewRepository(pool), authService),
		contractService:  contract.NewService(contract.NewRepository(pool)),
		milestoneService: milestone.NewService(milestone.NewRepository(pool)),
		paymentService:   payment.NewService(payment.NewRepository(pool)),
		escrowService:    escrow.NewService(pool, escrow.NewRepository(pool)),
		db:               pool,
		limiter:          newFixedWindowLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		maxUploadBytes:   cfg.Server.MaxUploadBytes,
		trustProxy:       cfg.Server.TrustProxyHeaders,
	}

	if !cfg.StorageEnabled() {
		slog.Warn("object storage not configured, document routes disabled")
		return s, nil
	}
	blobs, err := storage.NewMinio(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap object storage: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	s.documentService = document.NewService(document.NewRepository(pool), blobs)
	return s, nil
}
