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

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"sarisari/backend/internal/config"
	"sarisari/backend/internal/httpapi"
	"sarisari/backend/internal/logging"
	"sarisari/backend/internal/sequence"
	"sarisari/backend/internal/service"
	"sarisari/backend/internal/store"
	"sarisari/backend/internal/store/memory"
	pgstore "sarisari/backend/internal/store/postgres"
	"sarisari/backend/internal/tracing"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "sarisari",
		Usage:   "sari-sari store POS ledger",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or revert the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all migrations", Action: migrateAction(true)},
					{Name: "down", Usage: "revert all migrations", Action: migrateAction(false)},
				},
			},
			{
				Name:  "token",
				Usage: "mint an access token for a staff user (development)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Value: "usr-cashier", Usage: "staff user id"},
					&cli.StringFlag{Name: "role", Value: "cashier", Usage: "cashier or admin"},
				},
				Action: mintToken,
			},
		},
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger, flush, err := logging.Init(logging.Options{Mode: cfg.LogMode, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer flush()

	shutdownTracing, err := tracing.Init(c.Context, cfg.OTLPEndpoint, cfg.ServiceName, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	// A counter outside the database transaction would burn numbers on
	// rollback, so Redis only backs stores without RunInTx.
	var counter store.Sequencer
	if _, atomic := repo.(store.Atomic); !atomic && cfg.RedisAddr != "" {
		redisCounter := sequence.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCounter.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, numbering from the repository", zap.Error(err))
			_ = redisCounter.Close()
		} else {
			counter = redisCounter
			closers = append(closers, redisCounter.Close)
			logger.Info("sequence: redis")
		}
	}

	svc := service.New(repo, sequence.NewGenerator(loc, counter))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL())
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()), zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return nil
}

func migrateAction(up bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for migrations")
		}
		_, flush, err := logging.Init(logging.Options{Mode: cfg.LogMode, File: cfg.LogFile})
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		defer flush()

		if err := pgstore.Migrate(cfg.DatabaseURL, up); err != nil {
			return err
		}
		zap.L().Info("migrations applied", zap.Bool("up", up))
		return nil
	}
}

func mintToken(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL())
	token, expiresAt, err := auth.Mint(c.String("user"), c.String("role"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.LogMode == "production" {
		return errors.New("ALLOWED_ORIGIN must name an origin in production")
	}
	return nil
}
