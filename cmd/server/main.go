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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/cleardeal/api"
	dbfs "github.com/garnizeh/cleardeal/db"
	"github.com/garnizeh/cleardeal/internal/config"
	"github.com/garnizeh/cleardeal/internal/db"
	"github.com/garnizeh/cleardeal/internal/escrow"
	"github.com/garnizeh/cleardeal/internal/identity"
	"github.com/garnizeh/cleardeal/internal/notify"
	"github.com/garnizeh/cleardeal/internal/ratelimit"
	"github.com/garnizeh/cleardeal/internal/repository/sqlite"
	"github.com/garnizeh/cleardeal/internal/submission"
	"github.com/garnizeh/cleardeal/internal/worker"
	"github.com/garnizeh/cleardeal/pkg/metrics"
	"github.com/garnizeh/cleardeal/pkg/settlement"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	settlement.SetLogger(logger)

	logger.Info("starting cleardeal server", "version", version, "build_time", buildTime, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("error closing db", "err", err)
		}
	}()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	store := sqlite.New(conn, logger)

	settler, closeSettler, err := newSettler(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSettler()

	loader, err := submission.NewLoader(ctx, store)
	if err != nil {
		return fmt.Errorf("load submission schemas: %w", err)
	}
	if _, ok := loader.GetSchema(cfg.SubmissionSchemaVersion); !ok {
		return fmt.Errorf("submission schema %q is not installed", cfg.SubmissionSchemaVersion)
	}

	broker := notify.NewBroker(logger)
	defer broker.Close()

	pool := worker.NewPool(store, nil, logger, cfg.Workers)
	pool.Handle(notify.WebhookJobType, notify.WebhookHandler(nil))
	notifier := notify.NewNotifier(broker, pool, cfg.Notify.WebhookURL, logger)
	watcher := notify.NewWatcher(store, notifier, cfg.Notify.WatchInterval, logger)

	opts := []escrow.Option{
		escrow.WithLogger(logger),
		escrow.WithPublisher(notifier),
		escrow.WithSubmissionValidator(submission.NewValidator(loader, cfg.SubmissionSchemaVersion)),
		escrow.WithSettlementTimeout(cfg.Settlement.Timeout),
	}

	httpMetrics := metrics.NewMiddleware("cleardeal")
	httpMetrics.MustRegisterDefault()

	handler := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Users:       store,
		Jobs:        escrow.NewJobEngine(store, opts...),
		Apps:        escrow.NewApplicationEngine(store, settler, opts...),
		Broker:      broker,
		Schemas:     loader,
		Limiter:     ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0),
		Revocations: identity.NewRevocations(),
		Metrics:     httpMetrics,
		DB:          conn.GetConn(),
	})

	// No WriteTimeout: /v1/events streams for as long as the client stays.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.APITimeout,
		IdleTimeout:       60 * time.Second,
	}
	// Closing the broker ends open event streams so Shutdown can finish.
	server.RegisterOnShutdown(broker.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}

// newSettler picks the settlement backend for cfg.Settlement.Mode.
func newSettler(cfg *config.Config, logger *slog.Logger) (settlement.Settler, func(), error) {
	switch cfg.Settlement.Mode {
	case settlement.ModeHTTP:
		c, err := settlement.NewDefaultClient(cfg.Settlement)
		if err != nil {
			return nil, nil, fmt.Errorf("settlement client: %w", err)
		}
		return c, func() {
			if err := c.Close(); err != nil {
				logger.Error("error closing settlement client", "err", err)
			}
		}, nil
	default:
		logger.Warn("using the in-process settlement ledger; no funds move")
		return settlement.NewLedger(nil), func() {}, nil
	}
}
