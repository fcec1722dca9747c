package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/quicksched/internal/api"
	"github.com/notifyhub/quicksched/internal/assethost"
	"github.com/notifyhub/quicksched/internal/config"
	"github.com/notifyhub/quicksched/internal/db"
	"github.com/notifyhub/quicksched/internal/metrics"
	"github.com/notifyhub/quicksched/internal/platform"
	"github.com/notifyhub/quicksched/internal/ratelimiter"
	"github.com/notifyhub/quicksched/internal/repository"
	"github.com/notifyhub/quicksched/internal/service"
	"github.com/notifyhub/quicksched/internal/worker"
)

// stores bundles the repositories of the selected driver.
type stores struct {
	schedule      repository.ScheduleRepository
	notifications repository.NotificationRepository
	ping          func(ctx context.Context) error
	close         func()
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- storage ----
	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	limiter := ratelimiter.New(cfg.StatusRateLimit, cfg.PublishRateLimit)
	graph := platform.NewGraphClient(platform.GraphConfig{
		BaseURL:     cfg.GraphBaseURL,
		PageID:      cfg.GraphPageID,
		AccessToken: cfg.GraphAccessToken,
		Timeout:     cfg.GraphTimeout,
	}, limiter)

	opts := service.Options{
		MinLead:  cfg.MinScheduleLead,
		OnSubmit: m.SubmitHook(),
	}
	if cfg.PublishingEnabled() {
		opts.Publisher = graph
	} else {
		logger.Warn("GRAPH_PAGE_ID or GRAPH_ACCESS_TOKEN not set: new posts are stored as drafts")
	}
	if cfg.AssetUploadURL != "" {
		opts.Uploader = assethost.NewHTTPUploader(cfg.AssetUploadURL, cfg.AssetUploadPreset, cfg.AssetTimeout)
	}
	svc := service.NewScheduleService(st.schedule, st.notifications, logger, opts)

	// ---- reconciler ----
	var oracle platform.StatusOracle = graph
	if !cfg.StatusChecksEnabled() {
		oracle = platform.StatusOracleFunc(func(context.Context, string) (bool, error) {
			return false, errors.New("publish status checks are disabled: GRAPH_ACCESS_TOKEN not set")
		})
	}
	rec := worker.NewReconciler(worker.ReconcilerConfig{
		Workers:     cfg.ReconcileWorkers,
		ItemTimeout: cfg.ReconcileItemTimeout,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffMax:  cfg.RetryBackoffMax,
	}, st.schedule, st.notifications, oracle, logger.Named("reconciler"), m.ReconcilerHooks())

	scheduler, err := worker.NewReconcileScheduler(rec, cfg.ReconcileSchedule, logger.Named("reconciler"))
	if err != nil {
		logger.Fatal("failed to create reconcile scheduler", zap.Error(err))
	}
	if cfg.StatusChecksEnabled() {
		scheduler.Start()
	} else {
		logger.Warn("reconcile scheduler not started: GRAPH_ACCESS_TOKEN not set")
	}

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Service:        svc,
		Reconcile:      scheduler,
		Gatherer:       reg,
		Ping:           st.ping,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	// 1. Stop accepting new HTTP requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. No new ticks or oracle queries; let the running pass finish its
	//    archive transitions.
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("reconcile scheduler shutdown error", zap.Error(err))
	}

	// 3. The store is closed by the deferred st.close().
	logger.Info("server stopped cleanly")
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath, 5*time.Second)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return &stores{
			schedule:      repository.NewSQLiteScheduleRepository(conn),
			notifications: repository.NewSQLiteNotificationRepository(conn),
			ping:          conn.PingContext,
			close:         func() { _ = conn.Close() },
		}, nil

	default:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
		return &stores{
			schedule:      repository.NewPgScheduleRepository(pool),
			notifications: repository.NewPgNotificationRepository(pool),
			ping:          pool.Ping,
			close:         pool.Close,
		}, nil
	}
}
