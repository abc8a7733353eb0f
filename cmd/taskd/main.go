package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	taskhub "github.com/set-night/taskhub"
	"github.com/set-night/taskhub/internal/config"
	"github.com/set-night/taskhub/internal/handler"
	"github.com/set-night/taskhub/internal/metrics"
	"github.com/set-night/taskhub/internal/middleware"
	"github.com/set-night/taskhub/internal/repository"
	"github.com/set-night/taskhub/internal/service"
	"github.com/set-night/taskhub/internal/telegram"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	defaults, err := service.DefaultsFromConfig(cfg)
	if err != nil {
		slog.Error("invalid engine defaults", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	if err := repository.RunMigrations(cfg.DatabaseURL, taskhub.MigrationsFS, "migrations"); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := repository.NewStore(pool)
	m := metrics.New()

	// Operator bot and log chat, both optional
	var (
		b        *bot.Bot
		notifier service.Notifier
	)
	if cfg.BotToken != "" {
		var logNotifier *telegram.LogNotifier
		limiter := middleware.NewRateLimiter(config.OperatorCommandsPerSecond, config.OperatorCommandBurst, nil)
		b, err = bot.New(cfg.BotToken,
			bot.WithMiddlewares(
				middleware.Recover(func(err error, where string) { logNotifier.LogError(err, where) }),
				middleware.Logging(),
				middleware.AdminOnly(cfg),
				limiter.Middleware(),
			),
		)
		if err != nil {
			slog.Error("failed to create bot", "error", err)
			os.Exit(1)
		}
		logNotifier = telegram.NewLogNotifier(b, cfg)
		notifier = logNotifier
	} else {
		slog.Warn("BOT_TOKEN is empty, operator bot and log chat disabled")
	}

	// Initialize services
	settings := service.NewSettingsService(defaults)
	tracker := service.NewTaskGroupTracker()
	settler := service.NewSettlementEngine(settings)
	submissions := service.NewSubmissionService(store, service.NewQuotaGuard(), tracker, settings, m)
	audit := service.NewAuditService(store, settler, tracker, notifier, m)
	tasks := service.NewTaskService(store, tracker)
	ledger := service.NewLedgerService(store)

	// Task status job
	job := service.NewTaskStatusJob(store, notifier, m, cfg.StatusJobAttempts, cfg.StatusJobRetryDelay)
	scheduler := service.NewCron()
	if _, err := job.Schedule(scheduler, cfg.TaskStatusCron, config.StatusJobTimeout); err != nil {
		slog.Error("failed to schedule task status job", "error", err)
		os.Exit(1)
	}
	if _, _, err := job.Run(ctx); err != nil {
		slog.Warn("initial task status run failed", "error", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	if b != nil {
		h := handler.New(handler.Deps{
			Client:      b,
			Store:       store,
			Audit:       audit,
			Submissions: submissions,
			Settings:    settings,
			Ledger:      ledger,
			Tasks:       tasks,
			Notifier:    notifier,
		})
		h.Register(b)

		slog.Info("starting operator bot", "admins", cfg.AdminIDsString())
		b.Start(ctx)
	} else {
		<-ctx.Done()
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown", "error", err)
	}
	slog.Info("taskd stopped gracefully")
}
