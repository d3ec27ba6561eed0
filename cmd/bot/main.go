package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/channel"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/locks"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/policy"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/transcript"
	"github.com/spec-kit/ticket-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketStore := repository.NewTicketStore(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	operatorRepo := repository.NewOperatorRepository(pool)

	policyProvider := policy.NewCachedProvider(policyRepo, redis.ClientHandle(), cfg.Ticket.PolicyCacheTTL(), logger)
	channels := channel.NewLogProvider(logger)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store:       ticketStore,
		Channels:    channels,
		Policies:    policyProvider,
		Locks:       locks.NewRegistry(),
		Transcripts: transcript.NewGenerator(channels),
		Saver:       transcript.NewFileSaver(cfg.Ticket.TranscriptDir),
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		DeleteGrace: cfg.Ticket.DeleteGrace(),
	})

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification.WebhookURL)
	worker.StartNotificationWorker(notifications)

	authService := service.NewAuthService(cfg.Auth, operatorRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), operatorRepo)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketStore, lifecycle),
		Operators:      handlers.NewOperatorsHandler(authService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	logger.Info("ticket bot started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("env", cfg.App.Env))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
