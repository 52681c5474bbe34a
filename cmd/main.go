package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chaty/internal/app/presence"
	"chaty/internal/app/registry"
	"chaty/internal/app/server"
	"chaty/internal/app/server/handlers"
	"chaty/internal/app/worker"
	"chaty/internal/config"
	"chaty/internal/core/contracts"
	"chaty/internal/core/services"
	"chaty/internal/platform/logger"
	"chaty/internal/platform/telemetry"
	"chaty/internal/plugins/fcm"
	"chaty/internal/plugins/postgres"
	redisPlugin "chaty/internal/plugins/redis"
	"chaty/pkg/logging"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "chaty",
		Usage:  "real-time coordination server for one-to-one chat",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and websocket server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the database schema and exit",
				Action: migrate,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrate(c *cli.Context) error {
	cfg := config.Load()
	log := logger.NewLogger(*cfg)

	db, err := postgres.New(c.Context, *cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(c.Context, db); err != nil {
		return err
	}
	log.Info("migrate - apply schema - done")
	return nil
}

func serve(c *cli.Context) error {
	// Context
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()
	if cfg.SecretToken == "" {
		return errors.New("JWT_SECRET is required")
	}

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", logging.Err(err))
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", logging.Err(err))
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", logging.Err(err))
		return err
	}
	defer pdb.Close()
	log.Info("postgres connected")

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
			log.Error("redis connection failed", logging.Err(err))
			return err
		}
		defer rdb.Close()
		log.Info("redis connected")
	} else {
		log.Warn("redis disabled, using in-process cache and presence")
	}

	// Adapters
	var cache contracts.Cache = services.NopCache{}
	var tracker contracts.PresenceTracker = presence.NewTracker()
	if rdb != nil {
		cache = redisPlugin.NewRedisCache(log, rdb, cfg.Cache.Namespace, cfg.Cache.DefaultTTL)
		if cfg.Presence.Backend == "redis" {
			tracker = redisPlugin.NewRedisPresenceTracker(rdb, cfg.Cache.Namespace)
		}
	}
	tasks := worker.NewTaskPool(log, cfg.Worker.TaskTimeout)

	var notifier contracts.Notifier = services.NopNotifier{}
	workerDone := make(chan struct{})
	close(workerDone)
	if cfg.FCM.Enabled() {
		fcmClient, err := fcm.NewFCMClient(log, *cfg.FCM, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			log.Error("fcm client init failed", logging.Err(err))
			return err
		}
		notifier = fcmClient
		if rdb != nil {
			queue := redisPlugin.NewNotificationQueue(log, rdb, cfg.Cache.Namespace, cfg.Worker.NotificationStream, cfg.Worker.NotificationGroup)
			notifier = queue
			workerDone = runWorker(ctx, log, worker.NewNotificationWorker(log, queue, fcmClient))
		}
	} else {
		log.Warn("push notifications disabled")
	}

	userRepo := postgres.NewUserRepository(pdb)
	convRepo := postgres.NewConversationRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	readRepo := postgres.NewReadReceiptRepo(pdb)
	tokenRepo := postgres.NewPushTokenRepo(pdb)
	txManager := postgres.NewTxManager(pdb)

	// Core Services
	hub := registry.NewRegistry(log)
	reader := services.NewCacheReader(log, cache)
	members := services.NewMembership(reader, convRepo)
	userSvc := services.NewUserService(log, userRepo, reader)
	callSvc := services.NewCallService(log, hub, members)
	convSvc := services.NewConversationService(log, hub, members, userSvc, reader, services.ConversationRepos{
		Conversations: convRepo,
		Messages:      msgRepo,
		Reads:         readRepo,
		PushTokens:    tokenRepo,
	}, txManager, notifier, tasks)
	sessSvc := services.NewSessionService(log, hub, tracker, userSvc, callSvc, tasks)
	managerSvc := services.NewManagerService(log, hub, convSvc, callSvc)
	tokenSvc := services.NewTokenService(cfg.SecretToken)

	checks := map[string]handlers.Pinger{"postgres": pdb.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Server
	srv := server.NewServer(log, *cfg, server.Handlers{
		Health:        handlers.NewHealthHandler(checks),
		WS:            handlers.NewWSHandler(log, sessSvc, managerSvc, cfg.HTTP.AllowedOrigins),
		Conversations: handlers.NewConversationHandler(convSvc),
		Tokens:        tokenSvc,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", logging.Err(err))
			stop()
			<-workerDone
			tasks.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logging.Err(err))
	}
	stop()
	<-workerDone
	tasks.Wait()
	log.Info("shutdown complete")
	return nil
}

func runWorker(ctx context.Context, log *slog.Logger, w *worker.NotificationWorker) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			log.Error("notification worker stopped", logging.Err(err))
		}
	}()
	return done
}
