package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campusline/cache"
	"campusline/config"
	"campusline/database"
	"campusline/handlers"
	"campusline/jobs"
	"campusline/metrics"
	"campusline/repository"
	"campusline/services"
	"campusline/session"
	"campusline/utils"
	"campusline/websocket"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Server.LogLevel, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.CreateTables(db, logger); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" || cfg.Transport.Broker == "redis" {
		if redisClient, err = database.NewRedis(cfg.Redis.URL, logger); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(registry)

	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	purgers := map[string]jobs.Purger{}

	var revoker session.Revoker
	if cfg.Cache.Backend == "redis" {
		revoker = session.NewRedisRevoker(redisClient, cfg.Auth.TokenTTL, logger)
	} else {
		memoryRevoker := session.NewMemoryRevoker(cfg.Auth.TokenTTL)
		purgers["revocations"] = memoryRevoker
		revoker = memoryRevoker
	}

	var friendshipCache cache.FriendshipCache
	if cfg.Cache.Backend == "redis" {
		friendshipCache = cache.NewRedisCache(redisClient, cfg.Cache.TTL, logger)
	} else {
		memoryCache := cache.NewMemoryCache(cfg.Cache.TTL)
		purgers["friendship_cache"] = memoryCache
		friendshipCache = memoryCache
	}

	hub := websocket.NewHub(logger, m)
	go hub.Run(ctx)

	emitter, closeBroker, err := newEmitter(ctx, cfg, hub, redisClient, m, logger)
	if err != nil {
		return err
	}
	defer closeBroker()

	userStore := repository.NewUserRepository(db)
	friendshipStore := repository.NewFriendshipRepository(db)
	notificationStore := repository.NewNotificationRepository(db)
	presenceStore := repository.NewPresenceRepository(db)

	presence := services.NewPresenceService(presenceStore, friendshipStore, emitter, cfg.Presence.Threshold, m, logger)
	notifications := services.NewNotificationService(notificationStore, userStore, emitter, logger)
	friends := services.NewFriendshipService(friendshipStore, userStore, friendshipCache, presence, notifications, emitter, m, logger)
	admin := services.NewAdminService(userStore, notifications, revoker, logger)
	users := services.NewUserService(userStore, tokens, logger)

	janitor, err := jobs.NewJanitor(cfg.Cache.JanitorSpec, purgers, logger)
	if err != nil {
		return err
	}
	janitor.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		janitor.Stop(stopCtx)
	}()

	if err := handlers.RegisterValidators(); err != nil {
		return err
	}

	router := handlers.NewRouter(handlers.Deps{
		Users:             users,
		Presence:          presence,
		Friends:           friends,
		Notifications:     notifications,
		Admin:             admin,
		Tokens:            tokens,
		Revoker:           revoker,
		WebSocket:         websocket.NewHandler(hub, tokens, revoker, presence.Heartbeat, cfg.Server.CORSOrigins, logger),
		Metrics:           m,
		Gatherer:          registry,
		Ping:              pinger(db, redisClient),
		CORSOrigins:       cfg.Server.CORSOrigins,
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("cache", cfg.Cache.Backend),
			zap.String("broker", cfg.Transport.Broker),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newEmitter picks how events reach connections: straight into the local hub,
// or through a broker every instance subscribes to.
func newEmitter(ctx context.Context, cfg *config.Config, hub *websocket.Hub, redisClient *redis.Client, m *metrics.Metrics, logger *zap.Logger) (websocket.Emitter, func(), error) {
	var broker websocket.Broker
	switch cfg.Transport.Broker {
	case "redis":
		broker = websocket.NewRedisBroker(redisClient, logger)
	case "nats":
		natsBroker, err := websocket.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return nil, nil, err
		}
		broker = natsBroker
	default:
		return websocket.NewLocalEmitter(hub, m), func() {}, nil
	}

	relay := websocket.NewRelay(hub, broker, logger, m)
	if err := relay.Start(ctx); err != nil {
		broker.Close()
		return nil, nil, err
	}
	return relay, func() {
		if err := broker.Close(); err != nil {
			logger.Warn("broker close failed", zap.Error(err))
		}
	}, nil
}

func pinger(db *sql.DB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if redisClient != nil {
			return redisClient.Ping(ctx).Err()
		}
		return nil
	}
}
