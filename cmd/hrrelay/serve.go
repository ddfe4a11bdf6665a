package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/hrrelay/internal/application/relay"
	"github.com/aescanero/hrrelay/internal/application/watcher"
	"github.com/aescanero/hrrelay/internal/config"
	eventsmemory "github.com/aescanero/hrrelay/pkg/adapters/events/memory"
	eventsnats "github.com/aescanero/hrrelay/pkg/adapters/events/nats"
	eventsredis "github.com/aescanero/hrrelay/pkg/adapters/events/redis"
	metricsprom "github.com/aescanero/hrrelay/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/hrrelay/pkg/adapters/storage/file"
	storagenats "github.com/aescanero/hrrelay/pkg/adapters/storage/nats"
	storageredis "github.com/aescanero/hrrelay/pkg/adapters/storage/redis"
	"github.com/aescanero/hrrelay/pkg/api/grpc"
	"github.com/aescanero/hrrelay/pkg/api/http"
	"github.com/aescanero/hrrelay/pkg/api/websocket"
	"github.com/aescanero/hrrelay/pkg/ports"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func runServe(opts *options) error {
	// Load configuration
	cfg, err := opts.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return err
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting heart-rate relay",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	var natsConn *nats.Conn
	if cfg.UsesNATS() {
		natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.Name("hrrelay"),
			nats.Timeout(cfg.NATS.ConnectTimeout),
		)
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		logger.Info("connected to NATS", zap.String("url", natsConn.ConnectedUrl()))
	}

	// Initialize adapters
	store, err := buildStore(ctx, cfg, redisClient, natsConn, logger)
	if err != nil {
		logger.Fatal("failed to create store", zap.Error(err))
	}
	eventBus := buildEventBus(cfg, redisClient, natsConn, logger)

	var metrics ports.MetricsCollector = ports.NopMetricsCollector{}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		metrics = metricsprom.NewCollector(prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
	}

	// Initialize application components
	relaySvc := relay.NewService(store, eventBus, metrics, logger)
	relaySvc.Load(ctx)

	storeWatcher := watcher.New(relaySvc, changeSource(cfg, store), cfg.Events.WatchInterval, metrics, logger)
	storeWatcher.Start()

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Addr:              cfg.GetHTTPAddr(),
		ReadHeaderTimeout: cfg.Timeouts.ReadHeaderTimeout,
		Relay:             relaySvc,
		Metrics:           metrics,
		Gatherer:          gatherer,
		Logger:            logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(eventBus, relaySvc, metrics, logger))

	var grpcServer *grpc.Server
	if cfg.GRPCPort > 0 {
		grpcServer, err = grpc.NewServer(&grpc.Config{
			Addr:   cfg.GetGRPCAddr(),
			Logger: logger,
		})
		if err != nil {
			logger.Fatal("failed to create gRPC server", zap.Error(err))
		}
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Start(); err != nil {
				logger.Fatal("gRPC server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Server started. Listening for requests...",
		zap.String("addr", cfg.GetHTTPAddr()),
		zap.String("store", cfg.Store.Backend),
		zap.String("file_path", cfg.Store.FilePath),
		zap.String("events", cfg.Events.Backend),
		zap.String("watch", storeWatcher.GetStatus().Mode))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	storeWatcher.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if grpcServer != nil {
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("gRPC server shutdown error", zap.Error(err))
		}
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Error("NATS drain error", zap.Error(err))
		}
	}

	logger.Info("heart-rate relay shut down complete")
	return nil
}

// buildStore selects the reading store backend
func buildStore(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, natsConn *nats.Conn, logger *zap.Logger) (ports.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		return storageredis.NewStore(redisClient, cfg.Redis.Key, logger), nil
	case config.StoreNATS:
		js, err := jetstream.New(natsConn)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		kv, err := storagenats.OpenBucket(ctx, js, cfg.NATS.Bucket)
		if err != nil {
			return nil, err
		}
		return storagenats.NewStore(kv, cfg.NATS.Key, logger), nil
	default:
		return file.NewStore(cfg.Store.FilePath, cfg.Store.AtomicWrite, logger), nil
	}
}

// changeSource returns the store's change notifications when enabled and
// supported. Redis has none; it relies on HR_WATCH_INTERVAL polling.
func changeSource(cfg *config.Config, store ports.Store) ports.StoreWatcher {
	if !cfg.Events.Watch {
		return nil
	}
	source, ok := store.(ports.StoreWatcher)
	if !ok {
		return nil
	}
	return source
}

// buildEventBus selects the event bus backend
func buildEventBus(cfg *config.Config, redisClient *goredis.Client, natsConn *nats.Conn, logger *zap.Logger) ports.EventBus {
	switch cfg.Events.Backend {
	case config.EventsRedis:
		return eventsredis.NewStreamsEventBus(redisClient, cfg.Redis.StreamPrefix, logger)
	case config.EventsNATS:
		return eventsnats.NewEventBus(natsConn, cfg.NATS.SubjectPrefix, logger)
	default:
		return eventsmemory.NewInMemoryEventBus(logger)
	}
}
