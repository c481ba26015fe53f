package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/api"
	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/config"
	"github.com/user/extractor-service/internal/dispatch"
	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/notify"
	"github.com/user/extractor-service/internal/proxy"
	"github.com/user/extractor-service/internal/queue"
	"github.com/user/extractor-service/internal/storage"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()

	snapshots, err := storage.NewFileSnapshotStore(cfg.SnapshotDir)
	if err != nil {
		logger.Fatal("failed to prepare snapshot directory", zap.Error(err))
	}

	// Initialize Monitoring, Notifications, Proxies
	metrics := monitoring.NewMetrics()
	notifier := notify.NewLogNotifier(logger)
	proxyManager := proxy.NewManager(cfg.ProxyEnabled, cfg.ProxyList())

	// Initialize Messaging
	queueConn := queue.NewConnection(queue.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, notifier, metrics, logger)
	defer queueConn.Close()

	articlePub := queue.NewPublisher(queueConn, cfg.ArticleStream, cfg.MaxStreamLen, logger)
	deadLetterPub := queue.NewPublisher(queueConn, cfg.DeadLetterStream, cfg.MaxStreamLen, logger)

	// Initialize Extraction Pipeline
	recorder := capture.NewRecorder(pgStore, snapshots, notifier, logger)
	reparser := capture.NewReparser(pgStore, snapshots, pgStore, logger)
	dispatcher := dispatch.NewDispatcher(pgStore, pgStore, recorder, articlePub,
		notifier, metrics, proxyManager, time.Duration(cfg.BrowserTimeout)*time.Second, logger)

	// Consume batch extraction requests from the metadata stream
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	consumer := queue.NewConsumer(queueConn, cfg.MetadataStream, cfg.ConsumerGroup,
		cfg.ConsumerName, deadLetterPub, logger)
	go func() {
		if err := consumer.Run(consumerCtx, dispatcher.StreamHandler()); err != nil && consumerCtx.Err() == nil {
			logger.Error("request consumer stopped", zap.Error(err))
		}
	}()

	// Initialize API Server
	server := api.NewServer(cfg, dispatcher, reparser, pgStore, queueConn, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("extractor started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down extractor...")

	consumerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("extractor exiting")
}
