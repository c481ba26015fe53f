package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/config"
	"github.com/user/extractor-service/internal/enrich"
	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/notify"
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
	keys := cfg.APIKeys()
	if len(keys) == 0 {
		logger.Fatal("no enrichment API keys configured")
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()

	// Initialize Monitoring, Notifications
	metrics := monitoring.NewMetrics()
	notifier := notify.NewLogNotifier(logger)

	// Initialize Messaging
	queueConn := queue.NewConnection(queue.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, notifier, metrics, logger)
	defer queueConn.Close()

	deadLetterPub := queue.NewPublisher(queueConn, cfg.DeadLetterStream, cfg.MaxStreamLen, logger)

	// Initialize Enrichment Pipeline
	modelClient := enrich.NewCohereClient(enrich.GenerationParams{
		Model:           cfg.AIModel,
		Temperature:     cfg.AITemperature,
		TopP:            cfg.AITopP,
		TopK:            cfg.AITopK,
		MaxOutputTokens: cfg.AIMaxOutputTokens,
	})
	generator := enrich.NewGenerator(enrich.NewKeyPool(keys), modelClient, notifier, cfg.AIMaxAttempts, logger)
	processor := enrich.NewProcessor(generator, pgStore, metrics, cfg.ValidationThreshold, logger)

	consumer := queue.NewConsumer(queueConn, cfg.ArticleStream, cfg.ConsumerGroup,
		cfg.ConsumerName, deadLetterPub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx, processor.Handle); err != nil && ctx.Err() == nil {
			logger.Error("article consumer stopped", zap.Error(err))
		}
	}()

	logger.Info("analyzer started",
		zap.String("stream", cfg.ArticleStream), zap.String("model", cfg.AIModel))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down analyzer...")
	cancel()
	<-done
	logger.Info("analyzer exiting")
}
