package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cacheredis "github.com/arunvm123/flashdeal/cache/redis"
	"github.com/arunvm123/flashdeal/config"
	"github.com/arunvm123/flashdeal/logger"
	"github.com/arunvm123/flashdeal/notification"
	"github.com/arunvm123/flashdeal/notification/kafka"
	"github.com/arunvm123/flashdeal/repository/postgres"
	"github.com/arunvm123/flashdeal/seckill"
)

func main() {
	cfg, err := config.Initialise("config.yaml", false)
	if err != nil {
		logger.New("info", "json").Fatal("Failed to load configuration: ", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("Starting order processor worker")

	// Initialize repository
	repo, err := postgres.NewRepository(cfg.Database.GetDatabaseURL())
	if err != nil {
		log.Fatal("Failed to initialize repository: ", err)
	}

	// Initialize Redis
	rdb, err := cacheredis.NewClient(cfg.Redis.GetRedisURL(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		log.Fatal("Failed to initialize redis: ", err)
	}
	defer rdb.Close()

	// Order events are optional
	var publisher notification.Publisher = notification.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = kafka.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, cfg.Kafka.BatchTimeout())
	}
	defer publisher.Close()

	processor := seckill.NewOrderProcessor(
		seckill.NewRedisOrderLog(rdb, cfg.Seckill.ConsumerGroup),
		repo,
		publisher,
		seckill.ProcessorConfig{
			ConsumerName:     cfg.Seckill.ConsumerID(),
			Consumers:        cfg.Seckill.Consumers,
			Block:            cfg.Seckill.Block(),
			RecoveryInterval: cfg.Seckill.RecoveryInterval(),
			ClaimMinIdle:     cfg.Seckill.ClaimMinIdle(),
		},
		logger.Component(log, "order-processor"),
	)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, stopping worker...")
		cancel()
	}()

	if err := processor.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal("Worker error: ", err)
	}

	log.Info("Worker stopped gracefully")
}
