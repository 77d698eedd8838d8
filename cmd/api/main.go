package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"omega-store/internal/config"
	"omega-store/internal/database"
	"omega-store/internal/events"
	"omega-store/internal/logger"
	"omega-store/internal/payment"
	"omega-store/internal/server"
	"omega-store/migrations"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const kafkaQueueSize = 256

func gracefulShutdown(apiServer *server.Server, stopWorkers func(), logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Background workers drain before their clients are closed
	stopWorkers()

	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	dbService, err := database.New(cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if len(os.Args) > 1 && os.Args[1] == "migrate-status" {
		pending, err := database.GetMigrationStatus(context.Background(), dbService.DB(), migrations.FS, log)
		if err != nil {
			log.Fatal("Failed to read migration status", zap.Error(err))
		}
		log.Info("Migration status", zap.Int("pending", pending))
		return
	}

	if err := database.RunMigrations(context.Background(), dbService.DB(), migrations.FS, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
	}
	cancelPing()

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	bus := events.NewBus(instanceID, log)

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	relay := events.NewRedisRelay(redisClient, events.DefaultChannel, bus, log)
	bus.AddForwarder(relay)
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := relay.Run(workersCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Change relay stopped", zap.Error(err))
		}
	}()

	if cfg.Kafka.Enabled() {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), kafkaQueueSize, log)
		bus.AddForwarder(sink)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := sink.Run(workersCtx); err != nil {
				log.Error("Kafka sink stopped", zap.Error(err))
			}
		}()
		log.Info("Publishing order events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	processor := payment.NewProcessor(cfg.Payment.SecretKey, cfg.Payment.Timeout, log)
	if !processor.Configured() {
		log.Warn("No usable payment key configured, online checkout is disabled")
	}

	srv := server.NewServer(cfg, log, server.Dependencies{
		Database:  dbService,
		Redis:     redisClient,
		Bus:       bus,
		Processor: processor,
	})

	if cfg.Store.SeedCatalog {
		if err := srv.SeedCatalog(context.Background()); err != nil {
			log.Fatal("Failed to seed catalog", zap.Error(err))
		}
	}

	done := make(chan bool, 1)
	stopWorkers := func() {
		cancelWorkers()
		workers.Wait()
	}
	go gracefulShutdown(srv, stopWorkers, log, done)

	log.Info("Starting omega store API",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", srv.Addr),
		zap.String("instance_id", instanceID),
	)

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info("Graceful shutdown complete")
}
