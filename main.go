package main

import (
	"context"
	"os/signal"
	"syscall"

	"rollup-service/internal/config"
	"rollup-service/internal/consumer"
	"rollup-service/internal/database"
	"rollup-service/internal/dedup"
	"rollup-service/internal/logger"
	"rollup-service/internal/processor"
	"rollup-service/internal/publisher"
	"rollup-service/internal/queue"
	"rollup-service/internal/repository"
)

func main() {
	log := logger.New()
	cfg := config.Load()

	// Initialize database
	db, err := database.New(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	sqlDB, _ := db.DB.DB()
	defer sqlDB.Close()

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(db.DB, log)
	componentRepo := repository.NewComponentRepository(db.DB, log)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Idempotency guard; queued mode defaults to the DB store so markers are
	// visible across worker processes.
	var store dedup.Store
	if cfg.Dedup.Backend == config.DedupBackendDB {
		dbStore := dedup.NewDBStore(db.DB, cfg.Dedup.TTL)
		go dedup.Sweep(ctx, dbStore, cfg.Dedup.SweepInterval, log)
		store = dbStore
	} else {
		store = dedup.NewMemoryStore(cfg.Dedup.TTL)
	}
	guard := dedup.NewGuard(store, log)

	// Event bus publisher for republished project events
	bus, err := publisher.New(cfg.Rabbit, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize publisher")
	}
	defer bus.Close()

	proc := processor.New(db.DB, projectRepo, componentRepo, guard, bus, log)

	// Pick the delivery mode: inline runs the rollup on the consuming worker,
	// queued defers it to a delayed job queue.
	var dispatcher consumer.Dispatcher
	if cfg.Rollup.Mode == config.ModeQueued {
		jobQueue, err := queue.New(cfg.Rabbit, log)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize job queue")
		}
		defer jobQueue.Close()

		worker := queue.NewWorker(jobQueue, proc, cfg.Rabbit.Workers, log)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("job worker stopped unexpectedly")
			}
		}()

		dispatcher = consumer.NewQueuedDispatcher(jobQueue, cfg.Rollup.JobDelay, log)
	} else {
		dispatcher = consumer.NewInlineDispatcher(proc, log)
	}

	// Initialize and start RabbitMQ consumer
	rmqConsumer, err := consumer.New(cfg.Rabbit, log, dispatcher)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize RabbitMQ consumer")
	}
	defer rmqConsumer.Close()

	if err := rmqConsumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("consumer stopped unexpectedly")
	}

	log.Info("graceful shutdown complete")
}
