package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	jobapi "github.com/aliskhannn/album-curator/internal/api/handlers/job"
	"github.com/aliskhannn/album-curator/internal/api/router"
	"github.com/aliskhannn/album-curator/internal/api/server"
	"github.com/aliskhannn/album-curator/internal/config"
	"github.com/aliskhannn/album-curator/internal/curator"
	"github.com/aliskhannn/album-curator/internal/infra/kafka/consumer"
	"github.com/aliskhannn/album-curator/internal/infra/kafka/producer"
	jobmsg "github.com/aliskhannn/album-curator/internal/kafka/handlers/job"
	"github.com/aliskhannn/album-curator/internal/repository"
	albumrepo "github.com/aliskhannn/album-curator/internal/repository/album"
	imagerepo "github.com/aliskhannn/album-curator/internal/repository/image"
	jobrepo "github.com/aliskhannn/album-curator/internal/repository/job"
	jobsvc "github.com/aliskhannn/album-curator/internal/service/job"
	"github.com/aliskhannn/album-curator/internal/service/pipeline"
	"github.com/aliskhannn/album-curator/internal/storage/file"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	_ = godotenv.Load()
	cfg := config.MustLoad("./config")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := repository.Migrate(db.Master); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Retry strategy for Kafka and webhook delivery.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize object storage (MinIO).
	storage, err := file.NewStorage(
		ctx,
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.BucketName,
		cfg.Storage.UseSSL,
		cfg.Storage.URLExpiry,
	)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Initialize repositories, queue producer, curator, and services.
	jobs := jobrepo.NewRepository(db)
	images := imagerepo.NewRepository(db)
	albums := albumrepo.NewRepository(db)

	p := producer.New(&cfg.Kafka, strategy)
	cur := curator.New(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Temperature)

	submission := jobsvc.NewService(jobs, images, p, cfg.Pipeline.MaxBatchSize)
	worker := pipeline.NewService(jobs, images, albums, storage, cur)

	// Kafka message handler delivering tasks to the pipeline webhook.
	deliveryHandler := jobmsg.NewDeliveryHandler(cfg.Pipeline.CallbackURL, cfg.Pipeline.SharedSecret, strategy)

	// HTTP handler for job routes.
	jobHandler := jobapi.NewHandler(submission, worker, jobs, albums, cfg.Pipeline.SharedSecret)

	// Kafka consumer bridging the queue to the callback endpoint.
	c := consumer.New(&cfg.Kafka, strategy, deliveryHandler)

	// Start Kafka consumer in a separate goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(jobHandler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for Kafka consumer goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients.
	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}
