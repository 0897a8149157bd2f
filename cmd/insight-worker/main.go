package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/insight-engine/cmd/mainconfig"
	appconfig "github.com/clinicflow/insight-engine/internal/config"
	"github.com/clinicflow/insight-engine/internal/docjobs"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DocumentJobQueueURL == "" {
		logger.Error("DOCUMENT_JOB_QUEUE_URL is required for the render worker")
		os.Exit(1)
	}

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var store docjobs.JobStore
	var pool *pgxpool.Pool
	switch cfg.DocumentJobStore {
	case "dynamo":
		store = docjobs.NewDynamoJobStore(dynamodb.NewFromConfig(awsConfig), cfg.DocumentJobsTable, logger)
	default:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			logger.Error("DATABASE_URL is required for the postgres job store")
			os.Exit(1)
		}
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		store = docjobs.NewPGJobStore(pool)
	}

	queue := docjobs.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.DocumentJobQueueURL)

	worker := docjobs.NewWorker(
		store,
		queue,
		docjobs.NewRenderer(),
		logger,
		docjobs.WithWorkerCount(cfg.WorkerCount),
		docjobs.WithReceiveWaitSeconds(cfg.WorkerPollWaitSecs),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	logger.Info("document render worker started",
		"workers", cfg.WorkerCount,
		"store", cfg.DocumentJobStore,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down document render worker...")
	cancel()

	window := cfg.WorkerShutdownWindow
	if window <= 0 {
		window = 30 * time.Second
	}
	doneCtx, doneCancel := context.WithTimeout(context.Background(), window)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("document render worker stopped")
	case <-doneCtx.Done():
		logger.Error("document render worker shutdown timed out", "error", doneCtx.Err())
	}

	if pool != nil {
		pool.Close()
	}
}
