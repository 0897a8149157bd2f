package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/insight-engine/internal/prediction"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

type config struct {
	databaseURL string
	logLevel    string
}

func loadConfig() (config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return config{}, errors.New("DATABASE_URL is required")
	}

	logLevel := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}

	return config{
		databaseURL: databaseURL,
		logLevel:    logLevel,
	}, nil
}

type sweepResult struct {
	Deleted int64 `json:"deleted"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.logLevel)

	pool, err := pgxpool.New(context.Background(), cfg.databaseURL)
	if err != nil {
		panic(err)
	}

	cleaner := prediction.NewCleaner(nil, prediction.NewPostgresStore(pool), logger)
	lambda.Start(func(ctx context.Context) (sweepResult, error) {
		return handle(ctx, cleaner, logger)
	})
}

func handle(ctx context.Context, cleaner *prediction.Cleaner, logger *logging.Logger) (sweepResult, error) {
	deleted := cleaner.Sweep(ctx)
	logger.Info("expired prediction cache rows swept", "deleted", deleted)
	return sweepResult{Deleted: deleted}, nil
}
