package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/insight-engine/cmd/mainconfig"
	"github.com/clinicflow/insight-engine/internal/alerts"
	"github.com/clinicflow/insight-engine/internal/api/router"
	appconfig "github.com/clinicflow/insight-engine/internal/config"
	"github.com/clinicflow/insight-engine/internal/docjobs"
	"github.com/clinicflow/insight-engine/internal/insight"
	"github.com/clinicflow/insight-engine/internal/notify"
	"github.com/clinicflow/insight-engine/internal/observability/metrics"
	"github.com/clinicflow/insight-engine/internal/ocr"
	"github.com/clinicflow/insight-engine/internal/prediction"
	"github.com/clinicflow/insight-engine/internal/priorauth"
	"github.com/clinicflow/insight-engine/internal/recovery"
	"github.com/clinicflow/insight-engine/internal/risk"
	"github.com/clinicflow/insight-engine/internal/scheduling"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicflow insight engine",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Root context for the poller, cleaner, and inline worker loops.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage layers
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	var sqlDB *sql.DB
	if pool != nil {
		sqlDB = stdlib.OpenDBFromPool(pool)
	}
	redisClient := connectRedis(ctx, cfg, logger)

	// Metrics registry and instrument families
	reg, metricsHandler, m := setupMetrics()

	// Two-layer prediction façade
	memoryCache := prediction.NewMemoryCache(cfg.MemoryCacheTTL)
	var cacheStore prediction.Store
	if pool != nil {
		cacheStore = prediction.NewPostgresStore(pool)
	}
	var predictionLog *prediction.Log
	var appender prediction.Appender
	if sqlDB != nil {
		predictionLog = prediction.NewLog(sqlDB)
		appender = predictionLog
	}
	predictions := prediction.NewService(memoryCache, cacheStore, appender, logger).
		WithDefaultTTLHours(cfg.CacheTTLHours).
		WithMetrics(m.prediction)

	// Insight service over the scoring engines
	svc := insight.NewService(
		predictions,
		risk.NewPredictor(),
		priorauth.NewRecommender(),
		scheduling.NewOptimizer(scheduling.DefaultConfig()),
		ocr.NewSynthesizer(),
		logger,
	).WithModelIDs(insight.ModelIDs{
		NoShow:     cfg.NoShowModelID,
		Auth:       cfg.AuthModelID,
		Schedule:   cfg.ScheduleModelID,
		Extraction: cfg.OCRModelID,
	}).WithOCRThreshold(cfg.OCRConfidenceThreshold)

	// Exception recovery over Postgres review and task stores
	var recoveryHandler *recovery.Handler
	if pool != nil && sqlDB != nil {
		reviews := recovery.NewReviewStore(sqlDB)
		recoveryRouter := recovery.NewRouter(
			recovery.SimulatedRunner{SuccessRate: cfg.RecoverySuccessRate},
			reviews,
			recovery.NewTaskStore(pool),
			logger,
		).WithMetrics(m.recovery)
		recoveryHandler = recovery.NewHandler(recoveryRouter, reviews, logger)
		svc = svc.WithRecovery(recoveryRouter)
	}

	// Risk alerting over Redis gating state
	var settingsHandler *alerts.SettingsHandler
	var poller *alerts.Poller
	if redisClient != nil {
		settingsStore := alerts.NewSettingsStore(redisClient, logger)
		seedAlertSettings(ctx, settingsStore, cfg, logger)
		settingsHandler = alerts.NewSettingsHandler(settingsStore, logger)

		if !cfg.DisableAlertDispatch {
			limiter := alerts.NewRateLimiter(redisClient, cfg.AlertMaxPerWindow, cfg.AlertRateLimitWindow, logger)
			evaluator := alerts.NewEvaluator(settingsStore, redisClient, limiter, logger)
			dispatcher := alerts.NewDispatcher(
				evaluator,
				buildEmailSender(ctx, cfg, logger),
				notify.NewStubSMSSender(logger),
				logger,
			).WithMetrics(m.alerts)
			svc = svc.WithAlerter(dispatcher, cfg.AlertClinicID)

			if predictionLog != nil {
				poller = alerts.NewPoller(predictionLog, dispatcher, cfg.AlertClinicID, logger).
					WithInterval(cfg.AlertPollInterval)
			}
		}
	}

	// Document render pipeline (handler plus inline worker for memory queues)
	jobsHandler, inlineWorker, err := setupDocJobs(ctx, cfg, pool, logger, m.jobs)
	if err != nil {
		logger.Error("failed to initialize document job pipeline", "error", err)
		os.Exit(1)
	}

	// Background loops
	cleaner := prediction.NewCleaner(memoryCache, cacheStore, logger).
		WithInterval(cfg.CacheCleanupInterval)
	go cleaner.Start(ctx)
	if poller != nil {
		go poller.Start(ctx)
	}
	if inlineWorker != nil {
		inlineWorker.Start(ctx)
	}

	// Insights dashboard (admin)
	var dashboard *insight.DashboardHandler
	if pool != nil {
		dashboard = insight.NewDashboardHandler(insight.NewDashboardRepository(pool), reg, logger)
	} else {
		dashboard = insight.NewDashboardHandler(nil, reg, logger)
	}

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		InsightHandler:     insight.NewHandler(svc, logger),
		RecoveryHandler:    recoveryHandler,
		JobsHandler:        jobsHandler,
		AlertSettings:      settingsHandler,
		InsightsDashboard:  dashboard,
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		IngestToken:        cfg.IngestToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins(),
		RateLimitPerSec:    cfg.RateLimitPerSec,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if inlineWorker != nil {
		waitForWorker(inlineWorker, cfg.WorkerShutdownWindow, logger)
	}
	if pool != nil {
		pool.Close()
	}

	logger.Info("server stopped")
}

type appMetrics struct {
	prediction *metrics.PredictionMetrics
	recovery   *metrics.RecoveryMetrics
	alerts     *metrics.AlertMetrics
	jobs       *metrics.JobMetrics
}

// setupMetrics builds the process-local registry with every instrument
// family registered, plus the handler that exports it.
func setupMetrics() (*prometheus.Registry, http.Handler, *appMetrics) {
	reg := prometheus.NewRegistry()
	m := &appMetrics{
		prediction: metrics.NewPredictionMetrics(reg),
		recovery:   metrics.NewRecoveryMetrics(reg),
		alerts:     metrics.NewAlertMetrics(reg),
		jobs:       metrics.NewJobMetrics(reg),
	}
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// connectPostgresPool opens the pgx pool, or returns nil when no database is
// configured so the server can still answer predictions cache-free.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn("DATABASE_URL not set, persistent cache, audit log, and recovery queue disabled")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("postgres pool init failed", "error", err)
		return nil
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("postgres unreachable at startup, continuing", "error", err)
	}
	return pool
}

// connectRedis builds the Redis client used for alert gating state, or nil
// when no address is configured.
func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Warn("REDIS_ADDR not set, alert settings and gating disabled")
		return nil
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, continuing", "error", err)
	}
	return client
}

// seedAlertSettings writes the env-derived clinic settings once; an existing
// record wins so admin edits survive restarts.
func seedAlertSettings(ctx context.Context, store *alerts.SettingsStore, cfg *appconfig.Config, logger *logging.Logger) {
	seeded, err := store.Seed(ctx, alerts.SettingsFromConfig(cfg))
	if err != nil {
		logger.Warn("alert settings seed failed", "error", err, "clinic_id", cfg.AlertClinicID)
		return
	}
	if seeded {
		logger.Info("alert settings seeded from environment", "clinic_id", cfg.AlertClinicID)
	}
}

// buildEmailSender picks the configured email driver, falling back to the
// logging stub so alert dispatch never dereferences a nil sender.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	driver := cfg.NotificationSenderDriver

	if driver == "sendgrid" || (driver == "auto" && cfg.SendGridAPIKey != "") {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}

	if driver == "ses" || (driver == "auto" && cfg.SESFromEmail != "") {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for SES", "error", err)
		} else if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	}

	return notify.NewStubEmailSender(logger)
}

// setupDocJobs wires the render-job store, queue, and HTTP handler. The
// returned worker is non-nil only for the in-process memory queue; SQS
// deployments run cmd/insight-worker instead.
func setupDocJobs(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger, jm *metrics.JobMetrics) (*docjobs.Handler, *docjobs.Worker, error) {
	var store docjobs.JobStore
	switch cfg.DocumentJobStore {
	case "dynamo":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store = docjobs.NewDynamoJobStore(dynamodb.NewFromConfig(awsCfg), cfg.DocumentJobsTable, logger)
	default:
		if pool != nil {
			store = docjobs.NewPGJobStore(pool)
		}
	}
	if store == nil {
		logger.Warn("document job store unavailable, job API disabled")
		return nil, nil, nil
	}

	renderer := docjobs.NewRenderer()

	if cfg.UseMemoryQueue {
		queue := docjobs.NewMemoryQueue(0)
		worker := docjobs.NewWorker(store, queue, renderer, logger,
			docjobs.WithWorkerCount(cfg.WorkerCount),
			docjobs.WithReceiveWaitSeconds(cfg.WorkerPollWaitSecs),
			docjobs.WithJobMetrics(jm),
		)
		return docjobs.NewHandler(store, queue, renderer, logger), worker, nil
	}

	if cfg.DocumentJobQueueURL == "" {
		logger.Warn("DOCUMENT_JOB_QUEUE_URL not set, job API disabled")
		return nil, nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	queue := docjobs.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.DocumentJobQueueURL)
	return docjobs.NewHandler(store, queue, renderer, logger), nil, nil
}

// waitForWorker blocks until the inline worker drains or the shutdown window
// lapses.
func waitForWorker(w *docjobs.Worker, window time.Duration, logger *logging.Logger) {
	if window <= 0 {
		window = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("document worker drained")
	case <-time.After(window):
		logger.Error("document worker shutdown timed out", "window", window)
	}
}
