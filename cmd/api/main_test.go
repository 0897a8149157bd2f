package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/clinicflow/insight-engine/internal/config"
	"github.com/clinicflow/insight-engine/internal/notify"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New("error")
}

func TestSetupMetricsExposesPredictionFamilies(t *testing.T) {
	reg, handler, m := setupMetrics()
	if reg == nil || handler == nil || m == nil {
		t.Fatal("expected registry, handler, and instruments")
	}

	m.prediction.ObserveComputeDuration("no_show", 0.01)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "clinicflow_prediction_compute_latency_seconds") {
		t.Fatalf("expected compute latency family in exposition, got:\n%s", body)
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	if pool := connectPostgresPool(context.Background(), "  ", testLogger()); pool != nil {
		t.Fatal("expected nil pool for blank DATABASE_URL")
	}
}

func TestConnectRedisEmptyAddrReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{}
	if client := connectRedis(context.Background(), cfg, testLogger()); client != nil {
		t.Fatal("expected nil client for blank REDIS_ADDR")
	}
}

func TestConnectRedisPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &appconfig.Config{RedisAddr: mr.Addr()}
	client := connectRedis(context.Background(), cfg, testLogger())
	if client == nil {
		t.Fatal("expected client for configured address")
	}
	defer client.Close()

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	cfg := &appconfig.Config{NotificationSenderDriver: "auto"}

	sender := buildEmailSender(context.Background(), cfg, testLogger())
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender without provider config, got %T", sender)
	}
}

func TestBuildEmailSenderPrefersSendGrid(t *testing.T) {
	cfg := &appconfig.Config{
		NotificationSenderDriver: "auto",
		SendGridAPIKey:           "SG.test-key",
		SendGridFromEmail:        "alerts@clinicflow.io",
		SendGridFromName:         "ClinicFlow",
	}

	sender := buildEmailSender(context.Background(), cfg, testLogger())
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender, got %T", sender)
	}
}

func TestSetupDocJobsWithoutStoreDisabled(t *testing.T) {
	cfg := &appconfig.Config{DocumentJobStore: "postgres"}
	_, _, m := setupMetrics()

	handler, worker, err := setupDocJobs(context.Background(), cfg, nil, testLogger(), m.jobs)
	if err != nil {
		t.Fatalf("setupDocJobs: %v", err)
	}
	if handler != nil || worker != nil {
		t.Fatal("expected disabled pipeline without a backing store")
	}
}

func TestSetupDocJobsMemoryQueueSpawnsInlineWorker(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	cfg := &appconfig.Config{
		DocumentJobStore:   "dynamo",
		DocumentJobsTable:  "document_jobs_test",
		UseMemoryQueue:     true,
		WorkerCount:        1,
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
	}
	_, _, m := setupMetrics()

	handler, worker, err := setupDocJobs(context.Background(), cfg, nil, testLogger(), m.jobs)
	if err != nil {
		t.Fatalf("setupDocJobs: %v", err)
	}
	if handler == nil {
		t.Fatal("expected handler for memory queue pipeline")
	}
	if worker == nil {
		t.Fatal("expected inline worker for memory queue pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	cancel()

	start := time.Now()
	waitForWorker(worker, 5*time.Second, testLogger())
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Fatalf("worker did not drain before the shutdown window, took %v", elapsed)
	}
}

func TestWaitForWorkerDefaultsWindow(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	cfg := &appconfig.Config{
		DocumentJobStore:   "dynamo",
		DocumentJobsTable:  "document_jobs_test",
		UseMemoryQueue:     true,
		WorkerCount:        1,
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
	}
	_, _, m := setupMetrics()

	_, worker, err := setupDocJobs(context.Background(), cfg, nil, testLogger(), m.jobs)
	if err != nil {
		t.Fatalf("setupDocJobs: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	cancel()

	waitForWorker(worker, 0, testLogger())
}
