package docjobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/clinicflow/insight-engine/internal/observability/metrics"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	metrics          *metrics.JobMetrics
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the queue long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobMetrics wires Prometheus counters for job outcomes.
func WithJobMetrics(m *metrics.JobMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// Worker consumes document jobs from the queue, renders them, and records
// the outcome in the job store.
type Worker struct {
	store    JobStore
	queue    Queue
	renderer *Renderer
	logger   *logging.Logger
	metrics  *metrics.JobMetrics

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker constructs a queue consumer around the provided renderer.
func NewWorker(store JobStore, queue Queue, renderer *Renderer, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if store == nil {
		panic("docjobs: job store cannot be nil")
	}
	if queue == nil {
		panic("docjobs: queue cannot be nil")
	}
	if renderer == nil {
		panic("docjobs: renderer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		store:    store,
		queue:    queue,
		renderer: renderer,
		logger:   logger,
		metrics:  cfg.metrics,
		cfg:      cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("document worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("document worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive document jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		w.reportQueueDepth()

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	var payload jobPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode document job", "error", err, "msg_id", msg.ID)
		w.observeJob("invalid")
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	started := time.Now()
	if err := w.store.MarkRunning(ctx, payload.ID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			w.logger.Warn("document job record missing, dropping message", "job_id", payload.ID)
			w.deleteMessage(context.Background(), msg.ReceiptHandle)
			return
		}
		// Leave the message for redelivery once the store recovers.
		w.logger.Error("failed to mark document job running", "error", err, "job_id", payload.ID)
		return
	}

	document, renderErr := w.renderer.Render(payload.TemplateName, payload.Fields)
	if renderErr != nil {
		w.logger.Error("document job failed", "error", renderErr, "job_id", payload.ID, "template", payload.TemplateName)
		if storeErr := w.store.MarkFailed(ctx, payload.ID, renderErr.Error()); storeErr != nil && !errors.Is(storeErr, ErrJobNotFound) {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			return
		}
		w.observeJob("failed")
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if err := w.store.MarkCompleted(ctx, payload.ID, document); err != nil {
		if !errors.Is(err, ErrJobNotFound) {
			w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
			return
		}
		w.logger.Warn("document job record expired before completion", "job_id", payload.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.observeJob("completed")
	if w.metrics != nil {
		w.metrics.ObserveProcessing(time.Since(started).Seconds())
	}
	w.logger.Info("document job completed",
		"job_id", payload.ID,
		"template", payload.TemplateName,
		"bytes", len(document),
	)
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete document job message", "error", err)
	}
}

func (w *Worker) observeJob(status string) {
	if w.metrics != nil {
		w.metrics.ObserveJob(status)
	}
}

func (w *Worker) reportQueueDepth() {
	if w.metrics == nil {
		return
	}
	if sized, ok := w.queue.(interface{ Len() int }); ok {
		w.metrics.SetQueueDepth(sized.Len())
	}
}
