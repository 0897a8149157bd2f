package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/clinicflow/insight-engine/internal/observability/metrics"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

const defaultConfidenceThreshold = 0.9

var nowFunc = time.Now

// Patterns a system error message may match to be considered transient.
var recoverablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)network|timeout`),
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)service unavailable|502|503`),
}

// ReviewCreator files tasks into the manual review queue.
type ReviewCreator interface {
	Create(ctx context.Context, task ReviewTask) error
}

// TaskUpdater writes the terminal routing state back to the intake task.
type TaskUpdater interface {
	UpdateStatus(ctx context.Context, taskID string, status string) error
}

// Router routes exceptions to their resolution path. Route never returns an
// error: anything it cannot handle collapses into the fallback state with a
// high-priority review task, so no exception goes unrecorded.
type Router struct {
	runner    StrategyRunner
	reviews   ReviewCreator
	tasks     TaskUpdater
	logger    *logging.Logger
	metrics   *metrics.RecoveryMetrics
	threshold float64
}

func NewRouter(runner StrategyRunner, reviews ReviewCreator, tasks TaskUpdater, logger *logging.Logger) *Router {
	if runner == nil {
		runner = SimulatedRunner{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{
		runner:    runner,
		reviews:   reviews,
		tasks:     tasks,
		logger:    logger,
		threshold: defaultConfidenceThreshold,
	}
}

func (r *Router) WithMetrics(m *metrics.RecoveryMetrics) *Router {
	r.metrics = m
	return r
}

func (r *Router) WithConfidenceThreshold(threshold float64) *Router {
	if threshold > 0 {
		r.threshold = threshold
	}
	return r
}

// Route resolves one exception.
func (r *Router) Route(ctx context.Context, ex Exception) Resolution {
	res, err := r.route(ctx, ex)
	if err != nil {
		r.logger.Error("exception routing failed, falling back",
			"task_id", ex.TaskID, "exception_type", string(ex.Type), "error", err)
		res = r.fallback(ctx, ex, err)
	}
	r.metrics.ObserveException(string(ex.Type), string(res.State))
	r.updateTask(ctx, ex.TaskID, res.State)
	r.logger.Info("exception routed",
		"task_id", ex.TaskID, "exception_type", string(ex.Type),
		"state", string(res.State), "strategy", res.Strategy)
	return res
}

func (r *Router) route(ctx context.Context, ex Exception) (Resolution, error) {
	switch ex.Type {
	case ExceptionLowConfidenceOCR:
		return r.routeLowConfidence(ctx, ex)
	case ExceptionValidationFailure:
		return r.routeValidationFailure(ctx, ex)
	case ExceptionComplexDocument:
		return r.routeComplexDocument(ctx, ex)
	case ExceptionSystemError:
		return r.routeSystemError(ctx, ex)
	default:
		return Resolution{}, fmt.Errorf("recovery: unknown exception type %q", ex.Type)
	}
}

// routeLowConfidence walks the OCR strategy ladder and stops at the first
// strategy whose resulting confidence clears the threshold.
func (r *Router) routeLowConfidence(ctx context.Context, ex Exception) (Resolution, error) {
	threshold := ex.Threshold
	if threshold <= 0 {
		threshold = r.threshold
	}

	var attempted []string
	for _, strategy := range ocrStrategies {
		outcome, err := r.runner.Run(ctx, strategy, ex)
		if err != nil {
			return Resolution{}, fmt.Errorf("recovery: strategy %s: %w", strategy, err)
		}
		attempted = append(attempted, strategy)
		if outcome.Confidence > threshold {
			r.metrics.ObserveStrategy(strategy, "success")
			return Resolution{
				TaskID:     ex.TaskID,
				State:      StateAutomaticRecovery,
				Strategy:   strategy,
				Attempted:  attempted,
				Confidence: outcome.Confidence,
				ResolvedAt: nowFunc().UTC(),
			}, nil
		}
		r.metrics.ObserveStrategy(strategy, "failure")
	}

	res := Resolution{
		TaskID:     ex.TaskID,
		State:      StateManualReview,
		Attempted:  attempted,
		Confidence: ex.Confidence,
		Priority:   PriorityMedium,
		ReviewType: string(ex.Type),
		ResolvedAt: nowFunc().UTC(),
	}
	if err := r.file(ctx, ex, res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// routeValidationFailure corrects the recoverable error classes; if every
// error was corrected the task recovers automatically, otherwise a reviewer
// gets it at a priority graded by severity counts and confidence.
func (r *Router) routeValidationFailure(ctx context.Context, ex Exception) (Resolution, error) {
	corrections := make(map[string]string)
	var critical, medium int
	allCorrected := len(ex.Errors) > 0

	for _, ve := range ex.Errors {
		switch ve.Severity {
		case SeverityCritical:
			critical++
		case SeverityMedium:
			medium++
		}

		corrected := false
		switch ve.Kind {
		case KindFormat:
			if fixed, ok := correctFormat(ve.Field, ve.Value); ok {
				corrections[ve.Field] = fixed
				corrected = true
			}
		case KindMissingField:
			if inferred, ok := inferMissing(ve.Field, ex.Fields); ok {
				corrections[ve.Field] = inferred
				corrected = true
			}
		}
		if !corrected {
			allCorrected = false
		}
	}

	if allCorrected {
		r.metrics.ObserveStrategy("data_correction", "success")
		return Resolution{
			TaskID:      ex.TaskID,
			State:       StateAutomaticRecovery,
			Strategy:    "data_correction",
			Corrections: corrections,
			Confidence:  ex.Confidence,
			ResolvedAt:  nowFunc().UTC(),
		}, nil
	}
	r.metrics.ObserveStrategy("data_correction", "failure")

	res := Resolution{
		TaskID:      ex.TaskID,
		State:       StateManualReview,
		Corrections: corrections,
		Confidence:  ex.Confidence,
		Priority:    reviewPriority(critical, medium, ex.Confidence),
		ReviewType:  string(ex.Type),
		ResolvedAt:  nowFunc().UTC(),
	}
	if err := r.file(ctx, ex, res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// routeComplexDocument tries one specialized strategy per distinct indicator
// until one succeeds.
func (r *Router) routeComplexDocument(ctx context.Context, ex Exception) (Resolution, error) {
	score := ComplexityScore(ex.Indicators)

	var attempted []string
	seen := make(map[string]bool)
	for _, indicator := range ex.Indicators {
		strategy := strategyForIndicator(indicator)
		if seen[strategy] {
			continue
		}
		seen[strategy] = true

		outcome, err := r.runner.Run(ctx, strategy, ex)
		if err != nil {
			return Resolution{}, fmt.Errorf("recovery: strategy %s: %w", strategy, err)
		}
		attempted = append(attempted, strategy)
		if outcome.Succeeded {
			r.metrics.ObserveStrategy(strategy, "success")
			return Resolution{
				TaskID:          ex.TaskID,
				State:           StateSpecializedProcessing,
				Strategy:        strategy,
				Attempted:       attempted,
				ComplexityScore: score,
				ResolvedAt:      nowFunc().UTC(),
			}, nil
		}
		r.metrics.ObserveStrategy(strategy, "failure")
	}

	priority := PriorityMedium
	if score >= 0.5 {
		priority = PriorityHigh
	}
	res := Resolution{
		TaskID:          ex.TaskID,
		State:           StateSpecializedReview,
		Attempted:       attempted,
		ComplexityScore: score,
		Priority:        priority,
		ReviewType:      string(ex.Type),
		ResolvedAt:      nowFunc().UTC(),
	}
	if err := r.file(ctx, ex, res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// routeSystemError retries errors matching a known transient pattern;
// everything else goes straight to technical review.
func (r *Router) routeSystemError(ctx context.Context, ex Exception) (Resolution, error) {
	if recoverableSystemError(ex.Message) {
		outcome, err := r.runner.Run(ctx, systemRetryStrategy, ex)
		if err != nil {
			return Resolution{}, fmt.Errorf("recovery: strategy %s: %w", systemRetryStrategy, err)
		}
		if outcome.Succeeded {
			r.metrics.ObserveStrategy(systemRetryStrategy, "success")
			return Resolution{
				TaskID:     ex.TaskID,
				State:      StateErrorRecovery,
				Strategy:   systemRetryStrategy,
				Attempted:  []string{systemRetryStrategy},
				ResolvedAt: nowFunc().UTC(),
			}, nil
		}
		r.metrics.ObserveStrategy(systemRetryStrategy, "failure")
	}

	res := Resolution{
		TaskID:     ex.TaskID,
		State:      StateTechnicalReview,
		Priority:   PriorityHigh,
		ReviewType: string(ex.Type),
		Note:       ex.Message,
		ResolvedAt: nowFunc().UTC(),
	}
	if recoverableSystemError(ex.Message) {
		res.Attempted = []string{systemRetryStrategy}
	}
	if err := r.file(ctx, ex, res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// fallback is the last resort. Its review filing is best effort: a filing
// failure is logged but the resolution is still returned, so the caller
// always sees a terminal state.
func (r *Router) fallback(ctx context.Context, ex Exception, cause error) Resolution {
	res := Resolution{
		TaskID:     ex.TaskID,
		State:      StateFallback,
		Priority:   PriorityHigh,
		ReviewType: "router_fallback",
		Note:       cause.Error(),
		ResolvedAt: nowFunc().UTC(),
	}
	if err := r.file(ctx, ex, res); err != nil {
		r.logger.Error("fallback review filing failed", "task_id", ex.TaskID, "error", err)
	}
	return res
}

func (r *Router) file(ctx context.Context, ex Exception, res Resolution) error {
	if r.reviews == nil {
		return nil
	}
	meta, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("recovery: marshal review metadata: %w", err)
	}
	task := ReviewTask{
		IntakeTaskID:        ex.TaskID,
		ReviewType:          res.ReviewType,
		Priority:            res.Priority,
		AttemptedStrategies: res.Attempted,
		Metadata:            meta,
		Status:              ReviewStatusPending,
	}
	if err := r.reviews.Create(ctx, task); err != nil {
		return fmt.Errorf("recovery: file review task: %w", err)
	}
	return nil
}

func (r *Router) updateTask(ctx context.Context, taskID string, state State) {
	if r.tasks == nil || taskID == "" {
		return
	}
	if err := r.tasks.UpdateStatus(ctx, taskID, string(state)); err != nil {
		r.logger.Warn("intake task status update failed",
			"task_id", taskID, "status", string(state), "error", err)
	}
}

// reviewPriority grades a validation review. A zero confidence means the
// caller had none to report, which lands in the most conservative band.
func reviewPriority(criticalCount, mediumCount int, confidence float64) Priority {
	switch {
	case criticalCount >= 3 || confidence < 0.5:
		return PriorityUrgent
	case criticalCount >= 1 || confidence < 0.7:
		return PriorityHigh
	case mediumCount >= 3 || confidence < 0.8:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func recoverableSystemError(message string) bool {
	for _, pattern := range recoverablePatterns {
		if pattern.MatchString(message) {
			return true
		}
	}
	return false
}
