package alerts

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/clinicflow/insight-engine/internal/prediction"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

const (
	defaultPollInterval = 5 * time.Minute
	defaultMinScore     = 0.6
	sweepBatchSize      = 200
)

// RecordSource supplies recent prediction records for the risk sweep.
type RecordSource interface {
	Query(ctx context.Context, filter prediction.Filter) ([]prediction.Record, error)
}

// Poller periodically sweeps recent no-show predictions and dispatches
// alerts for scores above its floor. A single sweep runs at a time; a tick
// that fires while the previous sweep is still running is skipped.
type Poller struct {
	source     RecordSource
	dispatcher *Dispatcher
	clinicID   string
	interval   time.Duration
	minScore   float64
	logger     *logging.Logger

	inFlight  atomic.Bool
	lastSweep time.Time
}

// NewPoller creates a poller over the prediction log.
func NewPoller(source RecordSource, dispatcher *Dispatcher, clinicID string, logger *logging.Logger) *Poller {
	if source == nil {
		panic("alerts: record source required")
	}
	if dispatcher == nil {
		panic("alerts: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		clinicID:   clinicID,
		interval:   defaultPollInterval,
		minScore:   defaultMinScore,
		logger:     logger,
	}
}

// WithInterval sets the sweep interval.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

// WithMinScore sets the score floor below which records skip evaluation.
// Clinics with thresholds under the floor need it lowered to match.
func (p *Poller) WithMinScore(score float64) *Poller {
	if score >= 0 {
		p.minScore = score
	}
	return p
}

// Start runs the sweep loop until ctx is cancelled. Blocks; run in a
// goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("alert poller started",
		"interval", p.interval, "clinic_id", p.clinicID, "min_score", p.minScore)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("alert poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over predictions recorded since the previous sweep.
// Returns the number of alerts evaluated. Concurrent calls are collapsed:
// if a sweep is already running the call returns immediately.
func (p *Poller) Sweep(ctx context.Context) int {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Warn("previous alert sweep still running, skipping tick")
		return 0
	}
	defer p.inFlight.Store(false)

	now := nowFunc()
	since := p.lastSweep
	if since.IsZero() {
		since = now.Add(-p.interval)
	}

	records, err := p.source.Query(ctx, prediction.Filter{
		PredictionType: prediction.RecordNoShow,
		StartTime:      since,
		Limit:          sweepBatchSize,
	})
	if err != nil {
		p.logger.Error("alert sweep query failed", "error", err)
		return 0
	}
	p.lastSweep = now

	evaluated := 0
	delivered := 0
	for _, rec := range records {
		ev, ok := riskEventFromRecord(rec)
		if !ok || ev.Score < p.minScore {
			continue
		}
		evaluated++
		res := p.dispatcher.Dispatch(ctx, p.clinicID, ev)
		delivered += res.Delivered
	}

	if evaluated > 0 {
		p.logger.Info("alert sweep complete",
			"records", len(records), "evaluated", evaluated, "delivered", delivered)
	}
	return evaluated
}

func riskEventFromRecord(rec prediction.Record) (RiskEvent, bool) {
	if rec.AppointmentID == "" || len(rec.Output) == 0 {
		return RiskEvent{}, false
	}

	var out struct {
		Score float64 `json:"risk_score"`
		Level string  `json:"risk_level"`
	}
	if err := json.Unmarshal(rec.Output, &out); err != nil {
		return RiskEvent{}, false
	}

	return RiskEvent{
		AppointmentID: rec.AppointmentID,
		PatientID:     rec.PatientID,
		Score:         out.Score,
		Level:         out.Level,
		ObservedAt:    rec.CreatedAt,
	}, true
}
