package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/insight-engine/internal/observability/metrics"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

var nowFunc = time.Now

// RiskEvent describes a scored appointment that may warrant an alert.
type RiskEvent struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id,omitempty"`
	Score         float64   `json:"risk_score"`
	Level         string    `json:"risk_level"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Suppression reasons recorded on a Decision.
const (
	ReasonFrequencyDisabled = "frequency_disabled"
	ReasonQuietHours        = "quiet_hours"
	ReasonWeekend           = "weekend"
	ReasonNoRecipients      = "no_recipients"
	ReasonBelowThreshold    = "below_threshold"
	ReasonFrequencyWindow   = "frequency_window"
	ReasonRateLimited       = "rate_limited"
)

// Suppression names a withheld channel and why it was withheld.
type Suppression struct {
	Channel Channel `json:"channel"`
	Reason  string  `json:"reason"`
}

// Decision lists the channels an alert should go out on, the suppressions
// applied, and the settings that produced them.
type Decision struct {
	ClinicID   string        `json:"clinic_id"`
	Channels   []Channel     `json:"channels"`
	Suppressed []Suppression `json:"suppressed,omitempty"`

	Settings *Settings `json:"-"`
}

// Allows reports whether the decision selected a channel.
func (d Decision) Allows(ch Channel) bool {
	for _, c := range d.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Evaluator applies a clinic's alert settings to a risk event: per-channel
// thresholds, quiet hours, weekend preference, frequency coalescing, and
// rate limits. Gate order matters: window markers and rate limit counters
// are only consumed by events that already cleared every static gate.
type Evaluator struct {
	store   *SettingsStore
	redis   *redis.Client
	limiter *RateLimiter
	logger  *logging.Logger
	metrics *metrics.AlertMetrics
}

// NewEvaluator creates an evaluator. The Redis client backs hourly/daily
// coalescing markers; limiter may be nil to disable rate limiting.
func NewEvaluator(store *SettingsStore, client *redis.Client, limiter *RateLimiter, logger *logging.Logger) *Evaluator {
	if store == nil {
		panic("alerts: settings store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{store: store, redis: client, limiter: limiter, logger: logger}
}

// WithMetrics attaches alert metrics.
func (e *Evaluator) WithMetrics(m *metrics.AlertMetrics) *Evaluator {
	e.metrics = m
	return e
}

// Evaluate decides which channels an alert for ev should be delivered on.
// Settings lookup failures fall back to defaults rather than dropping the
// alert.
func (e *Evaluator) Evaluate(ctx context.Context, clinicID string, ev RiskEvent) (Decision, error) {
	if clinicID == "" {
		return Decision{}, fmt.Errorf("alerts: clinic id required")
	}

	settings, err := e.store.Get(ctx, clinicID)
	if err != nil {
		e.logger.Warn("alert settings unavailable, using defaults", "error", err, "clinic_id", clinicID)
		settings = DefaultSettings(clinicID)
	}

	decision := Decision{ClinicID: clinicID, Settings: settings}
	channels := []Channel{ChannelEmail, ChannelSMS}

	if settings.Frequency == FrequencyDisabled {
		for _, ch := range channels {
			decision.suppress(ch, ReasonFrequencyDisabled, e.metrics)
		}
		return decision, nil
	}

	now := nowFunc()

	quiet, err := ParseQuietHours(settings.QuietHoursStart, settings.QuietHoursEnd, settings.Timezone)
	if err != nil {
		e.logger.Warn("ignoring invalid quiet hours", "error", err, "clinic_id", clinicID)
	}
	if quiet.Suppress(now) {
		for _, ch := range channels {
			decision.suppress(ch, ReasonQuietHours, e.metrics)
		}
		return decision, nil
	}

	if !settings.WeekendNotifications && isWeekend(now, settings.Timezone) {
		for _, ch := range channels {
			decision.suppress(ch, ReasonWeekend, e.metrics)
		}
		return decision, nil
	}

	for _, ch := range channels {
		if len(settings.Recipients(ch)) == 0 {
			decision.suppress(ch, ReasonNoRecipients, e.metrics)
			continue
		}
		if ev.Score*100 < float64(settings.Threshold(ch)) {
			decision.suppress(ch, ReasonBelowThreshold, e.metrics)
			continue
		}
		if !e.windowOpen(ctx, clinicID, ch, settings.Frequency) {
			decision.suppress(ch, ReasonFrequencyWindow, e.metrics)
			continue
		}
		if e.limiter != nil {
			if res := e.limiter.Allow(ctx, ch, clinicID); !res.Allowed {
				decision.suppress(ch, ReasonRateLimited, e.metrics)
				continue
			}
		}
		decision.Channels = append(decision.Channels, ch)
	}

	return decision, nil
}

func (d *Decision) suppress(ch Channel, reason string, m *metrics.AlertMetrics) {
	d.Suppressed = append(d.Suppressed, Suppression{Channel: ch, Reason: reason})
	m.ObserveSuppressed(reason)
}

// windowOpen claims the coalescing marker for hourly/daily frequencies. The
// first alert in a window claims the marker and goes out; the rest of the
// window is suppressed. Immediate frequency always passes, and so do Redis
// failures.
func (e *Evaluator) windowOpen(ctx context.Context, clinicID string, ch Channel, freq Frequency) bool {
	var ttl time.Duration
	switch freq {
	case FrequencyHourly:
		ttl = time.Hour
	case FrequencyDaily:
		ttl = 24 * time.Hour
	default:
		return true
	}
	if e.redis == nil {
		return true
	}

	key := fmt.Sprintf("alerts:window:%s:%s:%s", freq, ch, clinicID)
	claimed, err := e.redis.SetNX(ctx, key, nowFunc().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		e.logger.Error("alert frequency window check failed, allowing send",
			"error", err, "clinic_id", clinicID, "channel", ch)
		return true
	}
	return claimed
}

func isWeekend(t time.Time, tz string) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	switch t.In(loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}
