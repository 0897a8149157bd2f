// Package risk scores scheduled appointments for no-show likelihood.
//
// The predictor is a deterministic additive rule engine: it starts from a
// base score, adds fixed contributions for known attendance signals, and
// clamps the result. It stands in for a trained model behind the Scorer
// interface, so a real model-serving backend can replace it without
// changing callers.
package risk

import (
	"context"
	"fmt"
	"time"
)

// Scoring constants. Contributions are additive on top of baseScore and the
// final score never exceeds maxScore.
const (
	baseScore          = 0.3
	perNoShowImpact    = 0.15
	noShowHistoryCap   = 0.4
	offPeakImpact      = 0.1
	peakDayImpact      = 0.05
	stalePatientDays   = 180
	stalePatientImpact = 0.1
	badWeatherImpact   = 0.05
	rainThreshold      = 0.5
	maxScore           = 0.95
)

// Classification thresholds, shared with the alert gating path.
const (
	lowBelow    = 0.3
	mediumBelow = 0.6
)

// Level buckets a risk score for display and alert gating.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Weather carries the optional forecast snapshot for the appointment day.
// Precipitation is a probability in [0,1].
type Weather struct {
	Precipitation float64 `json:"precipitation"`
}

// Input is the immutable feature record for one appointment. Callers build
// it once and never mutate it.
type Input struct {
	AppointmentID            string       `json:"appointment_id"`
	PatientID                string       `json:"patient_id"`
	PreviousNoShows          int          `json:"previous_no_shows"`
	AppointmentHour          int          `json:"appointment_hour"`
	AppointmentDayOfWeek     time.Weekday `json:"appointment_day_of_week"`
	DaysSinceLastAppointment int          `json:"days_since_last_appointment"`
	Weather                  *Weather     `json:"weather_conditions,omitempty"`
}

// Factor is one contribution to the final score. Factors are reported in
// the order the rules ran, not sorted by impact.
type Factor struct {
	Name        string  `json:"factor"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description"`
}

// Intervention is a recommended action to reduce no-show likelihood.
type Intervention struct {
	Type            string  `json:"type"`
	Description     string  `json:"description"`
	Priority        int     `json:"priority"`
	EstimatedImpact float64 `json:"estimated_impact"`
}

// Prediction is the scored result for one appointment.
type Prediction struct {
	AppointmentID string         `json:"appointment_id"`
	Score         float64        `json:"risk_score"`
	Level         Level          `json:"risk_level"`
	Factors       []Factor       `json:"factors"`
	Interventions []Intervention `json:"interventions"`
	Explanation   string         `json:"explanation"`
}

// InputError reports a feature value outside its documented range. Inputs
// are rejected rather than clamped; score clamping applies to outputs only.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("risk: invalid input: %s %s", e.Field, e.Reason)
}

// Scorer produces a no-show prediction for one appointment.
type Scorer interface {
	Predict(ctx context.Context, in Input) (Prediction, error)
}

// Predictor is the rule-based Scorer.
type Predictor struct{}

// NewPredictor returns the rule-based no-show predictor.
func NewPredictor() *Predictor {
	return &Predictor{}
}

var _ Scorer = (*Predictor)(nil)

// Predict scores one appointment. Pure: no I/O, no randomness; the caller
// owns caching and audit logging.
func (p *Predictor) Predict(_ context.Context, in Input) (Prediction, error) {
	if err := validate(in); err != nil {
		return Prediction{}, err
	}

	score := baseScore
	factors := make([]Factor, 0, 4)

	if impact := min(float64(in.PreviousNoShows)*perNoShowImpact, noShowHistoryCap); impact > 0 {
		score += impact
		factors = append(factors, Factor{
			Name:        "previous_no_shows",
			Impact:      impact,
			Description: fmt.Sprintf("Patient has %d prior no-show(s)", in.PreviousNoShows),
		})
	}

	if in.AppointmentHour < 9 || in.AppointmentHour > 16 {
		score += offPeakImpact
		factors = append(factors, Factor{
			Name:        "appointment_time",
			Impact:      offPeakImpact,
			Description: fmt.Sprintf("Off-peak appointment hour (%d:00)", in.AppointmentHour),
		})
	}

	if in.AppointmentDayOfWeek == time.Monday || in.AppointmentDayOfWeek == time.Friday {
		score += peakDayImpact
		factors = append(factors, Factor{
			Name:        "day_of_week",
			Impact:      peakDayImpact,
			Description: fmt.Sprintf("%s appointments see elevated no-show rates", in.AppointmentDayOfWeek),
		})
	}

	if in.DaysSinceLastAppointment > stalePatientDays {
		score += stalePatientImpact
		factors = append(factors, Factor{
			Name:        "patient_recency",
			Impact:      stalePatientImpact,
			Description: fmt.Sprintf("%d days since last appointment", in.DaysSinceLastAppointment),
		})
	}

	if in.Weather != nil && in.Weather.Precipitation > rainThreshold {
		score += badWeatherImpact
		factors = append(factors, Factor{
			Name:        "weather",
			Impact:      badWeatherImpact,
			Description: fmt.Sprintf("Precipitation forecast %.0f%%", in.Weather.Precipitation*100),
		})
	}

	if score > maxScore {
		score = maxScore
	}

	level := Classify(score)

	return Prediction{
		AppointmentID: in.AppointmentID,
		Score:         score,
		Level:         level,
		Factors:       factors,
		Interventions: interventionsFor(score),
		Explanation:   explain(score, level, factors),
	}, nil
}

// Classify buckets a score. Thresholds are shared by the risk and alert
// paths: <0.3 low, <0.6 medium, else high.
func Classify(score float64) Level {
	switch {
	case score < lowBelow:
		return LevelLow
	case score < mediumBelow:
		return LevelMedium
	default:
		return LevelHigh
	}
}

func interventionsFor(score float64) []Intervention {
	var out []Intervention
	if score > 0.5 {
		out = append(out, Intervention{
			Type:            "reminder",
			Description:     "Send an additional reminder 24 hours before the appointment",
			Priority:        1,
			EstimatedImpact: 0.15,
		})
	}
	if score > 0.7 {
		out = append(out, Intervention{
			Type:            "confirmation",
			Description:     "Request an explicit confirmation call or text",
			Priority:        2,
			EstimatedImpact: 0.25,
		})
	}
	return out
}

func explain(score float64, level Level, factors []Factor) string {
	if len(factors) == 0 {
		return fmt.Sprintf("Baseline no-show risk %.2f (%s); no elevated factors", score, level)
	}
	return fmt.Sprintf("No-show risk %.2f (%s) driven by %d factor(s)", score, level, len(factors))
}

func validate(in Input) error {
	if in.PreviousNoShows < 0 {
		return &InputError{Field: "previous_no_shows", Reason: "must not be negative"}
	}
	if in.AppointmentHour < 0 || in.AppointmentHour > 23 {
		return &InputError{Field: "appointment_hour", Reason: "must be in 0-23"}
	}
	if in.AppointmentDayOfWeek < time.Sunday || in.AppointmentDayOfWeek > time.Saturday {
		return &InputError{Field: "appointment_day_of_week", Reason: "must be in 0-6"}
	}
	if in.DaysSinceLastAppointment < 0 {
		return &InputError{Field: "days_since_last_appointment", Reason: "must not be negative"}
	}
	return nil
}
