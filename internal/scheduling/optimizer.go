// Package scheduling assigns appointment requests to time slots and derives
// utilization and revenue estimates for the day.
package scheduling

import (
	"context"
	"fmt"
	"math"
	"time"
)

const maxUtilization = 0.95

// Config holds the clinic capacity and revenue assumptions. These were once
// hard-coded in the heuristic; they are injected so a different clinic size
// is a configuration change, not a code change.
type Config struct {
	DailySlotCapacity      int
	RevenuePerAppointment  float64
	NoShowRate             float64
	ConflictResolutionRate float64
}

// DefaultConfig returns the standard single-provider clinic assumptions.
func DefaultConfig() Config {
	return Config{
		DailySlotCapacity:      16,
		RevenuePerAppointment:  150,
		NoShowRate:             0.15,
		ConflictResolutionRate: 0.1,
	}
}

// Request is one appointment to place.
type Request struct {
	RequestID      string      `json:"request_id"`
	PatientID      string      `json:"patient_id"`
	ProviderID     string      `json:"provider_id"`
	DurationMins   int         `json:"duration_mins"`
	PreferredSlots []time.Time `json:"preferred_slots"`
}

// DateRange bounds the scheduling window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Constraints carries the clinic's scheduling rules. The greedy assigner
// does not yet honor them; they are retained so the input shape matches
// what a real constraint solver would need.
type Constraints struct {
	WorkingHoursStart  string      `json:"working_hours_start"`
	WorkingHoursEnd    string      `json:"working_hours_end"`
	BlockedTimes       []time.Time `json:"blocked_times"`
	BreakTimes         []time.Time `json:"break_times"`
	BufferMins         int         `json:"buffer_mins"`
	MaxConsecutiveAppt int         `json:"max_consecutive_appointments"`
}

// Input is the immutable request batch for one optimization run.
type Input struct {
	ProviderID  string      `json:"provider_id"`
	Requests    []Request   `json:"requests"`
	DateRange   DateRange   `json:"date_range"`
	Constraints Constraints `json:"constraints"`
}

// Assignment places one request at a concrete slot.
type Assignment struct {
	RequestID string    `json:"request_id"`
	PatientID string    `json:"patient_id"`
	SlotStart time.Time `json:"slot_start"`
}

// Optimization is the produced schedule with derived estimates.
type Optimization struct {
	Assignments       []Assignment `json:"assignments"`
	UtilizationRate   float64      `json:"utilization_rate"`
	ExpectedNoShows   float64      `json:"expected_no_shows"`
	RevenueEstimate   float64      `json:"revenue_estimate"`
	ConflictsResolved int          `json:"conflicts_resolved"`
}

// InputError reports a request batch the assigner cannot place.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("scheduling: invalid input: %s %s", e.Field, e.Reason)
}

// Optimizer produces a schedule for a request batch.
type Optimizer interface {
	Optimize(ctx context.Context, in Input) (Optimization, error)
}

// GreedyOptimizer is a placeholder assigner: first preferred slot wins,
// otherwise requests are laid out hourly from the window start. It does not
// detect slot collisions or honor Constraints; replacing it means solving a
// real packing problem over the time axis.
type GreedyOptimizer struct {
	cfg Config
}

// NewOptimizer builds a greedy optimizer. Zero-valued config fields fall
// back to DefaultConfig.
func NewOptimizer(cfg Config) *GreedyOptimizer {
	def := DefaultConfig()
	if cfg.DailySlotCapacity <= 0 {
		cfg.DailySlotCapacity = def.DailySlotCapacity
	}
	if cfg.RevenuePerAppointment <= 0 {
		cfg.RevenuePerAppointment = def.RevenuePerAppointment
	}
	if cfg.NoShowRate <= 0 {
		cfg.NoShowRate = def.NoShowRate
	}
	if cfg.ConflictResolutionRate <= 0 {
		cfg.ConflictResolutionRate = def.ConflictResolutionRate
	}
	return &GreedyOptimizer{cfg: cfg}
}

var _ Optimizer = (*GreedyOptimizer)(nil)

// Optimize places each request in input order. Pure and deterministic.
func (g *GreedyOptimizer) Optimize(_ context.Context, in Input) (Optimization, error) {
	if in.DateRange.Start.IsZero() {
		return Optimization{}, &InputError{Field: "date_range.start", Reason: "must be set"}
	}

	assignments := make([]Assignment, 0, len(in.Requests))
	for i, req := range in.Requests {
		slot := in.DateRange.Start.Add(time.Duration(i) * time.Hour)
		if len(req.PreferredSlots) > 0 {
			slot = req.PreferredSlots[0]
		}
		assignments = append(assignments, Assignment{
			RequestID: req.RequestID,
			PatientID: req.PatientID,
			SlotStart: slot,
		})
	}

	assigned := float64(len(assignments))
	utilization := assigned / float64(g.cfg.DailySlotCapacity)
	if utilization > maxUtilization {
		utilization = maxUtilization
	}

	return Optimization{
		Assignments:       assignments,
		UtilizationRate:   utilization,
		ExpectedNoShows:   assigned * g.cfg.NoShowRate,
		RevenueEstimate:   assigned * g.cfg.RevenuePerAppointment,
		ConflictsResolved: int(math.Floor(float64(len(in.Requests)) * g.cfg.ConflictResolutionRate)),
	}, nil
}
