// Package priorauth recommends a submission path for prior-authorization
// requests based on procedure urgency and the patient's authorization
// history. Like the no-show predictor, it is a deterministic rule engine
// behind a small interface.
package priorauth

import (
	"context"
	"fmt"
)

const (
	baseProbability  = 0.7
	emergentBoost    = 0.2
	routinePenalty   = 0.1
	approvalBoost    = 0.1
	denialPenalty    = 0.15
	minProbability   = 0.1
	maxProbability   = 0.95
	alternativeBoost = 0.2
)

// Approach thresholds. Standard submission applies from 0.7 up (a score of
// exactly 0.70 is observed to route standard); peer-to-peer covers the
// band above 0.4.
const (
	standardMin     = 0.7
	peerToPeerAbove = 0.4
)

// Urgency classifies the procedure request.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

// Approach is the recommended submission workflow.
type Approach string

const (
	ApproachStandard    Approach = "standard"
	ApproachPeerToPeer  Approach = "peer_to_peer"
	ApproachAlternative Approach = "alternative"
)

// Timeline estimates in business days.
const (
	standardTimelineDays = 3
	extendedTimelineDays = 7
)

// History summarizes the patient's prior authorization outcomes.
type History struct {
	ApprovedCount int `json:"approved_count"`
	DeniedCount   int `json:"denied_count"`
}

// Input is the immutable feature record for one authorization request.
type Input struct {
	PatientID     string  `json:"patient_id"`
	ProcedureCode string  `json:"procedure_code"`
	Urgency       Urgency `json:"urgency"`
	History       History `json:"history"`
}

// Alternative is a suggested substitute procedure with its own estimated
// approval probability.
type Alternative struct {
	ProcedureCode       string  `json:"procedure_code"`
	Description         string  `json:"description"`
	ApprovalProbability float64 `json:"approval_probability"`
}

// Recommendation is the produced guidance for one request.
type Recommendation struct {
	ApprovalProbability   float64       `json:"approval_probability"`
	Approach              Approach      `json:"recommended_approach"`
	TimelineDays          int           `json:"timeline_days"`
	RequiredDocumentation []string      `json:"required_documentation"`
	Alternatives          []Alternative `json:"alternatives"`
	Explanation           string        `json:"explanation"`
}

// InputError reports a feature value outside its documented range.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("priorauth: invalid input: %s %s", e.Field, e.Reason)
}

// Recommender produces authorization guidance for one request.
type Recommender interface {
	Recommend(ctx context.Context, in Input) (Recommendation, error)
}

// RuleRecommender is the rule-based Recommender.
type RuleRecommender struct{}

// NewRecommender returns the rule-based authorization recommender.
func NewRecommender() *RuleRecommender {
	return &RuleRecommender{}
}

var _ Recommender = (*RuleRecommender)(nil)

// Recommend evaluates one request. Pure: no I/O, no randomness.
func (r *RuleRecommender) Recommend(_ context.Context, in Input) (Recommendation, error) {
	if err := validate(in); err != nil {
		return Recommendation{}, err
	}

	probability := baseProbability
	switch in.Urgency {
	case UrgencyEmergent:
		probability += emergentBoost
	case UrgencyRoutine:
		probability -= routinePenalty
	}

	if in.History.ApprovedCount > in.History.DeniedCount {
		probability += approvalBoost
	} else if in.History.DeniedCount > in.History.ApprovedCount {
		probability -= denialPenalty
	}

	probability = clamp(probability)

	approach := approachFor(probability)
	timeline := extendedTimelineDays
	if approach == ApproachStandard {
		timeline = standardTimelineDays
	}

	return Recommendation{
		ApprovalProbability:   probability,
		Approach:              approach,
		TimelineDays:          timeline,
		RequiredDocumentation: requiredDocumentation(in.Urgency),
		Alternatives: []Alternative{{
			ProcedureCode:       in.ProcedureCode + "-ALT",
			Description:         "Conservative treatment alternative with simpler approval path",
			ApprovalProbability: min(maxProbability, probability+alternativeBoost),
		}},
		Explanation: fmt.Sprintf("Approval probability %.2f; recommend %s submission (%d business days)", probability, approach, timeline),
	}, nil
}

func approachFor(p float64) Approach {
	switch {
	case p >= standardMin:
		return ApproachStandard
	case p > peerToPeerAbove:
		return ApproachPeerToPeer
	default:
		return ApproachAlternative
	}
}

func requiredDocumentation(u Urgency) []string {
	docs := []string{
		"Clinical notes from referring provider",
		"Relevant diagnostic results",
		"Treatment history",
		"Letter of medical necessity",
	}
	if u == UrgencyEmergent {
		docs = append(docs, "Emergency documentation")
	}
	return docs
}

func clamp(p float64) float64 {
	if p < minProbability {
		return minProbability
	}
	if p > maxProbability {
		return maxProbability
	}
	return p
}

func validate(in Input) error {
	switch in.Urgency {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergent:
	default:
		return &InputError{Field: "urgency", Reason: "must be routine, urgent, or emergent"}
	}
	if in.History.ApprovedCount < 0 {
		return &InputError{Field: "history.approved_count", Reason: "must not be negative"}
	}
	if in.History.DeniedCount < 0 {
		return &InputError{Field: "history.denied_count", Reason: "must not be negative"}
	}
	return nil
}
