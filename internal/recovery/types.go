// Package recovery classifies document-processing exceptions and routes each
// one to an automatic, specialized, or human resolution path. Every routed
// exception ends in a terminal state; when no strategy applies the router
// still files a manual review task rather than dropping the exception.
package recovery

import (
	"encoding/json"
	"time"
)

// ExceptionType classifies what went wrong during document processing.
type ExceptionType string

const (
	ExceptionLowConfidenceOCR  ExceptionType = "low_confidence_ocr"
	ExceptionValidationFailure ExceptionType = "validation_failure"
	ExceptionComplexDocument   ExceptionType = "complex_document"
	ExceptionSystemError       ExceptionType = "system_error"
)

// State is a routing outcome. Received is the initial state; every other
// state is terminal and is written back to the originating intake task.
type State string

const (
	StateReceived              State = "received"
	StateAutomaticRecovery     State = "automatic_recovery"
	StateManualReview          State = "manual_review"
	StateSpecializedProcessing State = "specialized_processing"
	StateSpecializedReview     State = "specialized_review"
	StateErrorRecovery         State = "error_recovery"
	StateTechnicalReview       State = "technical_review"
	StateFallback              State = "fallback"
)

// Priority orders the manual review queue.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Severity grades a single validation error.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ErrorKind separates the two recoverable validation classes from the rest.
type ErrorKind string

const (
	KindFormat       ErrorKind = "format"
	KindMissingField ErrorKind = "missing_field"
	KindOther        ErrorKind = "other"
)

// ValidationError is one failed check from intake validation.
type ValidationError struct {
	Field    string    `json:"field"`
	Kind     ErrorKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Value    string    `json:"value,omitempty"`
}

// Exception is the routing input. Only the fields relevant to its Type need
// to be populated; Fields carries already-extracted document values used by
// missing-field inference.
type Exception struct {
	TaskID     string            `json:"task_id"`
	DocumentID string            `json:"document_id"`
	Type       ExceptionType     `json:"exception_type"`
	Confidence float64           `json:"confidence,omitempty"`
	Threshold  float64           `json:"threshold,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Indicators []string          `json:"indicators,omitempty"`
	Message    string            `json:"message,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Resolution is the routing outcome handed back to the caller and reflected
// into the intake task and, for review states, the manual review queue.
type Resolution struct {
	TaskID          string            `json:"task_id"`
	State           State             `json:"state"`
	Strategy        string            `json:"strategy,omitempty"`
	Attempted       []string          `json:"attempted_strategies,omitempty"`
	Confidence      float64           `json:"confidence,omitempty"`
	Corrections     map[string]string `json:"corrections,omitempty"`
	ComplexityScore float64           `json:"complexity_score,omitempty"`
	Priority        Priority          `json:"priority,omitempty"`
	ReviewType      string            `json:"review_type,omitempty"`
	Note            string            `json:"note,omitempty"`
	ResolvedAt      time.Time         `json:"resolved_at"`
}

// ReviewTask is one row queued for a human reviewer.
type ReviewTask struct {
	ID                  string          `json:"id"`
	IntakeTaskID        string          `json:"intake_task_id"`
	ReviewType          string          `json:"review_type"`
	Priority            Priority        `json:"priority"`
	AttemptedStrategies []string        `json:"attempted_strategies"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	ResolvedAt          *time.Time      `json:"resolved_at,omitempty"`
}

const (
	ReviewStatusPending  = "pending"
	ReviewStatusClaimed  = "claimed"
	ReviewStatusResolved = "resolved"
)
