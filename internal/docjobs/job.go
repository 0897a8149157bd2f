// Package docjobs runs batch document generation: render requests are
// enqueued, picked up by a worker pool, rendered from stored templates, and
// polled for status by the UI.
package docjobs

import (
	"context"
	"errors"
	"time"
)

const jobTTL = 24 * time.Hour

// JobStatus is the lifecycle state of a document job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("docjobs: job not found")

// Job captures the persisted state of one document render request.
type Job struct {
	ID           string            `dynamodbav:"job_id" json:"job_id"`
	Status       JobStatus         `dynamodbav:"status" json:"status"`
	TemplateName string            `dynamodbav:"template_name" json:"template_name"`
	PatientID    string            `dynamodbav:"patient_id,omitempty" json:"patient_id,omitempty"`
	Fields       map[string]string `dynamodbav:"fields,omitempty" json:"fields,omitempty"`
	Document     string            `dynamodbav:"document,omitempty" json:"document,omitempty"`
	ErrorMessage string            `dynamodbav:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    string            `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt    string            `dynamodbav:"updated_at" json:"updated_at"`
	ExpiresAt    int64             `dynamodbav:"expires_at,omitempty" json:"-"`
}

// JobStore persists document jobs through their lifecycle.
type JobStore interface {
	PutPending(ctx context.Context, job *Job) error
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID, document string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	Get(ctx context.Context, jobID string) (*Job, error)
}
