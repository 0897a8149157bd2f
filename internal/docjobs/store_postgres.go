package docjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type jobQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGJobStore persists document jobs to PostgreSQL for bootstrap deployments
// without DynamoDB.
type PGJobStore struct {
	db jobQuerier
}

var _ JobStore = (*PGJobStore)(nil)

// NewPGJobStore builds a Postgres-backed JobStore.
func NewPGJobStore(db *pgxpool.Pool) *PGJobStore {
	if db == nil {
		panic("docjobs: pgx pool required")
	}
	return &PGJobStore{db: db}
}

func newPGJobStoreWithExec(db jobQuerier) *PGJobStore {
	if db == nil {
		panic("docjobs: querier required")
	}
	return &PGJobStore{db: db}
}

// PutPending inserts a pending job record.
func (s *PGJobStore) PutPending(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("docjobs: job cannot be nil")
	}

	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	fieldsJSON, err := marshalFields(job.Fields)
	if err != nil {
		return err
	}

	expiresAt := time.Unix(job.ExpiresAt, 0).UTC()
	if _, execErr := s.db.Exec(ctx, `
		INSERT INTO document_jobs (
			job_id, status, template_name, patient_id, fields,
			document, error_message, created_at, updated_at, expires_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, job.ID, job.Status, job.TemplateName, nullable(job.PatientID), fieldsJSON,
		job.Document, job.ErrorMessage, now, now, expiresAt); execErr != nil {
		return fmt.Errorf("docjobs: failed to persist job: %w", execErr)
	}
	return nil
}

// MarkRunning flips a job to the running state.
func (s *PGJobStore) MarkRunning(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("docjobs: jobID required")
	}

	result, err := s.db.Exec(ctx, `
		UPDATE document_jobs
		SET status = $2, updated_at = $3
		WHERE job_id = $1
	`, jobID, JobStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("docjobs: failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkCompleted stores the rendered document and flips the job to completed.
func (s *PGJobStore) MarkCompleted(ctx context.Context, jobID, document string) error {
	if jobID == "" {
		return errors.New("docjobs: jobID required")
	}

	result, err := s.db.Exec(ctx, `
		UPDATE document_jobs
		SET status = $2,
		    document = $3,
		    error_message = '',
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusCompleted, document, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("docjobs: failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed flips the job to failed with an error message.
func (s *PGJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("docjobs: jobID required")
	}

	result, err := s.db.Exec(ctx, `
		UPDATE document_jobs
		SET status = $2,
		    document = '',
		    error_message = $3,
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusFailed, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("docjobs: failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Get loads a job by ID.
func (s *PGJobStore) Get(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, errors.New("docjobs: jobID required")
	}

	var (
		patientID  pgtype.Text
		fieldsJSON []byte
		createdAt  time.Time
		updatedAt  time.Time
		expiresAt  pgtype.Timestamptz
		status     string
		document   string
		errMsg     string
		tmplName   string
	)

	row := s.db.QueryRow(ctx, `
		SELECT job_id, status, template_name, patient_id, fields,
		       document, error_message, created_at, updated_at, expires_at
		FROM document_jobs
		WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&jobID, &status, &tmplName, &patientID, &fieldsJSON,
		&document, &errMsg, &createdAt, &updatedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("docjobs: failed to fetch job: %w", err)
	}

	job := &Job{
		ID:           jobID,
		Status:       JobStatus(status),
		TemplateName: tmplName,
		Document:     document,
		ErrorMessage: errMsg,
		CreatedAt:    createdAt.Format(time.RFC3339Nano),
		UpdatedAt:    updatedAt.Format(time.RFC3339Nano),
	}
	if patientID.Valid {
		job.PatientID = patientID.String
	}
	if expiresAt.Valid {
		job.ExpiresAt = expiresAt.Time.Unix()
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &job.Fields); err != nil {
			return nil, fmt.Errorf("docjobs: failed to decode fields: %w", err)
		}
	}
	return job, nil
}

func marshalFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("docjobs: failed to encode fields: %w", err)
	}
	return data, nil
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
