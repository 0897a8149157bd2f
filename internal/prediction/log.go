package prediction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordType identifies which heuristic produced a logged prediction.
type RecordType string

const (
	RecordNoShow        RecordType = "no_show"
	RecordAuthorization RecordType = "authorization"
	RecordSchedule      RecordType = "schedule"
	RecordExtraction    RecordType = "document_extraction"
)

// Record is an immutable audit row: one per computed prediction. Cache hits
// do not append records.
type Record struct {
	ID             string          `json:"id"`
	ModelID        string          `json:"model_id"`
	PredictionType RecordType      `json:"prediction_type"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output"`
	Confidence     float64         `json:"confidence"`
	AppointmentID  string          `json:"appointment_id,omitempty"`
	PatientID      string          `json:"patient_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Appender is the write side of the audit log. The façade depends on this
// interface so tests can count appends.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Log handles prediction audit logging.
type Log struct {
	db *sql.DB
}

// NewLog creates a new prediction log.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

var _ Appender = (*Log)(nil)

// Append records one prediction.
func (l *Log) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO prediction_log (
			id, model_id, prediction_type, input, output,
			confidence, appointment_id, patient_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := l.db.ExecContext(ctx, query,
		rec.ID,
		rec.ModelID,
		rec.PredictionType,
		[]byte(rec.Input),
		[]byte(rec.Output),
		rec.Confidence,
		nullString(rec.AppointmentID),
		nullString(rec.PatientID),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("prediction: failed to append log record: %w", err)
	}

	return nil
}

// Filter specifies criteria for querying logged predictions.
type Filter struct {
	PredictionType RecordType
	ModelID        string
	AppointmentID  string
	PatientID      string
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
	Offset         int
}

// Query retrieves logged predictions with filters, newest first.
func (l *Log) Query(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT id, model_id, prediction_type, input, output,
			   confidence, appointment_id, patient_id, created_at
		FROM prediction_log
		WHERE 1 = 1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.PredictionType != "" {
		query += fmt.Sprintf(" AND prediction_type = $%d", argIdx)
		args = append(args, filter.PredictionType)
		argIdx++
	}
	if filter.ModelID != "" {
		query += fmt.Sprintf(" AND model_id = $%d", argIdx)
		args = append(args, filter.ModelID)
		argIdx++
	}
	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if filter.PatientID != "" {
		query += fmt.Sprintf(" AND patient_id = $%d", argIdx)
		args = append(args, filter.PatientID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("prediction: failed to query log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var apptID, patientID sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.ModelID, &rec.PredictionType, &rec.Input, &rec.Output,
			&rec.Confidence, &apptID, &patientID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("prediction: failed to scan log record: %w", err)
		}
		rec.AppointmentID = apptID.String
		rec.PatientID = patientID.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
