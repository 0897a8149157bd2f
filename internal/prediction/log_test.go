package prediction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewLog(db)

	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "no-show prediction with appointment",
			rec: Record{
				ModelID:        "noshow-rules-v2",
				PredictionType: RecordNoShow,
				Input:          json.RawMessage(`{"previous_no_shows":3}`),
				Output:         json.RawMessage(`{"risk_score":0.85}`),
				Confidence:     0.9,
				AppointmentID:  "apt-1",
				PatientID:      "pat-1",
			},
		},
		{
			name: "schedule run without entity ids",
			rec: Record{
				ModelID:        "schedule-greedy-v1",
				PredictionType: RecordSchedule,
				Output:         json.RawMessage(`{"utilization_rate":0.625}`),
				Confidence:     0.8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO prediction_log").
				WillReturnResult(sqlmock.NewResult(1, 1))

			err := log.Append(context.Background(), tt.rec)
			assert.NoError(t, err)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogAppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewLog(db)

	mock.ExpectExec("INSERT INTO prediction_log").
		WillReturnError(sqlmock.ErrCancelled)

	err = log.Append(context.Background(), Record{
		ModelID:        "noshow-rules-v2",
		PredictionType: RecordNoShow,
		Output:         json.RawMessage(`{}`),
	})
	assert.Error(t, err)
}

func TestLogQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewLog(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "model_id", "prediction_type", "input", "output",
		"confidence", "appointment_id", "patient_id", "created_at",
	}).AddRow(
		"11111111-1111-1111-1111-111111111111", "noshow-rules-v2", RecordNoShow,
		[]byte(`{"previous_no_shows":3}`), []byte(`{"risk_score":0.85}`),
		0.9, "apt-1", nil, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM prediction_log").
		WillReturnRows(rows)

	records, err := log.Query(context.Background(), Filter{
		PredictionType: RecordNoShow,
		StartTime:      now.Add(-24 * time.Hour),
		EndTime:        now,
		Limit:          50,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, RecordNoShow, records[0].PredictionType)
	assert.Equal(t, "apt-1", records[0].AppointmentID)
	assert.Empty(t, records[0].PatientID)
	assert.JSONEq(t, `{"risk_score":0.85}`, string(records[0].Output))
}

func TestLogQueryEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewLog(db)

	mock.ExpectQuery("SELECT (.+) FROM prediction_log").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "model_id", "prediction_type", "input", "output",
			"confidence", "appointment_id", "patient_id", "created_at",
		}))

	records, err := log.Query(context.Background(), Filter{ModelID: "noshow-rules-v2"})
	require.NoError(t, err)
	assert.Empty(t, records)
}
