package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictHighRiskScenario(t *testing.T) {
	p := NewPredictor()
	in := Input{
		AppointmentID:            "appt-123",
		PreviousNoShows:          2,
		AppointmentHour:          8,
		AppointmentDayOfWeek:     time.Friday,
		DaysSinceLastAppointment: 200,
	}

	got, err := p.Predict(context.Background(), in)
	require.NoError(t, err)

	// 0.3 base + 0.3 history + 0.1 early hour + 0.05 Friday + 0.1 recency.
	assert.InDelta(t, 0.85, got.Score, 1e-9)
	assert.Equal(t, LevelHigh, got.Level)

	names := make([]string, 0, len(got.Factors))
	for _, f := range got.Factors {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"previous_no_shows", "appointment_time", "day_of_week", "patient_recency"}, names)

	require.Len(t, got.Interventions, 2)
	assert.Equal(t, "reminder", got.Interventions[0].Type)
	assert.InDelta(t, 0.15, got.Interventions[0].EstimatedImpact, 1e-9)
	assert.Equal(t, "confirmation", got.Interventions[1].Type)
	assert.Equal(t, 2, got.Interventions[1].Priority)
	assert.InDelta(t, 0.25, got.Interventions[1].EstimatedImpact, 1e-9)
}

func TestPredictDeterminism(t *testing.T) {
	p := NewPredictor()
	in := Input{
		AppointmentID:            "appt-9",
		PreviousNoShows:          1,
		AppointmentHour:          17,
		AppointmentDayOfWeek:     time.Monday,
		DaysSinceLastAppointment: 10,
		Weather:                  &Weather{Precipitation: 0.8},
	}

	first, err := p.Predict(context.Background(), in)
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPredictScoreNeverExceedsCap(t *testing.T) {
	p := NewPredictor()
	for n := 0; n <= 100; n++ {
		in := Input{
			PreviousNoShows:          n,
			AppointmentHour:          7,
			AppointmentDayOfWeek:     time.Friday,
			DaysSinceLastAppointment: 365,
			Weather:                  &Weather{Precipitation: 1.0},
		}
		got, err := p.Predict(context.Background(), in)
		require.NoError(t, err)
		assert.LessOrEqualf(t, got.Score, 0.95, "previous_no_shows=%d", n)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0.0, LevelLow},
		{0.29, LevelLow},
		{0.3, LevelMedium},
		{0.45, LevelMedium},
		{0.59, LevelMedium},
		{0.6, LevelHigh},
		{0.95, LevelHigh},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, Classify(tt.score), "score=%v", tt.score)
	}
}

func TestPredictBaselineHasNoFactors(t *testing.T) {
	p := NewPredictor()
	in := Input{
		PreviousNoShows:          0,
		AppointmentHour:          10,
		AppointmentDayOfWeek:     time.Wednesday,
		DaysSinceLastAppointment: 30,
	}

	got, err := p.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.Score, 1e-9)
	assert.Equal(t, LevelMedium, got.Level)
	assert.Empty(t, got.Factors)
	assert.Empty(t, got.Interventions)
}

func TestPredictWeatherThresholdIsStrict(t *testing.T) {
	p := NewPredictor()
	base := Input{
		AppointmentHour:      10,
		AppointmentDayOfWeek: time.Tuesday,
	}

	atThreshold := base
	atThreshold.Weather = &Weather{Precipitation: 0.5}
	got, err := p.Predict(context.Background(), atThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.Score, 1e-9)

	aboveThreshold := base
	aboveThreshold.Weather = &Weather{Precipitation: 0.51}
	got, err = p.Predict(context.Background(), aboveThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, got.Score, 1e-9)
	require.Len(t, got.Factors, 1)
	assert.Equal(t, "weather", got.Factors[0].Name)
}

func TestPredictRejectsOutOfRangeInput(t *testing.T) {
	p := NewPredictor()
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"negative no-shows", Input{PreviousNoShows: -1, AppointmentHour: 10}, "previous_no_shows"},
		{"hour too large", Input{AppointmentHour: 24}, "appointment_hour"},
		{"weekday out of range", Input{AppointmentHour: 10, AppointmentDayOfWeek: 7}, "appointment_day_of_week"},
		{"negative recency", Input{AppointmentHour: 10, DaysSinceLastAppointment: -5}, "days_since_last_appointment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Predict(context.Background(), tt.in)
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}
}
