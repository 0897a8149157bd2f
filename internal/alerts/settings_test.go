package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/insight-engine/internal/config"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("clinic-1")

	assert.Equal(t, "clinic-1", s.ClinicID)
	assert.Equal(t, 70, s.EmailHighRiskThreshold)
	assert.Equal(t, 85, s.SMSHighRiskThreshold)
	assert.Equal(t, FrequencyImmediate, s.Frequency)
	assert.Equal(t, "UTC", s.Timezone)
	assert.True(t, s.WeekendNotifications)
	assert.Empty(t, s.QuietHoursStart)
	assert.NoError(t, s.Validate())
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want Frequency
	}{
		{"immediate", FrequencyImmediate},
		{"hourly", FrequencyHourly},
		{"DAILY", FrequencyDaily},
		{" disabled ", FrequencyDisabled},
		{"", FrequencyImmediate},
		{"weekly", FrequencyImmediate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseFrequency(tt.in), "input %q", tt.in)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(s *Settings) {},
		},
		{
			name:    "email threshold above 100",
			mutate:  func(s *Settings) { s.EmailHighRiskThreshold = 101 },
			wantErr: "email threshold",
		},
		{
			name:    "negative sms threshold",
			mutate:  func(s *Settings) { s.SMSHighRiskThreshold = -1 },
			wantErr: "sms threshold",
		},
		{
			name:    "unknown frequency",
			mutate:  func(s *Settings) { s.Frequency = "weekly" },
			wantErr: "unknown frequency",
		},
		{
			name:    "quiet hours start without end",
			mutate:  func(s *Settings) { s.QuietHoursStart = "22:00" },
			wantErr: "both start and end",
		},
		{
			name: "malformed quiet hours clock",
			mutate: func(s *Settings) {
				s.QuietHoursStart = "25:00"
				s.QuietHoursEnd = "06:00"
			},
			wantErr: "invalid quiet hours start",
		},
		{
			name: "bad timezone",
			mutate: func(s *Settings) {
				s.QuietHoursStart = "22:00"
				s.QuietHoursEnd = "06:00"
				s.Timezone = "Mars/Olympus"
			},
			wantErr: "invalid timezone",
		},
		{
			name: "valid quiet hours",
			mutate: func(s *Settings) {
				s.QuietHoursStart = "22:00"
				s.QuietHoursEnd = "06:00"
				s.Timezone = "America/New_York"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings("clinic-1")
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		AlertClinicID:           "main-st",
		EmailHighRiskThreshold:  60,
		SMSHighRiskThreshold:    90,
		NotificationFrequency:   "hourly",
		QuietHoursStart:         "21:00",
		QuietHoursEnd:           "07:30",
		QuietHoursTimezone:      "America/Chicago",
		WeekendNotifications:    false,
		AlertEmailRecipientsCSV: "ops@clinic.example, desk@clinic.example",
		AlertSMSRecipientsCSV:   "+15550100",
		AlertPollInterval:       5 * time.Minute,
	}

	s := SettingsFromConfig(cfg)

	assert.Equal(t, "main-st", s.ClinicID)
	assert.Equal(t, 60, s.EmailHighRiskThreshold)
	assert.Equal(t, 90, s.SMSHighRiskThreshold)
	assert.Equal(t, FrequencyHourly, s.Frequency)
	assert.Equal(t, "21:00", s.QuietHoursStart)
	assert.Equal(t, "07:30", s.QuietHoursEnd)
	assert.Equal(t, "America/Chicago", s.Timezone)
	assert.False(t, s.WeekendNotifications)
	assert.Equal(t, []string{"ops@clinic.example", "desk@clinic.example"}, s.EmailRecipients)
	assert.Equal(t, []string{"+15550100"}, s.SMSRecipients)
	assert.NoError(t, s.Validate())
}

func TestSettingsChannelHelpers(t *testing.T) {
	s := DefaultSettings("clinic-1")
	s.EmailRecipients = []string{"a@clinic.example"}
	s.SMSRecipients = []string{"+15550100", "+15550101"}

	assert.Equal(t, 70, s.Threshold(ChannelEmail))
	assert.Equal(t, 85, s.Threshold(ChannelSMS))
	assert.Equal(t, []string{"a@clinic.example"}, s.Recipients(ChannelEmail))
	assert.Len(t, s.Recipients(ChannelSMS), 2)
}
