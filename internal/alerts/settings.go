// Package alerts gates high-risk appointment notifications: per-clinic
// settings, quiet hours, frequency coalescing, rate limiting, and the
// poller that sweeps recent predictions for alertable scores.
package alerts

import (
	"fmt"
	"strings"

	"github.com/clinicflow/insight-engine/internal/config"
)

// Channel identifies a delivery channel for risk alerts.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Frequency controls how often a clinic wants risk alerts delivered.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyDisabled  Frequency = "disabled"
)

// ParseFrequency normalizes a configured frequency string, falling back to
// immediate for unrecognized values.
func ParseFrequency(s string) Frequency {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case FrequencyHourly:
		return FrequencyHourly
	case FrequencyDaily:
		return FrequencyDaily
	case FrequencyDisabled:
		return FrequencyDisabled
	default:
		return FrequencyImmediate
	}
}

// Settings holds a clinic's alert preferences. Thresholds are percentages
// compared against riskScore*100, so a threshold of 70 fires on scores of
// 0.70 and above.
type Settings struct {
	ClinicID               string    `json:"clinic_id"`
	EmailHighRiskThreshold int       `json:"email_high_risk_threshold"`
	SMSHighRiskThreshold   int       `json:"sms_high_risk_threshold"`
	Frequency              Frequency `json:"notification_frequency"`
	QuietHoursStart        string    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd          string    `json:"quiet_hours_end,omitempty"`
	Timezone               string    `json:"timezone,omitempty"`
	WeekendNotifications   bool      `json:"weekend_notifications"`
	EmailRecipients        []string  `json:"email_recipients"`
	SMSRecipients          []string  `json:"sms_recipients"`
}

// DefaultSettings returns the alert preferences a clinic starts with before
// anyone has configured them: email at 70%, SMS reserved for 85%+, delivered
// immediately, weekends included, no quiet hours.
func DefaultSettings(clinicID string) *Settings {
	return &Settings{
		ClinicID:               clinicID,
		EmailHighRiskThreshold: 70,
		SMSHighRiskThreshold:   85,
		Frequency:              FrequencyImmediate,
		Timezone:               "UTC",
		WeekendNotifications:   true,
	}
}

// SettingsFromConfig builds clinic settings from environment configuration.
// Used to seed the settings store for single-tenant deployments.
func SettingsFromConfig(cfg *config.Config) *Settings {
	s := DefaultSettings(cfg.AlertClinicID)
	s.EmailHighRiskThreshold = cfg.EmailHighRiskThreshold
	s.SMSHighRiskThreshold = cfg.SMSHighRiskThreshold
	s.Frequency = ParseFrequency(cfg.NotificationFrequency)
	s.QuietHoursStart = cfg.QuietHoursStart
	s.QuietHoursEnd = cfg.QuietHoursEnd
	if cfg.QuietHoursTimezone != "" {
		s.Timezone = cfg.QuietHoursTimezone
	}
	s.WeekendNotifications = cfg.WeekendNotifications
	s.EmailRecipients = cfg.AlertEmailRecipients()
	s.SMSRecipients = cfg.AlertSMSRecipients()
	return s
}

// Validate checks threshold ranges and the quiet-hours window.
func (s *Settings) Validate() error {
	if s.EmailHighRiskThreshold < 0 || s.EmailHighRiskThreshold > 100 {
		return fmt.Errorf("alerts: email threshold %d out of range 0-100", s.EmailHighRiskThreshold)
	}
	if s.SMSHighRiskThreshold < 0 || s.SMSHighRiskThreshold > 100 {
		return fmt.Errorf("alerts: sms threshold %d out of range 0-100", s.SMSHighRiskThreshold)
	}
	switch s.Frequency {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyDisabled:
	default:
		return fmt.Errorf("alerts: unknown frequency %q", s.Frequency)
	}
	if (s.QuietHoursStart == "") != (s.QuietHoursEnd == "") {
		return fmt.Errorf("alerts: quiet hours need both start and end")
	}
	if s.QuietHoursStart != "" {
		if _, err := ParseQuietHours(s.QuietHoursStart, s.QuietHoursEnd, s.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// Threshold returns the configured percentage threshold for a channel.
func (s *Settings) Threshold(ch Channel) int {
	if ch == ChannelSMS {
		return s.SMSHighRiskThreshold
	}
	return s.EmailHighRiskThreshold
}

// Recipients returns the configured recipient list for a channel.
func (s *Settings) Recipients(ch Channel) []string {
	if ch == ChannelSMS {
		return s.SMSRecipients
	}
	return s.EmailRecipients
}
