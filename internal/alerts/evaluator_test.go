package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday, well clear of weekends and quiet hours.
var tuesdayNoon = time.Date(2025, 1, 14, 12, 0, 0, 0, time.UTC)

func testSettings() *Settings {
	s := DefaultSettings("clinic-1")
	s.EmailRecipients = []string{"ops@clinic.example"}
	s.SMSRecipients = []string{"+15550100"}
	return s
}

func newTestEvaluator(t *testing.T, settings *Settings) (*Evaluator, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSettingsStore(client, nil)
	if settings != nil {
		require.NoError(t, store.Set(context.Background(), settings))
	}
	return NewEvaluator(store, client, nil, nil), client, mr
}

func suppressionReasons(d Decision) map[Channel]string {
	out := make(map[Channel]string, len(d.Suppressed))
	for _, s := range d.Suppressed {
		out[s.Channel] = s.Reason
	}
	return out
}

func TestEvaluate_BothChannelsAboveThresholds(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, testSettings())
	fixedClock(t, tuesdayNoon)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)

	assert.ElementsMatch(t, []Channel{ChannelEmail, ChannelSMS}, d.Channels)
	assert.Empty(t, d.Suppressed)
	assert.Equal(t, "clinic-1", d.ClinicID)
	require.NotNil(t, d.Settings)
}

func TestEvaluate_EmailOnlyBetweenThresholds(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, testSettings())
	fixedClock(t, tuesdayNoon)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.75})
	require.NoError(t, err)

	assert.True(t, d.Allows(ChannelEmail))
	assert.False(t, d.Allows(ChannelSMS))
	assert.Equal(t, ReasonBelowThreshold, suppressionReasons(d)[ChannelSMS])
}

func TestEvaluate_ThresholdBoundariesInclusive(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, testSettings())
	fixedClock(t, tuesdayNoon)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.70})
	require.NoError(t, err)
	assert.True(t, d.Allows(ChannelEmail), "score exactly at the email threshold fires")

	d, err = ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-2", Score: 0.85})
	require.NoError(t, err)
	assert.True(t, d.Allows(ChannelSMS), "score exactly at the sms threshold fires")
}

func TestEvaluate_BelowBothThresholds(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, testSettings())
	fixedClock(t, tuesdayNoon)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.5})
	require.NoError(t, err)

	assert.Empty(t, d.Channels)
	reasons := suppressionReasons(d)
	assert.Equal(t, ReasonBelowThreshold, reasons[ChannelEmail])
	assert.Equal(t, ReasonBelowThreshold, reasons[ChannelSMS])
}

func TestEvaluate_DisabledFrequencyDropsEverything(t *testing.T) {
	s := testSettings()
	s.Frequency = FrequencyDisabled
	ev, _, mr := newTestEvaluator(t, s)
	fixedClock(t, tuesdayNoon)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.99})
	require.NoError(t, err)

	assert.Empty(t, d.Channels)
	reasons := suppressionReasons(d)
	assert.Equal(t, ReasonFrequencyDisabled, reasons[ChannelEmail])
	assert.Equal(t, ReasonFrequencyDisabled, reasons[ChannelSMS])

	assert.Equal(t, []string{"alerts:settings:clinic-1"}, mr.Keys(),
		"disabled clinics must not consume window markers or counters")
}

func TestEvaluate_QuietHoursSuppress(t *testing.T) {
	s := testSettings()
	s.QuietHoursStart = "22:00"
	s.QuietHoursEnd = "06:00"
	ev, _, _ := newTestEvaluator(t, s)

	fixedClock(t, time.Date(2025, 1, 14, 23, 30, 0, 0, time.UTC))
	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Empty(t, d.Channels)
	assert.Equal(t, ReasonQuietHours, suppressionReasons(d)[ChannelEmail])

	fixedClock(t, tuesdayNoon)
	d, err = ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Len(t, d.Channels, 2)
}

func TestEvaluate_QuietHoursInClinicTimezone(t *testing.T) {
	s := testSettings()
	s.QuietHoursStart = "22:00"
	s.QuietHoursEnd = "06:00"
	s.Timezone = "America/New_York"
	ev, _, _ := newTestEvaluator(t, s)

	// 03:30 UTC on a January Tuesday is 22:30 Monday evening in New York.
	fixedClock(t, time.Date(2025, 1, 14, 3, 30, 0, 0, time.UTC))

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Equal(t, ReasonQuietHours, suppressionReasons(d)[ChannelSMS])
}

func TestEvaluate_WeekendGate(t *testing.T) {
	s := testSettings()
	s.WeekendNotifications = false
	ev, _, _ := newTestEvaluator(t, s)

	saturday := time.Date(2025, 1, 18, 12, 0, 0, 0, time.UTC)
	fixedClock(t, saturday)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Empty(t, d.Channels)
	assert.Equal(t, ReasonWeekend, suppressionReasons(d)[ChannelEmail])
}

func TestEvaluate_WeekendUsesClinicTimezone(t *testing.T) {
	s := testSettings()
	s.WeekendNotifications = false
	s.Timezone = "Pacific/Auckland"
	ev, _, _ := newTestEvaluator(t, s)

	// Friday 23:30 UTC is already Saturday afternoon in Auckland.
	fixedClock(t, time.Date(2025, 1, 17, 23, 30, 0, 0, time.UTC))

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Equal(t, ReasonWeekend, suppressionReasons(d)[ChannelEmail])
}

func TestEvaluate_HourlyFrequencyCoalesces(t *testing.T) {
	s := testSettings()
	s.Frequency = FrequencyHourly
	ev, _, mr := newTestEvaluator(t, s)
	fixedClock(t, tuesdayNoon)
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Len(t, d.Channels, 2, "first alert in the window goes out")

	assert.Equal(t, time.Hour, mr.TTL("alerts:window:hourly:email:clinic-1"))
	assert.Equal(t, time.Hour, mr.TTL("alerts:window:hourly:sms:clinic-1"))

	d, err = ev.Evaluate(ctx, "clinic-1", RiskEvent{AppointmentID: "apt-2", Score: 0.95})
	require.NoError(t, err)
	assert.Empty(t, d.Channels)
	reasons := suppressionReasons(d)
	assert.Equal(t, ReasonFrequencyWindow, reasons[ChannelEmail])
	assert.Equal(t, ReasonFrequencyWindow, reasons[ChannelSMS])
}

func TestEvaluate_DailyWindowTTL(t *testing.T) {
	s := testSettings()
	s.Frequency = FrequencyDaily
	ev, _, mr := newTestEvaluator(t, s)
	fixedClock(t, tuesdayNoon)

	_, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, mr.TTL("alerts:window:daily:email:clinic-1"))
}

func TestEvaluate_WindowNotConsumedBelowThreshold(t *testing.T) {
	s := testSettings()
	s.Frequency = FrequencyHourly
	ev, _, _ := newTestEvaluator(t, s)
	fixedClock(t, tuesdayNoon)
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.4})
	require.NoError(t, err)
	assert.Empty(t, d.Channels)

	d, err = ev.Evaluate(ctx, "clinic-1", RiskEvent{AppointmentID: "apt-2", Score: 0.9})
	require.NoError(t, err)
	assert.Len(t, d.Channels, 2, "sub-threshold events must not claim the window")
}

func TestEvaluate_NoRecipients(t *testing.T) {
	s := testSettings()
	s.SMSRecipients = nil
	ev, _, _ := newTestEvaluator(t, s)
	fixedClock(t, tuesdayNoon)

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.95})
	require.NoError(t, err)

	assert.True(t, d.Allows(ChannelEmail))
	assert.Equal(t, ReasonNoRecipients, suppressionReasons(d)[ChannelSMS])
}

func TestEvaluate_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSettingsStore(client, nil)
	require.NoError(t, store.Set(context.Background(), testSettings()))
	limiter := NewRateLimiter(client, 1, time.Hour, nil)
	ev := NewEvaluator(store, client, limiter, nil)
	fixedClock(t, tuesdayNoon)
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err)
	assert.Len(t, d.Channels, 2)

	d, err = ev.Evaluate(ctx, "clinic-1", RiskEvent{AppointmentID: "apt-2", Score: 0.9})
	require.NoError(t, err)
	assert.Empty(t, d.Channels)
	reasons := suppressionReasons(d)
	assert.Equal(t, ReasonRateLimited, reasons[ChannelEmail])
	assert.Equal(t, ReasonRateLimited, reasons[ChannelSMS])
}

func TestEvaluate_SettingsOutageFallsBackToDefaults(t *testing.T) {
	ev, _, mr := newTestEvaluator(t, testSettings())
	fixedClock(t, tuesdayNoon)
	mr.Close()

	d, err := ev.Evaluate(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.NoError(t, err, "a redis outage must not drop the evaluation")

	// Default settings carry no recipients, so nothing goes out.
	assert.Empty(t, d.Channels)
	assert.Equal(t, ReasonNoRecipients, suppressionReasons(d)[ChannelEmail])
}

func TestEvaluate_RequiresClinicID(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, nil)

	_, err := ev.Evaluate(context.Background(), "", RiskEvent{AppointmentID: "apt-1", Score: 0.9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clinic id required")
}
