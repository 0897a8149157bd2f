package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/insight-engine/internal/notify"
)

type fakeEmailSender struct {
	sent   []notify.EmailMessage
	failOn string
}

func (f *fakeEmailSender) Send(ctx context.Context, msg notify.EmailMessage) error {
	if f.failOn != "" && msg.To == f.failOn {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSMSSender struct {
	sent []struct{ to, body string }
	err  error
}

func (f *fakeSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, struct{ to, body string }{to, body})
	return nil
}

func newTestDispatcher(t *testing.T, settings *Settings) (*Dispatcher, *fakeEmailSender, *fakeSMSSender) {
	t.Helper()
	ev, _, _ := newTestEvaluator(t, settings)
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	return NewDispatcher(ev, email, sms, nil), email, sms
}

func TestDispatch_DeliversOnAllowedChannels(t *testing.T) {
	s := testSettings()
	s.EmailRecipients = []string{"ops@clinic.example", "desk@clinic.example"}
	d, email, sms := newTestDispatcher(t, s)
	fixedClock(t, tuesdayNoon)

	res := d.Dispatch(context.Background(), "clinic-1", RiskEvent{
		AppointmentID: "apt-42",
		PatientID:     "pat-7",
		Score:         0.9,
		Level:         "high",
		ObservedAt:    tuesdayNoon,
	})

	assert.Equal(t, 3, res.Delivered)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Suppressed)

	require.Len(t, email.sent, 2)
	assert.Contains(t, email.sent[0].Subject, "apt-42")
	assert.Contains(t, email.sent[0].Body, "90%")
	assert.Contains(t, email.sent[0].Body, "pat-7")
	assert.NotEmpty(t, email.sent[0].HTML)

	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+15550100", sms.sent[0].to)
	assert.Contains(t, sms.sent[0].body, "90%")
	assert.Contains(t, sms.sent[0].body, "apt-42")
}

func TestDispatch_SendFailureCountedNotPropagated(t *testing.T) {
	s := testSettings()
	s.EmailRecipients = []string{"ops@clinic.example", "desk@clinic.example"}
	d, email, _ := newTestDispatcher(t, s)
	email.failOn = "ops@clinic.example"
	fixedClock(t, tuesdayNoon)

	res := d.Dispatch(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})

	assert.Equal(t, 2, res.Delivered, "remaining recipients still get the alert")
	assert.Equal(t, 1, res.Failed)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "desk@clinic.example", email.sent[0].To)
}

func TestDispatch_SuppressedChannelsNotSent(t *testing.T) {
	d, email, sms := newTestDispatcher(t, testSettings())
	fixedClock(t, tuesdayNoon)

	res := d.Dispatch(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.4})

	assert.Zero(t, res.Delivered)
	assert.Len(t, res.Suppressed, 2)
	assert.Empty(t, email.sent)
	assert.Empty(t, sms.sent)
}

func TestDispatch_EvaluationErrorReturnsEmpty(t *testing.T) {
	d, email, _ := newTestDispatcher(t, testSettings())
	fixedClock(t, tuesdayNoon)

	res := d.Dispatch(context.Background(), "", RiskEvent{AppointmentID: "apt-1", Score: 0.9})

	assert.Zero(t, res.Delivered)
	assert.Zero(t, res.Failed)
	assert.Empty(t, email.sent)
}

func TestDispatch_NilSenders(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, testSettings())
	d := NewDispatcher(ev, nil, nil, nil)
	fixedClock(t, tuesdayNoon)

	res := d.Dispatch(context.Background(), "clinic-1", RiskEvent{AppointmentID: "apt-1", Score: 0.9})

	assert.Zero(t, res.Delivered)
	assert.Zero(t, res.Failed)
}

func TestNewDispatcher_RequiresEvaluator(t *testing.T) {
	assert.Panics(t, func() { NewDispatcher(nil, nil, nil, nil) })
}

func TestEmailContent(t *testing.T) {
	subject, body, html := emailContent(RiskEvent{
		AppointmentID: "apt-9",
		PatientID:     "pat-3",
		Score:         0.847,
		Level:         "high",
		ObservedAt:    time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
	})

	assert.Equal(t, "⚠️ High no-show risk: appointment apt-9", subject)
	assert.Contains(t, body, "85% no-show risk")
	assert.Contains(t, body, "HIGH")
	assert.Contains(t, body, "Patient: pat-3")
	assert.Contains(t, body, "March 10, 2025")
	assert.Contains(t, html, "apt-9")
	assert.Contains(t, html, "pat-3")
}

func TestSMSContent(t *testing.T) {
	body := smsContent(RiskEvent{AppointmentID: "apt-9", Score: 0.7})
	assert.Equal(t, "⚠️ 70% no-show risk for appointment apt-9. Consider a confirmation call.", body)

	withPatient := smsContent(RiskEvent{AppointmentID: "apt-9", PatientID: "pat-3", Score: 0.7})
	assert.Contains(t, withPatient, "(patient pat-3)")
}
