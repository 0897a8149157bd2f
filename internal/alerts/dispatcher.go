package alerts

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/clinicflow/insight-engine/internal/notify"
	"github.com/clinicflow/insight-engine/internal/observability/metrics"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Dispatcher turns an allowed risk event into outbound messages. Send
// failures are logged and counted but never propagated; an alert that fails
// to deliver must not fail the pipeline that noticed the risk.
type Dispatcher struct {
	evaluator *Evaluator
	email     notify.EmailSender
	sms       notify.SMSSender
	logger    *logging.Logger
	metrics   *metrics.AlertMetrics
}

// DispatchResult summarizes a dispatch attempt.
type DispatchResult struct {
	Delivered  int           `json:"delivered"`
	Failed     int           `json:"failed"`
	Suppressed []Suppression `json:"suppressed,omitempty"`
}

// NewDispatcher creates a dispatcher. Either sender may be nil; a nil sender
// behaves like a channel with no recipients.
func NewDispatcher(evaluator *Evaluator, email notify.EmailSender, sms notify.SMSSender, logger *logging.Logger) *Dispatcher {
	if evaluator == nil {
		panic("alerts: evaluator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{evaluator: evaluator, email: email, sms: sms, logger: logger}
}

// WithMetrics attaches alert metrics.
func (d *Dispatcher) WithMetrics(m *metrics.AlertMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch evaluates ev against the clinic's settings and sends on every
// allowed channel.
func (d *Dispatcher) Dispatch(ctx context.Context, clinicID string, ev RiskEvent) DispatchResult {
	decision, err := d.evaluator.Evaluate(ctx, clinicID, ev)
	if err != nil {
		d.logger.Error("alert evaluation failed", "error", err, "clinic_id", clinicID, "appointment_id", ev.AppointmentID)
		return DispatchResult{}
	}

	result := DispatchResult{Suppressed: decision.Suppressed}

	if decision.Allows(ChannelEmail) {
		if d.email == nil {
			d.logger.Debug("email channel allowed but no sender configured", "clinic_id", clinicID)
		} else {
			subject, body, html := emailContent(ev)
			for _, to := range decision.Settings.Recipients(ChannelEmail) {
				msg := notify.EmailMessage{To: to, Subject: subject, Body: body, HTML: html}
				if err := d.email.Send(ctx, msg); err != nil {
					d.logger.Error("risk alert email failed", "error", err, "to", to, "appointment_id", ev.AppointmentID)
					d.metrics.ObserveDispatch(string(ChannelEmail), "failed")
					result.Failed++
					continue
				}
				d.metrics.ObserveDispatch(string(ChannelEmail), "sent")
				result.Delivered++
			}
		}
	}

	if decision.Allows(ChannelSMS) {
		if d.sms == nil {
			d.logger.Debug("sms channel allowed but no sender configured", "clinic_id", clinicID)
		} else {
			body := smsContent(ev)
			for _, to := range decision.Settings.Recipients(ChannelSMS) {
				if err := d.sms.SendSMS(ctx, to, body); err != nil {
					d.logger.Error("risk alert SMS failed", "error", err, "to", to, "appointment_id", ev.AppointmentID)
					d.metrics.ObserveDispatch(string(ChannelSMS), "failed")
					result.Failed++
					continue
				}
				d.metrics.ObserveDispatch(string(ChannelSMS), "sent")
				result.Delivered++
			}
		}
	}

	if result.Delivered > 0 || result.Failed > 0 {
		d.logger.Info("risk alert dispatched",
			"clinic_id", clinicID,
			"appointment_id", ev.AppointmentID,
			"risk_score", ev.Score,
			"delivered", result.Delivered,
			"failed", result.Failed)
	}
	return result
}

func scorePercent(score float64) int {
	return int(math.Round(score * 100))
}

func emailContent(ev RiskEvent) (subject, body, html string) {
	pct := scorePercent(ev.Score)
	subject = fmt.Sprintf("⚠️ High no-show risk: appointment %s", ev.AppointmentID)

	patientLine := ""
	if ev.PatientID != "" {
		patientLine = fmt.Sprintf("\nPatient: %s", ev.PatientID)
	}
	observedLine := ""
	if !ev.ObservedAt.IsZero() {
		observedLine = fmt.Sprintf("\nScored at: %s", ev.ObservedAt.Format("January 2, 2006 at 3:04 PM"))
	}

	body = fmt.Sprintf(`Appointment %s has a %d%% no-show risk (%s).%s%s

Consider confirming this appointment or offering an earlier slot to a
waitlisted patient.

— ClinicFlow`, ev.AppointmentID, pct, strings.ToUpper(ev.Level), patientLine, observedLine)

	html = fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #dc2626;">⚠️ High No-Show Risk</h2>
<p>Appointment <strong>%s</strong> scored <strong>%d%%</strong> (%s).</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Appointment:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  %s
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Risk:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d%% (%s)</td></tr>
</table>
<p style="background: #fef2f2; padding: 12px; border-radius: 8px; border-left: 4px solid #dc2626;">
  Consider confirming this appointment or offering the slot to a waitlisted patient.
</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— ClinicFlow</p>
</div>`,
		ev.AppointmentID, pct, strings.ToUpper(ev.Level),
		ev.AppointmentID, patientRowHTML(ev.PatientID), pct, strings.ToUpper(ev.Level))
	return subject, body, html
}

func patientRowHTML(patientID string) string {
	if patientID == "" {
		return ""
	}
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Patient:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`, patientID)
}

func smsContent(ev RiskEvent) string {
	pct := scorePercent(ev.Score)
	patientPart := ""
	if ev.PatientID != "" {
		patientPart = fmt.Sprintf(" (patient %s)", ev.PatientID)
	}
	return fmt.Sprintf("⚠️ %d%% no-show risk for appointment %s%s. Consider a confirmation call.",
		pct, ev.AppointmentID, patientPart)
}
