package docjobs

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"text/template"
)

// ErrTemplateNotFound indicates a render request named an unregistered template.
var ErrTemplateNotFound = errors.New("docjobs: template not found")

// Default templates cover the documents the intake desk generates most often.
// Field keys mirror the snake_case names callers submit in the job payload.
const (
	appointmentReminderTemplate = "Hi {{.patient_name}}, this is a reminder of your appointment with " +
		"{{.provider_name}} on {{.appointment_time}}. Reply CONFIRM to confirm or call " +
		"{{.clinic_phone}} to reschedule."

	noShowOutreachTemplate = "Hi {{.patient_name}}, we missed you at your {{.appointment_time}} " +
		"appointment. Call {{.clinic_phone}} to rebook and we will find the next available slot."

	priorAuthRequestTemplate = "Prior authorization request for {{.patient_name}} (member ID {{.member_id}}).\n" +
		"Requested service: {{.procedure}} ({{.procedure_code}}).\n" +
		"Diagnosis: {{.diagnosis}}.\n" +
		"Ordering provider: {{.provider_name}}, NPI {{.provider_npi}}.\n" +
		"Clinical justification: {{.justification}}."

	referralLetterTemplate = "Dear {{.specialist_name}},\n\n" +
		"I am referring {{.patient_name}} (DOB {{.patient_dob}}) to your practice for " +
		"evaluation of {{.reason}}.\n\n" +
		"Relevant history: {{.history}}.\n\n" +
		"Sincerely,\n{{.provider_name}}\n{{.clinic_name}}"
)

// Renderer renders registered document templates with strict missing-key
// semantics. A job referencing a field the caller did not supply fails
// instead of producing a document with holes.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewRenderer builds a Renderer preloaded with the standard document templates.
func NewRenderer() *Renderer {
	r := &Renderer{templates: make(map[string]*template.Template)}
	r.templates["appointment_reminder"] = mustParse("appointment_reminder", appointmentReminderTemplate)
	r.templates["no_show_outreach"] = mustParse("no_show_outreach", noShowOutreachTemplate)
	r.templates["prior_auth_request"] = mustParse("prior_auth_request", priorAuthRequestTemplate)
	r.templates["referral_letter"] = mustParse("referral_letter", referralLetterTemplate)
	return r
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=error").Parse(text))
}

// RegisterTemplate adds or replaces a named template.
func (r *Renderer) RegisterTemplate(name, text string) error {
	if name == "" {
		return errors.New("docjobs: template name required")
	}
	if text == "" {
		return errors.New("docjobs: template text required")
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("docjobs: failed to parse template %q: %w", name, err)
	}
	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()
	return nil
}

// Has reports whether a template with the given name is registered.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names returns the registered template names in sorted order.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template against the supplied fields.
func (r *Renderer) Render(name string, fields map[string]string) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, fields); err != nil {
		return "", fmt.Errorf("docjobs: failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}
