package alerts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

// SettingsHandler exposes admin endpoints for per-clinic alert settings.
type SettingsHandler struct {
	store  *SettingsStore
	logger *logging.Logger
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(store *SettingsStore, logger *logging.Logger) *SettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// UpdateSettingsRequest is a partial update; nil fields keep their stored
// value.
type UpdateSettingsRequest struct {
	EmailHighRiskThreshold *int     `json:"email_high_risk_threshold,omitempty"`
	SMSHighRiskThreshold   *int     `json:"sms_high_risk_threshold,omitempty"`
	Frequency              *string  `json:"notification_frequency,omitempty"`
	QuietHoursStart        *string  `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd          *string  `json:"quiet_hours_end,omitempty"`
	Timezone               *string  `json:"timezone,omitempty"`
	WeekendNotifications   *bool    `json:"weekend_notifications,omitempty"`
	EmailRecipients        []string `json:"email_recipients,omitempty"`
	SMSRecipients          []string `json:"sms_recipients,omitempty"`
}

// GetSettings returns the alert settings for a clinic.
// GET /admin/clinics/{clinicID}/alerts
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		jsonError(w, "missing clinicID", http.StatusBadRequest)
		return
	}
	if h.store == nil {
		jsonError(w, "alert settings not configured", http.StatusServiceUnavailable)
		return
	}

	settings, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get alert settings", "error", err, "clinic_id", clinicID)
		jsonError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	if settings.EmailRecipients == nil {
		settings.EmailRecipients = []string{}
	}
	if settings.SMSRecipients == nil {
		settings.SMSRecipients = []string{}
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings applies a partial update to a clinic's alert settings.
// PUT /admin/clinics/{clinicID}/alerts
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		jsonError(w, "missing clinicID", http.StatusBadRequest)
		return
	}
	if h.store == nil {
		jsonError(w, "alert settings not configured", http.StatusServiceUnavailable)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	settings, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get alert settings", "error", err, "clinic_id", clinicID)
		jsonError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	if req.EmailHighRiskThreshold != nil {
		settings.EmailHighRiskThreshold = *req.EmailHighRiskThreshold
	}
	if req.SMSHighRiskThreshold != nil {
		settings.SMSHighRiskThreshold = *req.SMSHighRiskThreshold
	}
	if req.Frequency != nil {
		settings.Frequency = ParseFrequency(*req.Frequency)
	}
	if req.QuietHoursStart != nil {
		settings.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		settings.QuietHoursEnd = *req.QuietHoursEnd
	}
	if req.Timezone != nil {
		settings.Timezone = *req.Timezone
	}
	if req.WeekendNotifications != nil {
		settings.WeekendNotifications = *req.WeekendNotifications
	}
	if req.EmailRecipients != nil {
		settings.EmailRecipients = req.EmailRecipients
	}
	if req.SMSRecipients != nil {
		settings.SMSRecipients = req.SMSRecipients
	}

	if err := settings.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		h.logger.Error("failed to save alert settings", "error", err, "clinic_id", clinicID)
		jsonError(w, "failed to save settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
