package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

var settingsTracer = otel.Tracer("clinicflow.internal.alerts")

// SettingsStore persists per-clinic alert settings in Redis as JSON with no
// expiry. Clinics without stored settings get DefaultSettings.
type SettingsStore struct {
	redis  *redis.Client
	logger *logging.Logger
}

// NewSettingsStore creates a Redis-backed settings store.
func NewSettingsStore(client *redis.Client, logger *logging.Logger) *SettingsStore {
	if client == nil {
		panic("alerts: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsStore{redis: client, logger: logger}
}

func (s *SettingsStore) key(clinicID string) string {
	return fmt.Sprintf("alerts:settings:%s", clinicID)
}

// Get returns the stored settings for a clinic, or DefaultSettings when none
// have been saved yet.
func (s *SettingsStore) Get(ctx context.Context, clinicID string) (*Settings, error) {
	ctx, span := settingsTracer.Start(ctx, "alerts.SettingsGet")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.id", clinicID))

	data, err := s.redis.Get(ctx, s.key(clinicID)).Result()
	if err == redis.Nil {
		return DefaultSettings(clinicID), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("alerts: settings lookup failed: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("alerts: settings unmarshal failed: %w", err)
	}
	if settings.ClinicID == "" {
		settings.ClinicID = clinicID
	}
	return &settings, nil
}

// Set stores settings for a clinic, replacing any existing value.
func (s *SettingsStore) Set(ctx context.Context, settings *Settings) error {
	ctx, span := settingsTracer.Start(ctx, "alerts.SettingsSet")
	defer span.End()

	if settings == nil || settings.ClinicID == "" {
		return fmt.Errorf("alerts: settings clinic id required")
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("alerts: settings marshal failed: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(settings.ClinicID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("alerts: settings write failed: %w", err)
	}

	s.logger.Info("alert settings updated",
		"clinic_id", settings.ClinicID,
		"frequency", settings.Frequency,
		"email_threshold", settings.EmailHighRiskThreshold,
		"sms_threshold", settings.SMSHighRiskThreshold)
	return nil
}

// Seed writes settings only if the clinic has none stored. Returns true when
// the seed value was written.
func (s *SettingsStore) Seed(ctx context.Context, settings *Settings) (bool, error) {
	ctx, span := settingsTracer.Start(ctx, "alerts.SettingsSeed")
	defer span.End()

	if settings == nil || settings.ClinicID == "" {
		return false, fmt.Errorf("alerts: settings clinic id required")
	}
	if err := settings.Validate(); err != nil {
		return false, err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return false, fmt.Errorf("alerts: settings marshal failed: %w", err)
	}

	written, err := s.redis.SetNX(ctx, s.key(settings.ClinicID), data, 0).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("alerts: settings seed failed: %w", err)
	}
	return written, nil
}
