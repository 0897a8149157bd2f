package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Prediction cache and audit log
	MemoryCacheTTL       time.Duration
	CacheTTLHours        int
	CacheCleanupInterval time.Duration
	NoShowModelID        string
	AuthModelID          string
	ScheduleModelID      string
	OCRModelID           string

	// OCR and recovery
	OCRConfidenceThreshold float64
	RecoverySuccessRate    float64

	// Risk alert gating
	AlertPollInterval        time.Duration
	AlertClinicID            string
	EmailHighRiskThreshold   int
	SMSHighRiskThreshold     int
	NotificationFrequency    string
	QuietHoursStart          string
	QuietHoursEnd            string
	QuietHoursTimezone       string
	WeekendNotifications     bool
	AlertMaxPerWindow        int
	AlertRateLimitWindow     time.Duration
	AlertEmailRecipientsCSV  string
	AlertSMSRecipientsCSV    string
	DisableAlertDispatch     bool
	NotificationSenderDriver string

	// Document job pipeline
	UseMemoryQueue       bool
	WorkerCount          int
	DocumentJobQueueURL  string
	DocumentJobsTable    string
	DocumentJobStore     string
	WorkerPollWaitSecs   int
	WorkerShutdownWindow time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Email
	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// HTTP surface
	AdminJWTSecret  string
	IngestToken     string
	CORSOrigins     string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		MemoryCacheTTL:       getEnvAsDuration("PREDICTION_MEMORY_TTL", 5*time.Minute),
		CacheTTLHours:        getEnvAsInt("PREDICTION_CACHE_TTL_HOURS", 24),
		CacheCleanupInterval: getEnvAsDuration("PREDICTION_CLEANUP_INTERVAL", 15*time.Minute),
		NoShowModelID:        getEnv("NO_SHOW_MODEL_ID", "noshow-rules-v2"),
		AuthModelID:          getEnv("AUTH_MODEL_ID", "priorauth-rules-v1"),
		ScheduleModelID:      getEnv("SCHEDULE_MODEL_ID", "schedule-greedy-v1"),
		OCRModelID:           getEnv("OCR_MODEL_ID", "ocr-synthetic-v1"),

		OCRConfidenceThreshold: getEnvAsFloat("OCR_CONFIDENCE_THRESHOLD", 0.9),
		RecoverySuccessRate:    getEnvAsFloat("RECOVERY_SIMULATED_SUCCESS_RATE", 0.7),

		AlertPollInterval:        getEnvAsDuration("ALERT_POLL_INTERVAL", 5*time.Minute),
		AlertClinicID:            getEnv("ALERT_CLINIC_ID", "default"),
		EmailHighRiskThreshold:   getEnvAsInt("EMAIL_HIGH_RISK_THRESHOLD", 70),
		SMSHighRiskThreshold:     getEnvAsInt("SMS_HIGH_RISK_THRESHOLD", 85),
		NotificationFrequency:    strings.ToLower(strings.TrimSpace(getEnv("NOTIFICATION_FREQUENCY", "immediate"))),
		QuietHoursStart:          getEnv("QUIET_HOURS_START", ""),
		QuietHoursEnd:            getEnv("QUIET_HOURS_END", ""),
		QuietHoursTimezone:       getEnv("QUIET_HOURS_TZ", "UTC"),
		WeekendNotifications:     getEnvAsBool("WEEKEND_NOTIFICATIONS", true),
		AlertMaxPerWindow:        getEnvAsInt("ALERT_MAX_PER_WINDOW", 20),
		AlertRateLimitWindow:     getEnvAsDuration("ALERT_RATE_LIMIT_WINDOW", time.Hour),
		AlertEmailRecipientsCSV:  getEnv("ALERT_EMAIL_RECIPIENTS", ""),
		AlertSMSRecipientsCSV:    getEnv("ALERT_SMS_RECIPIENTS", ""),
		DisableAlertDispatch:     getEnvAsBool("DISABLE_ALERT_DISPATCH", false),
		NotificationSenderDriver: strings.ToLower(strings.TrimSpace(getEnv("NOTIFICATION_SENDER", "auto"))),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		DocumentJobQueueURL:  getEnv("DOCUMENT_JOB_QUEUE_URL", ""),
		DocumentJobsTable:    getEnv("DOCUMENT_JOBS_TABLE", "document_jobs"),
		DocumentJobStore:     strings.ToLower(strings.TrimSpace(getEnv("DOCUMENT_JOB_STORE", "postgres"))),
		WorkerPollWaitSecs:   getEnvAsInt("WORKER_POLL_WAIT_SECS", 10),
		WorkerShutdownWindow: getEnvAsDuration("WORKER_SHUTDOWN_WINDOW", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "ClinicFlow"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ClinicFlow"),

		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		IngestToken:     getEnv("INGEST_TOKEN", ""),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		RateLimitPerSec: getEnvAsFloat("RATE_LIMIT_PER_SEC", 20),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// AlertEmailRecipients splits the configured recipient list.
func (c *Config) AlertEmailRecipients() []string {
	return splitCSV(c.AlertEmailRecipientsCSV)
}

// CORSAllowedOrigins splits the configured origin list.
func (c *Config) CORSAllowedOrigins() []string {
	return splitCSV(c.CORSOrigins)
}

// AlertSMSRecipients splits the configured recipient list.
func (c *Config) AlertSMSRecipients() []string {
	return splitCSV(c.AlertSMSRecipientsCSV)
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
