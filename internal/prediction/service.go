package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clinicflow/insight-engine/internal/observability/metrics"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

const defaultTTLHours = 24

// Source reports which layer satisfied a façade read.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceStore    Source = "store"
	SourceComputed Source = "computed"
)

// ComputeFunc produces the prediction payload on a cache miss. The payload
// must marshal to JSON; confidence accompanies it into the cache and log.
type ComputeFunc func(ctx context.Context) (payload any, confidence float64, err error)

// PersistenceResult makes the best-effort write outcome visible to callers
// without obliging them to check it. False fields mean the corresponding
// write failed and was logged; the prediction itself is unaffected.
type PersistenceResult struct {
	CacheWritten bool `json:"cache_written"`
	LogAppended  bool `json:"log_appended"`
}

// Cached is the façade result.
type Cached struct {
	Key         string            `json:"cache_key"`
	Data        json.RawMessage   `json:"data"`
	Confidence  float64           `json:"confidence"`
	Source      Source            `json:"source"`
	HitCount    int64             `json:"hit_count,omitempty"`
	Persistence PersistenceResult `json:"persistence"`
}

type computeOptions struct {
	ttlHours       int
	modelID        string
	predictionType RecordType
	input          any
	appointmentID  string
	patientID      string
}

// Option adjusts one GetOrCompute call.
type Option func(*computeOptions)

// WithTTLHours overrides the persistent-store TTL for this write.
func WithTTLHours(hours int) Option {
	return func(o *computeOptions) {
		if hours > 0 {
			o.ttlHours = hours
		}
	}
}

// WithModelID tags the cache entry and log record with the model identity.
func WithModelID(id string) Option {
	return func(o *computeOptions) { o.modelID = id }
}

// WithPredictionType tags the log record.
func WithPredictionType(t RecordType) Option {
	return func(o *computeOptions) { o.predictionType = t }
}

// WithInput supplies the heuristic input for the log record and input hash.
func WithInput(v any) Option {
	return func(o *computeOptions) { o.input = v }
}

// WithAppointmentID links the log record to an appointment.
func WithAppointmentID(id string) Option {
	return func(o *computeOptions) { o.appointmentID = id }
}

// WithPatientID links the log record to a patient.
func WithPatientID(id string) Option {
	return func(o *computeOptions) { o.patientID = id }
}

// Service is the cache-aside façade over the memory layer, the persistent
// store, and the audit log.
//
// Read path: memory, then store (repopulating memory), then compute. A miss
// performs exactly one cache write and one log append; hits perform none.
// Memory-layer hits intentionally do not touch the persistent hit counter.
type Service struct {
	memory          *MemoryCache
	store           Store
	log             Appender
	logger          *logging.Logger
	metrics         *metrics.PredictionMetrics
	defaultTTLHours int
}

// NewService builds the façade. The memory cache is required; store and log
// may be nil in reduced deployments, which skips those layers.
func NewService(memory *MemoryCache, store Store, log Appender, logger *logging.Logger) *Service {
	if memory == nil {
		panic("prediction: memory cache required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		memory:          memory,
		store:           store,
		log:             log,
		logger:          logger,
		defaultTTLHours: defaultTTLHours,
	}
}

// WithMetrics attaches prediction metrics.
func (s *Service) WithMetrics(m *metrics.PredictionMetrics) *Service {
	s.metrics = m
	return s
}

// WithDefaultTTLHours overrides the store TTL applied when a call passes no
// WithTTLHours option.
func (s *Service) WithDefaultTTLHours(hours int) *Service {
	if hours > 0 {
		s.defaultTTLHours = hours
	}
	return s
}

// GetOrCompute returns the cached prediction for cacheKey, computing and
// persisting it on a miss. Compute errors propagate to the caller;
// persistence errors never do.
func (s *Service) GetOrCompute(ctx context.Context, cacheKey string, compute ComputeFunc, opts ...Option) (Cached, error) {
	if cacheKey == "" {
		return Cached{}, errors.New("prediction: cache key required")
	}
	if compute == nil {
		return Cached{}, errors.New("prediction: compute func required")
	}

	o := computeOptions{ttlHours: s.defaultTTLHours}
	for _, opt := range opts {
		opt(&o)
	}

	if data, confidence, ok := s.memory.Get(cacheKey); ok {
		s.metrics.ObserveCacheHit("memory")
		return Cached{Key: cacheKey, Data: data, Confidence: confidence, Source: SourceMemory}, nil
	}

	if s.store != nil {
		entry, err := s.store.Get(ctx, cacheKey)
		switch {
		case err == nil:
			s.memory.Put(cacheKey, entry.Data, entry.Confidence)
			s.metrics.ObserveCacheHit("store")
			return Cached{
				Key:        cacheKey,
				Data:       entry.Data,
				Confidence: entry.Confidence,
				Source:     SourceStore,
				HitCount:   entry.HitCount,
			}, nil
		case errors.Is(err, ErrEntryNotFound):
		default:
			// The prediction must not depend on the cache being reachable.
			s.logger.Warn("prediction cache read failed", "cache_key", cacheKey, "error", err)
		}
	}

	s.metrics.ObserveCacheMiss()

	start := time.Now()
	payload, confidence, err := compute(ctx)
	if err != nil {
		return Cached{}, fmt.Errorf("prediction: compute failed: %w", err)
	}
	s.metrics.ObserveComputeDuration(string(o.predictionType), time.Since(start).Seconds())

	data, err := json.Marshal(payload)
	if err != nil {
		return Cached{}, fmt.Errorf("prediction: marshal result: %w", err)
	}

	persistence := s.persist(ctx, cacheKey, data, confidence, o)

	return Cached{
		Key:         cacheKey,
		Data:        data,
		Confidence:  confidence,
		Source:      SourceComputed,
		Persistence: persistence,
	}, nil
}

func (s *Service) persist(ctx context.Context, cacheKey string, data json.RawMessage, confidence float64, o computeOptions) PersistenceResult {
	var result PersistenceResult

	inputJSON, inputHash := s.serializeInput(o, cacheKey)

	if s.store != nil {
		entry := Entry{
			CacheKey:   cacheKey,
			ModelID:    o.modelID,
			InputHash:  inputHash,
			Data:       data,
			Confidence: confidence,
			ExpiresAt:  nowFunc().Add(time.Duration(o.ttlHours) * time.Hour).UTC(),
		}
		if err := s.store.Put(ctx, entry); err != nil {
			s.logger.Warn("prediction cache write failed", "cache_key", cacheKey, "error", err)
			s.metrics.ObservePersistenceFailure("cache_write")
		} else {
			result.CacheWritten = true
		}
	}

	s.memory.Put(cacheKey, data, confidence)

	if s.log != nil {
		rec := Record{
			ModelID:        o.modelID,
			PredictionType: o.predictionType,
			Input:          inputJSON,
			Output:         data,
			Confidence:     confidence,
			AppointmentID:  o.appointmentID,
			PatientID:      o.patientID,
		}
		if err := s.log.Append(ctx, rec); err != nil {
			s.logger.Warn("prediction log append failed", "cache_key", cacheKey, "error", err)
			s.metrics.ObservePersistenceFailure("log_append")
		} else {
			result.LogAppended = true
		}
	}

	return result
}

func (s *Service) serializeInput(o computeOptions, cacheKey string) (json.RawMessage, string) {
	if o.input == nil {
		return nil, InputHash(cacheKey)
	}
	data, err := json.Marshal(o.input)
	if err != nil {
		s.logger.Warn("prediction input marshal failed", "cache_key", cacheKey, "error", err)
		return nil, InputHash(cacheKey)
	}
	return data, InputHash(string(data))
}
