// Package insight composes the scoring engines behind the prediction façade
// and wires their outcomes into risk alerting and exception recovery. It is
// the layer the HTTP API talks to: one operation per prediction endpoint,
// each deterministic for identical input and cached under the key formats in
// the prediction package.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicflow/insight-engine/internal/alerts"
	"github.com/clinicflow/insight-engine/internal/ocr"
	"github.com/clinicflow/insight-engine/internal/prediction"
	"github.com/clinicflow/insight-engine/internal/priorauth"
	"github.com/clinicflow/insight-engine/internal/recovery"
	"github.com/clinicflow/insight-engine/internal/risk"
	"github.com/clinicflow/insight-engine/internal/scheduling"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

var insightTracer = otel.Tracer("clinicflow.internal.insight")

// The rule engines carry no calibrated uncertainty, so each prediction type
// reports a fixed confidence. Extraction is the exception: it uses the
// per-document confidence the extractor reports.
const (
	noShowConfidence   = 0.85
	authConfidence     = 0.80
	scheduleConfidence = 0.75
)

const (
	defaultNoShowModelID     = "noshow-rules-v2"
	defaultAuthModelID       = "priorauth-rules-v1"
	defaultScheduleModelID   = "schedule-greedy-v1"
	defaultExtractionModelID = "ocr-synthetic-v1"

	defaultOCRThreshold = 0.9
	defaultAlertClinic  = "default"
)

var nowFunc = time.Now

// RequestError marks a request the caller can fix. Handlers map it to a 400.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("insight: invalid request: %s %s", e.Field, e.Reason)
}

// Alerter dispatches a high-risk event to the configured notification
// channels. Satisfied by alerts.Dispatcher.
type Alerter interface {
	Dispatch(ctx context.Context, clinicID string, ev alerts.RiskEvent) alerts.DispatchResult
}

// ModelIDs names the heuristic versions recorded against every cache entry
// and log row. Zero fields keep the defaults.
type ModelIDs struct {
	NoShow     string
	Auth       string
	Schedule   string
	Extraction string
}

// Service runs the four insight operations. The prediction façade, the
// engines, and the extractor are required; alerting and exception recovery
// are optional collaborators attached with the With builders.
type Service struct {
	predictions *prediction.Service
	scorer      risk.Scorer
	recommender priorauth.Recommender
	optimizer   scheduling.Optimizer
	extractor   ocr.Extractor

	recovery      *recovery.Router
	alerter       Alerter
	alertClinicID string

	models       ModelIDs
	ocrThreshold float64
	logger       *logging.Logger
}

func NewService(predictions *prediction.Service, scorer risk.Scorer, recommender priorauth.Recommender, optimizer scheduling.Optimizer, extractor ocr.Extractor, logger *logging.Logger) *Service {
	if predictions == nil {
		panic("insight: prediction façade required")
	}
	if scorer == nil {
		panic("insight: risk scorer required")
	}
	if recommender == nil {
		panic("insight: authorization recommender required")
	}
	if optimizer == nil {
		panic("insight: schedule optimizer required")
	}
	if extractor == nil {
		panic("insight: document extractor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		predictions: predictions,
		scorer:      scorer,
		recommender: recommender,
		optimizer:   optimizer,
		extractor:   extractor,
		models: ModelIDs{
			NoShow:     defaultNoShowModelID,
			Auth:       defaultAuthModelID,
			Schedule:   defaultScheduleModelID,
			Extraction: defaultExtractionModelID,
		},
		ocrThreshold: defaultOCRThreshold,
		logger:       logger,
	}
}

// WithRecovery routes extraction exceptions through the given router.
func (s *Service) WithRecovery(router *recovery.Router) *Service {
	s.recovery = router
	return s
}

// WithAlerter dispatches high no-show risk through the given alerter using
// clinicID's notification settings.
func (s *Service) WithAlerter(a Alerter, clinicID string) *Service {
	s.alerter = a
	if clinicID == "" {
		clinicID = defaultAlertClinic
	}
	s.alertClinicID = clinicID
	return s
}

// WithModelIDs overrides the recorded model versions. Empty fields keep the
// current values.
func (s *Service) WithModelIDs(ids ModelIDs) *Service {
	if ids.NoShow != "" {
		s.models.NoShow = ids.NoShow
	}
	if ids.Auth != "" {
		s.models.Auth = ids.Auth
	}
	if ids.Schedule != "" {
		s.models.Schedule = ids.Schedule
	}
	if ids.Extraction != "" {
		s.models.Extraction = ids.Extraction
	}
	return s
}

// WithOCRThreshold sets the extraction confidence below which an exception
// is routed. Values outside (0, 1] are ignored.
func (s *Service) WithOCRThreshold(threshold float64) *Service {
	if threshold > 0 && threshold <= 1 {
		s.ocrThreshold = threshold
	}
	return s
}

// NoShowRequest is the no-show scoring input.
type NoShowRequest struct {
	risk.Input
}

// NoShowResult pairs the prediction with its cache provenance. Alert is set
// only when a high-risk dispatch was attempted.
type NoShowResult struct {
	Prediction  risk.Prediction        `json:"prediction"`
	Confidence  float64                `json:"confidence"`
	CacheSource prediction.Source      `json:"cache_source"`
	Alert       *alerts.DispatchResult `json:"alert,omitempty"`
}

// PredictNoShow scores one appointment, serving repeats from cache. A high
// risk level triggers a best-effort alert dispatch; dispatch failures never
// fail the prediction.
func (s *Service) PredictNoShow(ctx context.Context, req NoShowRequest) (NoShowResult, error) {
	ctx, span := insightTracer.Start(ctx, "insight.no_show")
	defer span.End()
	span.SetAttributes(attribute.String("clinicflow.appointment_id", req.AppointmentID))

	if req.AppointmentID == "" {
		return NoShowResult{}, &RequestError{Field: "appointment_id", Reason: "is required"}
	}

	compute := func(ctx context.Context) (any, float64, error) {
		p, err := s.scorer.Predict(ctx, req.Input)
		if err != nil {
			return nil, 0, err
		}
		return p, noShowConfidence, nil
	}

	cached, err := s.predictions.GetOrCompute(ctx, prediction.NoShowKey(req.AppointmentID), compute,
		prediction.WithModelID(s.models.NoShow),
		prediction.WithPredictionType(prediction.RecordNoShow),
		prediction.WithInput(req.Input),
		prediction.WithAppointmentID(req.AppointmentID),
		prediction.WithPatientID(req.PatientID),
	)
	if err != nil {
		span.RecordError(err)
		return NoShowResult{}, err
	}

	var p risk.Prediction
	if err := json.Unmarshal(cached.Data, &p); err != nil {
		span.RecordError(err)
		return NoShowResult{}, fmt.Errorf("insight: decode cached no-show prediction: %w", err)
	}

	result := NoShowResult{
		Prediction:  p,
		Confidence:  cached.Confidence,
		CacheSource: cached.Source,
	}
	span.SetAttributes(
		attribute.String("clinicflow.risk_level", string(p.Level)),
		attribute.String("clinicflow.cache_source", string(cached.Source)),
	)

	if s.alerter != nil && p.Level == risk.LevelHigh {
		dispatched := s.alerter.Dispatch(ctx, s.alertClinicID, alerts.RiskEvent{
			AppointmentID: p.AppointmentID,
			PatientID:     req.PatientID,
			Score:         p.Score,
			Level:         string(p.Level),
			ObservedAt:    nowFunc().UTC(),
		})
		result.Alert = &dispatched
		s.logger.Info("high risk alert dispatched",
			"appointment_id", p.AppointmentID,
			"delivered", dispatched.Delivered,
			"failed", dispatched.Failed,
			"suppressed", len(dispatched.Suppressed))
	}

	return result, nil
}

// AuthRequest is the prior authorization input.
type AuthRequest struct {
	priorauth.Input
}

// AuthResult pairs the recommendation with its cache provenance.
type AuthResult struct {
	Recommendation priorauth.Recommendation `json:"recommendation"`
	Confidence     float64                  `json:"confidence"`
	CacheSource    prediction.Source        `json:"cache_source"`
}

// RecommendAuthorization produces the submission approach for one
// patient-procedure pair, serving repeats from cache.
func (s *Service) RecommendAuthorization(ctx context.Context, req AuthRequest) (AuthResult, error) {
	ctx, span := insightTracer.Start(ctx, "insight.authorization")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicflow.patient_id", req.PatientID),
		attribute.String("clinicflow.procedure_code", req.ProcedureCode),
	)

	if req.PatientID == "" {
		return AuthResult{}, &RequestError{Field: "patient_id", Reason: "is required"}
	}
	if req.ProcedureCode == "" {
		return AuthResult{}, &RequestError{Field: "procedure_code", Reason: "is required"}
	}

	compute := func(ctx context.Context) (any, float64, error) {
		rec, err := s.recommender.Recommend(ctx, req.Input)
		if err != nil {
			return nil, 0, err
		}
		return rec, authConfidence, nil
	}

	cached, err := s.predictions.GetOrCompute(ctx, prediction.AuthKey(req.PatientID, req.ProcedureCode), compute,
		prediction.WithModelID(s.models.Auth),
		prediction.WithPredictionType(prediction.RecordAuthorization),
		prediction.WithInput(req.Input),
		prediction.WithPatientID(req.PatientID),
	)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}

	var rec priorauth.Recommendation
	if err := json.Unmarshal(cached.Data, &rec); err != nil {
		span.RecordError(err)
		return AuthResult{}, fmt.Errorf("insight: decode cached recommendation: %w", err)
	}
	span.SetAttributes(attribute.String("clinicflow.cache_source", string(cached.Source)))

	return AuthResult{
		Recommendation: rec,
		Confidence:     cached.Confidence,
		CacheSource:    cached.Source,
	}, nil
}

// ScheduleRequest is the schedule optimization input.
type ScheduleRequest struct {
	scheduling.Input
}

// ScheduleResult pairs the optimization with its cache provenance.
type ScheduleResult struct {
	Optimization scheduling.Optimization `json:"optimization"`
	Confidence   float64                 `json:"confidence"`
	CacheSource  prediction.Source       `json:"cache_source"`
}

// OptimizeSchedule plans one provider window, serving repeats from cache.
// One plan is cached per provider-day, keyed on the window start date.
func (s *Service) OptimizeSchedule(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	ctx, span := insightTracer.Start(ctx, "insight.schedule")
	defer span.End()
	span.SetAttributes(attribute.String("clinicflow.provider_id", req.ProviderID))

	if req.ProviderID == "" {
		return ScheduleResult{}, &RequestError{Field: "provider_id", Reason: "is required"}
	}

	compute := func(ctx context.Context) (any, float64, error) {
		opt, err := s.optimizer.Optimize(ctx, req.Input)
		if err != nil {
			return nil, 0, err
		}
		return opt, scheduleConfidence, nil
	}

	cached, err := s.predictions.GetOrCompute(ctx, prediction.ScheduleKey(req.ProviderID, req.DateRange.Start), compute,
		prediction.WithModelID(s.models.Schedule),
		prediction.WithPredictionType(prediction.RecordSchedule),
		prediction.WithInput(req.Input),
	)
	if err != nil {
		span.RecordError(err)
		return ScheduleResult{}, err
	}

	var opt scheduling.Optimization
	if err := json.Unmarshal(cached.Data, &opt); err != nil {
		span.RecordError(err)
		return ScheduleResult{}, fmt.Errorf("insight: decode cached optimization: %w", err)
	}
	span.SetAttributes(attribute.String("clinicflow.cache_source", string(cached.Source)))

	return ScheduleResult{
		Optimization: opt,
		Confidence:   cached.Confidence,
		CacheSource:  cached.Source,
	}, nil
}

// DocumentRequest is the extraction input. TaskID links the document to an
// intake task so routed exceptions can update its status; without it the
// exception is still filed for review but no task transition happens.
type DocumentRequest struct {
	ocr.Document
	TaskID string `json:"task_id,omitempty"`
}

// DocumentResult pairs the extraction with its cache provenance. Resolution
// is set when an exception was routed for this computation.
type DocumentResult struct {
	Extraction  ocr.Result           `json:"extraction"`
	CacheSource prediction.Source    `json:"cache_source"`
	Resolution  *recovery.Resolution `json:"resolution,omitempty"`
}

// ProcessDocument extracts structured fields from one document, serving
// repeats from cache. Low extraction confidence or failed field validation
// routes an exception through the recovery router, once per computation:
// cache hits return the stored extraction without re-filing review work.
func (s *Service) ProcessDocument(ctx context.Context, req DocumentRequest) (DocumentResult, error) {
	ctx, span := insightTracer.Start(ctx, "insight.extraction")
	defer span.End()
	span.SetAttributes(attribute.String("clinicflow.document_id", req.DocumentID))

	if req.DocumentID == "" {
		return DocumentResult{}, &RequestError{Field: "document_id", Reason: "is required"}
	}

	compute := func(ctx context.Context) (any, float64, error) {
		res, err := s.extractor.Extract(ctx, req.Document)
		if err != nil {
			return nil, 0, err
		}
		return res, res.Confidence, nil
	}

	cached, err := s.predictions.GetOrCompute(ctx, prediction.DocumentKey(req.DocumentID), compute,
		prediction.WithModelID(s.models.Extraction),
		prediction.WithPredictionType(prediction.RecordExtraction),
		prediction.WithInput(req.Document),
		prediction.WithPatientID(req.PatientID),
	)
	if err != nil {
		span.RecordError(err)
		return DocumentResult{}, err
	}

	var extraction ocr.Result
	if err := json.Unmarshal(cached.Data, &extraction); err != nil {
		span.RecordError(err)
		return DocumentResult{}, fmt.Errorf("insight: decode cached extraction: %w", err)
	}

	result := DocumentResult{
		Extraction:  extraction,
		CacheSource: cached.Source,
	}
	span.SetAttributes(
		attribute.String("clinicflow.cache_source", string(cached.Source)),
		attribute.Float64("clinicflow.ocr_confidence", extraction.Confidence),
	)

	if s.recovery != nil && cached.Source == prediction.SourceComputed {
		if resolution, routed := s.routeExtractionException(ctx, req.TaskID, extraction); routed {
			result.Resolution = &resolution
		}
	}

	return result, nil
}

// routeExtractionException checks one freshly computed extraction and routes
// an exception when it falls below the confidence threshold or fails field
// validation. Threshold breaches take precedence over validation findings.
func (s *Service) routeExtractionException(ctx context.Context, taskID string, extraction ocr.Result) (recovery.Resolution, bool) {
	fields := fieldValues(extraction)

	if extraction.Confidence < s.ocrThreshold {
		s.logger.Warn("extraction below confidence threshold",
			"document_id", extraction.DocumentID,
			"confidence", extraction.Confidence,
			"threshold", s.ocrThreshold)
		return s.recovery.Route(ctx, recovery.Exception{
			TaskID:     taskID,
			DocumentID: extraction.DocumentID,
			Type:       recovery.ExceptionLowConfidenceOCR,
			Confidence: extraction.Confidence,
			Threshold:  s.ocrThreshold,
			Fields:     fields,
		}), true
	}

	validationErrs := validateExtraction(extraction)
	if len(validationErrs) == 0 {
		return recovery.Resolution{}, false
	}
	s.logger.Warn("extraction failed validation",
		"document_id", extraction.DocumentID,
		"errors", len(validationErrs))
	return s.recovery.Route(ctx, recovery.Exception{
		TaskID:     taskID,
		DocumentID: extraction.DocumentID,
		Type:       recovery.ExceptionValidationFailure,
		Errors:     validationErrs,
		Fields:     fields,
	}), true
}

// Fields every usable intake extraction must carry.
var requiredExtractionFields = []string{"patient_name", "date_of_birth", "member_id"}

// Extracted fields holding an ISO calendar date.
var dateExtractionFields = []string{"date_of_birth", "date_of_service"}

// validateExtraction checks a passing-confidence extraction for structural
// problems: required fields that are missing or empty, and date fields that
// do not parse as an ISO date.
func validateExtraction(extraction ocr.Result) []recovery.ValidationError {
	values := fieldValues(extraction)

	var errs []recovery.ValidationError
	for _, name := range requiredExtractionFields {
		if values[name] == "" {
			errs = append(errs, recovery.ValidationError{
				Field:    name,
				Kind:     recovery.KindMissingField,
				Severity: recovery.SeverityCritical,
			})
		}
	}
	for _, name := range dateExtractionFields {
		value := values[name]
		if value == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			errs = append(errs, recovery.ValidationError{
				Field:    name,
				Kind:     recovery.KindFormat,
				Severity: recovery.SeverityMedium,
				Value:    value,
			})
		}
	}
	return errs
}

func fieldValues(extraction ocr.Result) map[string]string {
	values := make(map[string]string, len(extraction.Fields))
	for _, f := range extraction.Fields {
		values[f.Name] = f.Value
	}
	return values
}
