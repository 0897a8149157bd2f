package insight

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/insight-engine/internal/ocr"
	"github.com/clinicflow/insight-engine/internal/priorauth"
	"github.com/clinicflow/insight-engine/internal/risk"
	"github.com/clinicflow/insight-engine/internal/scheduling"
	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Handler exposes the insight operations over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("insight: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// PredictNoShow scores one appointment.
// POST /api/v1/predictions/no-show
func (h *Handler) PredictNoShow(w http.ResponseWriter, r *http.Request) {
	var req NoShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := h.service.PredictNoShow(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "no-show prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecommendAuthorization produces a prior authorization approach.
// POST /api/v1/predictions/authorization
func (h *Handler) RecommendAuthorization(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := h.service.RecommendAuthorization(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "authorization recommendation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// OptimizeSchedule plans one provider window.
// POST /api/v1/predictions/schedule
func (h *Handler) OptimizeSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := h.service.OptimizeSchedule(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "schedule optimization failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExtractDocument runs field extraction for the document in the URL. The
// body is optional; when present its document metadata is used, but the
// path's document id always wins.
// POST /api/v1/documents/{documentID}/extract
func (h *Handler) ExtractDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.DocumentID = chi.URLParam(r, "documentID")

	result, err := h.service.ProcessDocument(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "document extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeError maps service errors onto status codes. Anything the caller can
// fix is a 400 carrying the validation message; the rest is a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	if isRequestError(err) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error(logMsg, "error", err, "path", r.URL.Path)
	jsonError(w, logMsg, http.StatusInternalServerError)
}

func isRequestError(err error) bool {
	var reqErr *RequestError
	var riskErr *risk.InputError
	var authErr *priorauth.InputError
	var schedErr *scheduling.InputError
	switch {
	case errors.As(err, &reqErr),
		errors.As(err, &riskErr),
		errors.As(err, &authErr),
		errors.As(err, &schedErr),
		errors.Is(err, ocr.ErrMissingDocument):
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
