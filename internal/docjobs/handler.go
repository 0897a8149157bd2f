package docjobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Handler exposes document job submission and status polling over HTTP.
type Handler struct {
	store    JobStore
	queue    Queue
	renderer *Renderer
	logger   *logging.Logger
}

func NewHandler(store JobStore, queue Queue, renderer *Renderer, logger *logging.Logger) *Handler {
	if store == nil {
		panic("docjobs: job store required")
	}
	if queue == nil {
		panic("docjobs: queue required")
	}
	if renderer == nil {
		panic("docjobs: renderer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:    store,
		queue:    queue,
		renderer: renderer,
		logger:   logger,
	}
}

// EnqueueRequest is the submission payload for a document render job.
type EnqueueRequest struct {
	TemplateName string            `json:"template_name"`
	PatientID    string            `json:"patient_id"`
	Fields       map[string]string `json:"fields"`
}

// Enqueue accepts a render request and queues it for the worker pool.
// POST /api/v1/documents/jobs
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(req.TemplateName)
	if name == "" {
		jsonError(w, "template_name required", http.StatusBadRequest)
		return
	}
	if !h.renderer.Has(name) {
		msg := fmt.Sprintf("unknown template %q; registered templates: %s",
			name, strings.Join(h.renderer.Names(), ", "))
		jsonError(w, msg, http.StatusBadRequest)
		return
	}

	payload, body, err := encodePayload(jobPayload{
		TemplateName: name,
		PatientID:    strings.TrimSpace(req.PatientID),
		Fields:       req.Fields,
	})
	if err != nil {
		h.logger.Error("failed to encode document job", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	job := &Job{
		ID:           payload.ID,
		TemplateName: payload.TemplateName,
		PatientID:    payload.PatientID,
		Fields:       payload.Fields,
	}
	if err := h.store.PutPending(r.Context(), job); err != nil {
		h.logger.Error("failed to persist document job", "error", err, "job_id", payload.ID)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Send(r.Context(), body); err != nil {
		h.logger.Error("failed to enqueue document job", "error", err, "job_id", payload.ID)
		if storeErr := h.store.MarkFailed(r.Context(), payload.ID, "failed to enqueue render request"); storeErr != nil {
			h.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
		jsonError(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": payload.ID,
		"status": JobStatusPending,
	})
}

// GetJob returns the current state of one document job.
// GET /api/v1/documents/jobs/{jobID}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		jsonError(w, "job id required", http.StatusBadRequest)
		return
	}

	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			jsonError(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch document job", "error", err, "job_id", jobID)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
