package recovery

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Handler exposes exception routing and the review queue over HTTP.
type Handler struct {
	router *Router
	store  *ReviewStore
	logger *logging.Logger
}

func NewHandler(router *Router, store *ReviewStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		router: router,
		store:  store,
		logger: logger,
	}
}

// RouteException accepts one exception and returns its resolution.
// POST /api/v1/documents/exceptions
func (h *Handler) RouteException(w http.ResponseWriter, r *http.Request) {
	var ex Exception
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if ex.TaskID == "" {
		jsonError(w, "task_id required", http.StatusBadRequest)
		return
	}
	if ex.Type == "" {
		jsonError(w, "exception_type required", http.StatusBadRequest)
		return
	}

	res := h.router.Route(r.Context(), ex)
	writeJSON(w, http.StatusOK, res)
}

// ListReviews returns pending review tasks, most urgent first.
// GET /admin/reviews?limit=50
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, "review queue disabled (db not configured)", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			jsonError(w, "invalid limit; must be 1-500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	tasks, err := h.store.ListPending(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list review tasks", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviews": tasks,
		"count":   len(tasks),
	})
}

// ResolveReview closes one review task.
// POST /admin/reviews/{reviewID}/resolve
func (h *Handler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, "review queue disabled (db not configured)", http.StatusServiceUnavailable)
		return
	}

	reviewID := chi.URLParam(r, "reviewID")
	if reviewID == "" {
		jsonError(w, "missing reviewID", http.StatusBadRequest)
		return
	}

	ok, err := h.store.Resolve(r.Context(), reviewID)
	if err != nil {
		h.logger.Error("failed to resolve review task", "review_id", reviewID, "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "review not found or already resolved", http.StatusNotFound)
		return
	}

	h.logger.Info("review task resolved", "review_id", reviewID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ReviewStats reports pending review counts by priority.
// GET /admin/reviews/stats
func (h *Handler) ReviewStats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, "review queue disabled (db not configured)", http.StatusServiceUnavailable)
		return
	}

	counts, err := h.store.PendingCounts(r.Context())
	if err != nil {
		h.logger.Error("failed to count review tasks", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending_total": total,
		"by_priority":   counts,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
