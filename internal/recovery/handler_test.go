package recovery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

func newTestHandler(runner StrategyRunner, reviews ReviewCreator) *Handler {
	router := NewRouter(runner, reviews, nil, logging.Default())
	return NewHandler(router, nil, logging.Default())
}

func TestRouteExceptionEndpoint(t *testing.T) {
	runner := &stubRunner{outcomes: map[string]StrategyOutcome{
		StrategyEnhanceImage: {Confidence: 0.95},
	}}
	handler := newTestHandler(runner, &captureReviews{})

	body := `{"task_id":"task-1","document_id":"doc-1","exception_type":"low_confidence_ocr","confidence":0.8,"threshold":0.9}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/exceptions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.RouteException(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res Resolution
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, StateAutomaticRecovery, res.State)
	assert.Equal(t, StrategyEnhanceImage, res.Strategy)
}

func TestRouteExceptionEndpointValidation(t *testing.T) {
	handler := newTestHandler(SimulatedRunner{}, &captureReviews{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing task id", `{"exception_type":"system_error"}`},
		{"missing type", `{"task_id":"task-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/exceptions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.RouteException(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestReviewEndpointsWithoutStore(t *testing.T) {
	handler := newTestHandler(SimulatedRunner{}, &captureReviews{})

	r := chi.NewRouter()
	r.Get("/admin/reviews", handler.ListReviews)
	r.Get("/admin/reviews/stats", handler.ReviewStats)
	r.Post("/admin/reviews/{reviewID}/resolve", handler.ResolveReview)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/admin/reviews"},
		{http.MethodGet, "/admin/reviews/stats"},
		{http.MethodPost, "/admin/reviews/rev-1/resolve"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
	}
}

func TestListReviewsRejectsBadLimit(t *testing.T) {
	router := NewRouter(SimulatedRunner{}, nil, nil, logging.Default())
	handler := NewHandler(router, &ReviewStore{}, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/admin/reviews?limit=0", nil)
	rec := httptest.NewRecorder()
	handler.ListReviews(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/reviews?limit=9999", nil)
	rec = httptest.NewRecorder()
	handler.ListReviews(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
