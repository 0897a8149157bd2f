// Package main runs smoke tests against a deployed insight engine.
//
// Scenarios cover the public prediction surface and the admin review queue:
//   - Health endpoint
//   - High-risk no-show prediction (computed path)
//   - Cache idempotence (second identical request served from cache)
//   - Prior authorization recommendation (routine, approval-heavy history)
//   - Schedule optimization for a small request batch
//   - Document extraction with echo of the document id
//   - Admin review queue listing (requires ADMIN_JWT_SECRET)
//
// Usage:
//
//	API_BASE_URL=... go run scripts/e2e/run_e2e.go [scenario-name]
//	API_BASE_URL=... go run scripts/e2e/run_e2e.go                    # runs all
//	API_BASE_URL=... go run scripts/e2e/run_e2e.go prediction-cache   # runs one
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go admin-reviews
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const requestTimeout = 15 * time.Second

var (
	apiBase     string
	adminSecret string
	runID       string
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func postJSON(path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, apiBase+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func getJSON(path, bearer string, out any) (int, error) {
	req, err := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if err != nil {
		return 0, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return doJSON(req, out)
}

func doJSON(req *http.Request, out any) (int, error) {
	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w (body: %s)", req.URL.Path, err, raw)
		}
	}
	return resp.StatusCode, nil
}

func mintAdminToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "smoke",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(adminSecret))
}

func highRiskPayload(appointmentID string) map[string]any {
	return map[string]any{
		"appointment_id":              appointmentID,
		"patient_id":                  "smoke-patient",
		"previous_no_shows":           3,
		"appointment_hour":            8,
		"appointment_day_of_week":     1,
		"days_since_last_appointment": 30,
	}
}

type noShowResponse struct {
	Prediction struct {
		RiskScore     float64  `json:"risk_score"`
		RiskLevel     string   `json:"risk_level"`
		Interventions []string `json:"interventions"`
	} `json:"prediction"`
	Confidence  float64 `json:"confidence"`
	CacheSource string  `json:"cache_source"`
}

func scenarioHealth(t *T) {
	var resp map[string]string
	status, err := getJSON("/healthz", "", &resp)
	if err != nil {
		t.fatalf("health request: %v", err)
		return
	}
	t.check("status 200", status == http.StatusOK)
	t.check("body reports ok", resp["status"] == "ok")
}

func scenarioNoShowHighRisk(t *T) {
	var resp noShowResponse
	status, err := postJSON("/api/v1/predictions/no-show", highRiskPayload("smoke-"+runID+"-risk"), &resp)
	if err != nil {
		t.fatalf("no-show request: %v", err)
		return
	}
	t.check("status 200", status == http.StatusOK)
	t.check("risk level high", resp.Prediction.RiskLevel == "high")
	t.check("risk score clamped", resp.Prediction.RiskScore > 0 && resp.Prediction.RiskScore <= 0.95)
	t.check("interventions present", len(resp.Prediction.Interventions) > 0)
	t.check("confidence reported", resp.Confidence > 0)
}

func scenarioPredictionCache(t *T) {
	payload := highRiskPayload("smoke-" + runID + "-cache")

	var first noShowResponse
	if _, err := postJSON("/api/v1/predictions/no-show", payload, &first); err != nil {
		t.fatalf("first request: %v", err)
		return
	}
	var second noShowResponse
	if _, err := postJSON("/api/v1/predictions/no-show", payload, &second); err != nil {
		t.fatalf("second request: %v", err)
		return
	}

	t.check("scores identical", first.Prediction.RiskScore == second.Prediction.RiskScore)
	t.check("second served from cache", second.CacheSource != "computed")
}

func scenarioPriorAuth(t *T) {
	var resp struct {
		Recommendation struct {
			ApprovalProbability   float64  `json:"approval_probability"`
			Approach              string   `json:"recommended_approach"`
			TimelineDays          int      `json:"timeline_days"`
			RequiredDocumentation []string `json:"required_documentation"`
		} `json:"recommendation"`
		CacheSource string `json:"cache_source"`
	}
	status, err := postJSON("/api/v1/predictions/authorization", map[string]any{
		"patient_id":     "smoke-patient",
		"procedure_code": "70553",
		"urgency":        "routine",
		"history":        map[string]any{"approved_count": 1, "denied_count": 0},
	}, &resp)
	if err != nil {
		t.fatalf("authorization request: %v", err)
		return
	}

	rec := resp.Recommendation
	t.check("status 200", status == http.StatusOK)
	t.check("approval probability 0.70", rec.ApprovalProbability > 0.699 && rec.ApprovalProbability < 0.701)
	t.check("standard approach", rec.Approach == "standard")
	t.check("three day timeline", rec.TimelineDays == 3)
	t.check("documentation listed", len(rec.RequiredDocumentation) > 0)
}

func scenarioScheduleOptimize(t *T) {
	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	var resp struct {
		Optimization struct {
			Assignments     []map[string]any `json:"assignments"`
			UtilizationRate float64          `json:"utilization_rate"`
		} `json:"optimization"`
	}
	status, err := postJSON("/api/v1/predictions/schedule", map[string]any{
		"provider_id": "prov-smoke",
		"requests": []map[string]any{
			{"request_id": "req-1", "patient_id": "pat-1", "duration_mins": 30},
			{"request_id": "req-2", "patient_id": "pat-2", "duration_mins": 45},
		},
		"date_range": map[string]any{
			"start": start.Format(time.RFC3339),
			"end":   start.Add(8 * time.Hour).Format(time.RFC3339),
		},
	}, &resp)
	if err != nil {
		t.fatalf("schedule request: %v", err)
		return
	}

	t.check("status 200", status == http.StatusOK)
	t.check("all requests assigned", len(resp.Optimization.Assignments) == 2)
	t.check("utilization reported", resp.Optimization.UtilizationRate > 0)
}

func scenarioDocumentExtract(t *T) {
	docID := "smoke-" + runID + "-doc"
	var resp struct {
		Extraction struct {
			DocumentID string  `json:"document_id"`
			Confidence float64 `json:"confidence"`
		} `json:"extraction"`
		CacheSource string `json:"cache_source"`
	}
	status, err := postJSON("/api/v1/documents/"+docID+"/extract", map[string]any{}, &resp)
	if err != nil {
		t.fatalf("extract request: %v", err)
		return
	}

	t.check("status 200", status == http.StatusOK)
	t.check("document id echoed", resp.Extraction.DocumentID == docID)
	t.check("confidence in range", resp.Extraction.Confidence > 0 && resp.Extraction.Confidence <= 1)
}

func scenarioAdminReviews(t *T) {
	if adminSecret == "" {
		fmt.Println("    SKIP: ADMIN_JWT_SECRET not set")
		return
	}
	token, err := mintAdminToken()
	if err != nil {
		t.fatalf("mint token: %v", err)
		return
	}

	var resp struct {
		Reviews []map[string]any `json:"reviews"`
	}
	status, err := getJSON("/admin/reviews", token, &resp)
	if err != nil {
		t.fatalf("reviews request: %v", err)
		return
	}
	t.check("status 200", status == http.StatusOK)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}
	adminSecret = os.Getenv("ADMIN_JWT_SECRET")
	runID = fmt.Sprintf("%d", time.Now().UnixNano())

	scenarios := []scenario{
		{"health", scenarioHealth},
		{"no-show-high-risk", scenarioNoShowHighRisk},
		{"prediction-cache", scenarioPredictionCache},
		{"prior-auth-standard", scenarioPriorAuth},
		{"schedule-optimize", scenarioScheduleOptimize},
		{"document-extract", scenarioDocumentExtract},
		{"admin-reviews", scenarioAdminReviews},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	for _, sc := range scenarios {
		if filter != "" && sc.Name != filter {
			continue
		}
		fmt.Printf("==> %s\n", sc.Name)
		t := &T{name: sc.Name}
		sc.Fn(t)
		totalPassed += t.passed
		totalFailed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
