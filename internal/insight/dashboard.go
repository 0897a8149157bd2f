package insight

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Full name of the façade's compute latency histogram as it appears in the
// gathered metric families.
const computeLatencyFamily = "clinicflow_prediction_compute_latency_seconds"

type dashboardDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type volumeRepo interface {
	PredictionVolumeByDay(ctx context.Context, start, end time.Time) ([]PredictionVolumeRow, error)
}

// PredictionVolumeRow is one day-and-type aggregate from the audit log.
type PredictionVolumeRow struct {
	Day           time.Time
	Type          string
	Count         int64
	AvgConfidence float64
}

// PredictionVolumeDay is the per-day series the dashboard renders.
type PredictionVolumeDay struct {
	Day      time.Time        `json:"-"`
	DayLabel string           `json:"day"`
	Total    int64            `json:"total"`
	ByType   map[string]int64 `json:"by_type,omitempty"`
}

// ComputeLatencySnapshot summarizes the in-process compute latency histogram
// aggregated across prediction types.
type ComputeLatencySnapshot struct {
	Total   int64                  `json:"total"`
	P90Ms   float64                `json:"p90_ms"`
	P95Ms   float64                `json:"p95_ms"`
	ByType  map[string]int64       `json:"samples_by_type,omitempty"`
	Buckets []ComputeLatencyBucket `json:"buckets,omitempty"`
}

// ComputeLatencyBucket is one non-cumulative histogram bucket. The final
// overflow bucket reuses the last finite bound and carries a ">Ns" label.
type ComputeLatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

// InsightsDashboard is the admin overview payload.
type InsightsDashboard struct {
	PeriodStart      string                 `json:"period_start"`
	PeriodEnd        string                 `json:"period_end"`
	TotalPredictions int64                  `json:"total_predictions"`
	ByType           map[string]int64       `json:"predictions_by_type"`
	AvgConfidence    map[string]float64     `json:"avg_confidence_by_type"`
	ComputeLatency   ComputeLatencySnapshot `json:"compute_latency"`
	Daily            []PredictionVolumeDay  `json:"daily"`
}

// DashboardRepository aggregates the prediction audit log for the admin
// dashboard.
type DashboardRepository struct {
	db dashboardDB
}

func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	if pool == nil {
		panic("insight: pgx pool required for dashboard")
	}
	return &DashboardRepository{db: pool}
}

func NewDashboardRepositoryWithDB(db dashboardDB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// PredictionVolumeByDay returns one row per day and prediction type inside
// [start, end), ordered by day.
func (r *DashboardRepository) PredictionVolumeByDay(ctx context.Context, start, end time.Time) ([]PredictionVolumeRow, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("insight: invalid dashboard time range")
	}

	query := `
		SELECT date_trunc('day', created_at) AS day,
		       prediction_type,
		       COUNT(*) AS predictions,
		       AVG(confidence) AS avg_confidence
		FROM prediction_log
		WHERE created_at >= $1
		  AND created_at < $2
		GROUP BY day, prediction_type
		ORDER BY day, prediction_type
	`

	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("insight: query prediction volumes: %w", err)
	}
	defer rows.Close()

	var results []PredictionVolumeRow
	for rows.Next() {
		var row PredictionVolumeRow
		var day time.Time
		if err := rows.Scan(&day, &row.Type, &row.Count, &row.AvgConfidence); err != nil {
			return nil, fmt.Errorf("insight: scan prediction volumes: %w", err)
		}
		row.Day = day.UTC()
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("insight: iterate prediction volumes: %w", err)
	}
	return results, nil
}

// DashboardHandler serves the admin insights overview.
type DashboardHandler struct {
	repo     volumeRepo
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

func NewDashboardHandler(repo volumeRepo, gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{
		repo:     repo,
		gatherer: gatherer,
		logger:   logger,
	}
}

// GetInsights returns prediction volume and latency metrics.
// GET /admin/insights
// Query params:
//   - start: RFC3339 timestamp (optional, requires end)
//   - end: RFC3339 timestamp (optional, requires start)
//   - days: integer window 1-90 (default 7) when start/end omitted
func (h *DashboardHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		jsonError(w, "dashboard disabled (db not configured)", http.StatusServiceUnavailable)
		return
	}

	start, end, err := parseInsightsWindow(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	volumes, err := h.repo.PredictionVolumeByDay(r.Context(), start, end)
	if err != nil {
		h.logger.Error("failed to query prediction volumes", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	byType := map[string]int64{}
	confidenceSums := map[string]float64{}
	var total int64
	daysByLabel := map[string]*PredictionVolumeDay{}
	for _, row := range volumes {
		total += row.Count
		byType[row.Type] += row.Count
		confidenceSums[row.Type] += row.AvgConfidence * float64(row.Count)

		label := row.Day.Format("2006-01-02")
		day, ok := daysByLabel[label]
		if !ok {
			day = &PredictionVolumeDay{Day: row.Day, DayLabel: label, ByType: map[string]int64{}}
			daysByLabel[label] = day
		}
		day.Total += row.Count
		day.ByType[row.Type] += row.Count
	}

	avgConfidence := make(map[string]float64, len(byType))
	for t, count := range byType {
		if count > 0 {
			avgConfidence[t] = confidenceSums[t] / float64(count)
		}
	}

	daily := make([]PredictionVolumeDay, 0, len(daysByLabel))
	for _, day := range daysByLabel {
		daily = append(daily, *day)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Day.Before(daily[j].Day) })
	daily = fillMissingDays(daily, start, end)

	resp := InsightsDashboard{
		PeriodStart:      start.UTC().Format(time.RFC3339),
		PeriodEnd:        end.UTC().Format(time.RFC3339),
		TotalPredictions: total,
		ByType:           byType,
		AvgConfidence:    avgConfidence,
		ComputeLatency:   snapshotComputeLatency(h.gatherer),
		Daily:            daily,
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseInsightsWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if (startRaw == "") != (endRaw == "") {
		return time.Time{}, time.Time{}, fmt.Errorf("both start and end must be provided, or neither")
	}
	if startRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time, use RFC3339 format")
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time, use RFC3339 format")
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
		}
		return start.UTC(), end.UTC(), nil
	}

	days := 7
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid days; must be 1-90")
		}
		days = parsed
	}

	now := nowFunc().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -days)
	return start, end, nil
}

func fillMissingDays(existing []PredictionVolumeDay, start, end time.Time) []PredictionVolumeDay {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	lookup := map[string]PredictionVolumeDay{}
	for _, d := range existing {
		lookup[d.Day.UTC().Format("2006-01-02")] = d
	}

	out := make([]PredictionVolumeDay, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		label := day.Format("2006-01-02")
		if found, ok := lookup[label]; ok {
			out = append(out, found)
			continue
		}
		out = append(out, PredictionVolumeDay{Day: day, DayLabel: label})
	}
	return out
}

// snapshotComputeLatency folds every prediction_type series of the compute
// latency histogram into one bucket distribution with interpolated p90/p95.
func snapshotComputeLatency(gatherer prometheus.Gatherer) ComputeLatencySnapshot {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return ComputeLatencySnapshot{}
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == computeLatencyFamily {
			family = mf
			break
		}
	}
	if family == nil {
		return ComputeLatencySnapshot{}
	}

	cumulativeByUpper := map[float64]uint64{}
	samplesByType := map[string]int64{}
	var sampleCount uint64

	for _, metric := range family.Metric {
		if metric == nil {
			continue
		}
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		if t := labelValue(metric, "prediction_type"); t != "" {
			samplesByType[t] += int64(h.GetSampleCount())
		}
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return ComputeLatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	buckets := make([]ComputeLatencyBucket, 0, len(uppers))
	var prev uint64
	var lastFiniteUpper float64
	for _, upper := range uppers {
		cum := cumulativeByUpper[upper]
		count := int64(cum)
		if cum >= prev {
			count = int64(cum - prev)
		}
		prev = cum

		if math.IsInf(upper, 1) {
			if count > 0 {
				buckets = append(buckets, ComputeLatencyBucket{
					LeSeconds: lastFiniteUpper,
					Label:     fmt.Sprintf(">%s", formatSeconds(lastFiniteUpper)),
					Count:     count,
				})
			}
			continue
		}
		lastFiniteUpper = upper
		buckets = append(buckets, ComputeLatencyBucket{LeSeconds: upper, Count: count})
	}

	return ComputeLatencySnapshot{
		Total:   int64(sampleCount),
		P90Ms:   histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		P95Ms:   histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		ByType:  samplesByType,
		Buckets: buckets,
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// histogramQuantile linearly interpolates quantile q inside the cumulative
// bucket counts. The +Inf bucket cannot be interpolated; a quantile landing
// there reports the last finite bound.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper, prevCum float64

	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		return prevUpper + fraction*(upper-prevUpper)
	}

	return uppers[len(uppers)-1]
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 1 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	if seconds < 10 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.0fs", seconds)
}
