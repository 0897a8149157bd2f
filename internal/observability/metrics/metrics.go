package metrics

import "github.com/prometheus/client_golang/prometheus"

// PredictionMetrics exposes counters/histograms for the prediction façade.
type PredictionMetrics struct {
	cacheHits           *prometheus.CounterVec
	cacheMisses         prometheus.Counter
	computeLatency      *prometheus.HistogramVec
	persistenceFailures *prometheus.CounterVec
}

func NewPredictionMetrics(reg prometheus.Registerer) *PredictionMetrics {
	m := &PredictionMetrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "prediction",
			Name:      "cache_hits_total",
			Help:      "Total prediction cache hits by layer",
		}, []string{"layer"}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "prediction",
			Name:      "cache_misses_total",
			Help:      "Total prediction cache misses",
		}),
		computeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Subsystem: "prediction",
			Name:      "compute_latency_seconds",
			Help:      "Latency of prediction computation on cache miss",
			Buckets:   prometheus.DefBuckets,
		}, []string{"prediction_type"}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "prediction",
			Name:      "persistence_failures_total",
			Help:      "Total best-effort cache/log write failures",
		}, []string{"path"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.computeLatency, m.persistenceFailures)
	return m
}

func (m *PredictionMetrics) ObserveCacheHit(layer string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(layer).Inc()
}

func (m *PredictionMetrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *PredictionMetrics) ObserveComputeDuration(predictionType string, seconds float64) {
	if m == nil {
		return
	}
	m.computeLatency.WithLabelValues(predictionType).Observe(seconds)
}

func (m *PredictionMetrics) ObservePersistenceFailure(path string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(path).Inc()
}

// RecoveryMetrics exposes counters for OCR exception routing.
type RecoveryMetrics struct {
	exceptionsTotal *prometheus.CounterVec
	strategiesTotal *prometheus.CounterVec
}

func NewRecoveryMetrics(reg prometheus.Registerer) *RecoveryMetrics {
	m := &RecoveryMetrics{
		exceptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "recovery",
			Name:      "exceptions_total",
			Help:      "Total document exceptions by type and resolution state",
		}, []string{"exception_type", "state"}),
		strategiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "recovery",
			Name:      "strategies_total",
			Help:      "Total recovery strategy attempts by outcome",
		}, []string{"strategy", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.exceptionsTotal, m.strategiesTotal)
	return m
}

func (m *RecoveryMetrics) ObserveException(exceptionType, state string) {
	if m == nil {
		return
	}
	m.exceptionsTotal.WithLabelValues(exceptionType, state).Inc()
}

func (m *RecoveryMetrics) ObserveStrategy(strategy, outcome string) {
	if m == nil {
		return
	}
	m.strategiesTotal.WithLabelValues(strategy, outcome).Inc()
}

// AlertMetrics exposes counters for risk alert dispatch.
type AlertMetrics struct {
	dispatchedTotal *prometheus.CounterVec
	suppressedTotal *prometheus.CounterVec
}

func NewAlertMetrics(reg prometheus.Registerer) *AlertMetrics {
	m := &AlertMetrics{
		dispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "alerts",
			Name:      "dispatched_total",
			Help:      "Total risk alerts dispatched by channel and status",
		}, []string{"channel", "status"}),
		suppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total risk alerts suppressed by reason",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchedTotal, m.suppressedTotal)
	return m
}

func (m *AlertMetrics) ObserveDispatch(channel, status string) {
	if m == nil {
		return
	}
	m.dispatchedTotal.WithLabelValues(channel, status).Inc()
}

func (m *AlertMetrics) ObserveSuppressed(reason string) {
	if m == nil {
		return
	}
	m.suppressedTotal.WithLabelValues(reason).Inc()
}

// JobMetrics exposes counters/histograms for document job processing.
type JobMetrics struct {
	jobsTotal       *prometheus.CounterVec
	processingTime  prometheus.Histogram
	queueDepthGauge prometheus.Gauge
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	m := &JobMetrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "docjobs",
			Name:      "jobs_total",
			Help:      "Total document jobs by terminal status",
		}, []string{"status"}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Subsystem: "docjobs",
			Name:      "processing_seconds",
			Help:      "Wall time spent processing one document job",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinicflow",
			Subsystem: "docjobs",
			Name:      "queue_depth",
			Help:      "Approximate number of jobs waiting in the queue",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.jobsTotal, m.processingTime, m.queueDepthGauge)
	return m
}

func (m *JobMetrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

func (m *JobMetrics) ObserveProcessing(seconds float64) {
	if m == nil {
		return
	}
	m.processingTime.Observe(seconds)
}

func (m *JobMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepthGauge.Set(float64(depth))
}
