package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_analyses_total",
		Help: "Total number of analyses finished, by outcome and prediction",
	}, []string{"outcome", "prediction"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_analysis_duration_seconds",
		Help:    "Duration of the analysis pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage", "media_kind"})

	FramesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_frames_analyzed_total",
		Help: "Total number of sampled video frames scored by the classifier",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_frames_skipped_total",
		Help: "Total number of sampled video frames that could not be decoded",
	})

	ProtectedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_protected_files_total",
		Help: "Total number of analyzed files encrypted at rest",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_active_workers",
		Help: "Number of currently active workers analyzing media",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
