package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesRead = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "lad_lines_read_total", Help: "Lines read from log sources"},
	)
	LinesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "lad_lines_dropped_total", Help: "Lines without a recognizable timestamp"},
	)
	RecordsByFormat = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lad_records_total", Help: "Classified records per detected format"},
		[]string{"format"},
	)
	Windows = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "lad_windows_scored_total", Help: "Feature windows scored"},
	)
	Anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lad_anomalies_total", Help: "Windows labeled anomalous"},
		[]string{"model"},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lad_cache_lookups_total", Help: "Record cache lookups by result"},
		[]string{"result"},
	)
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lad_analysis_duration_seconds",
			Help:    "End-to-end duration of one analysis run",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(LinesRead, LinesDropped, RecordsByFormat, Windows, Anomalies, CacheLookups, AnalysisDuration)
}

func Handler() http.Handler { return promhttp.Handler() }
