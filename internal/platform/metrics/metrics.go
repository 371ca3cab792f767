package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the form engine.
type Metrics struct {
	AnswersSaved       prometheus.Counter
	SaveBatches        prometheus.Counter
	ValidationFailures prometheus.Counter
	Submissions        *prometheus.CounterVec
	Unlocks            prometheus.Counter
	Completion         prometheus.Histogram
	SaveDuration       prometheus.Histogram
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		AnswersSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfile_answers_saved_total",
			Help: "Total number of individual field answers persisted",
		}),
		SaveBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfile_save_batches_total",
			Help: "Total number of accepted answer-save batches",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfile_validation_failures_total",
			Help: "Total number of rejected save batches (partial validation)",
		}),
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "taxfile_form_submissions_total",
			Help: "Form submission attempts by outcome",
		}, []string{"outcome"}),
		Unlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "taxfile_form_unlocks_total",
			Help: "Total number of admin unlocks of submitted forms",
		}),
		Completion: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxfile_form_completion_percent",
			Help:    "Completion percentage observed after each save",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 100},
		}),
		SaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxfile_save_duration_seconds",
			Help:    "Latency of answer-save calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveSubmission records a submission attempt outcome
// (accepted, incomplete, already_submitted).
func (m *Metrics) ObserveSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}
