package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	QuestionsTotal   *prometheus.CounterVec
	QuestionDuration prometheus.Histogram
	SubQueryRetries  *prometheus.CounterVec
	AnswerConfidence prometheus.Histogram
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
}

// NewMetrics creates and registers the collectors. reg may be nil to use the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		QuestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "questions_total",
			Help:      "Questions answered, labeled by terminal status.",
		}, []string{"status"}),
		QuestionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finsight",
			Name:      "question_duration_seconds",
			Help:      "End-to-end question latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SubQueryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "subquery_retries_total",
			Help:      "Validator retries, labeled by task category.",
		}, []string{"category"}),
		AnswerConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finsight",
			Name:      "answer_confidence",
			Help:      "Final answer confidence distribution.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "answer_cache_hits_total",
			Help:      "Answer cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Name:      "answer_cache_misses_total",
			Help:      "Answer cache misses.",
		}),
	}
	reg.MustRegister(m.QuestionsTotal, m.QuestionDuration, m.SubQueryRetries,
		m.AnswerConfidence, m.CacheHits, m.CacheMisses)
	return m
}
