package obl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeScratch  = "scratch"
	modeCached   = "cached"
	modePairwise = "pairwise"
)

//Metrics counts statistics calculations. A nil *Metrics records nothing.
type Metrics struct {
	statsCalcTotal     *prometheus.CounterVec
	statsCalcDocuments *prometheus.CounterVec
	statsCalcDuration  *prometheus.HistogramVec
	cacheEvictions     prometheus.Counter
	splitsScored       prometheus.Counter
}

//NewMetrics registers the scoring metrics in reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		statsCalcTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oblivious_stats_calc_total",
			Help: "Statistics calculations by mode",
		}, []string{"mode"}),
		statsCalcDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oblivious_stats_calc_documents_total",
			Help: "Documents aggregated into bucket statistics by mode",
		}, []string{"mode"}),
		statsCalcDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oblivious_stats_calc_duration_seconds",
			Help:    "Statistics calculation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"mode"}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "oblivious_stats_cache_evictions_total",
			Help: "Split ensembles evicted from the depth cache",
		}),
		splitsScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "oblivious_splits_scored_total",
			Help: "Split candidates scored",
		}),
	}
}

func (metrics *Metrics) observeStatsCalc(mode string, docCount int, started time.Time) {
	if metrics == nil {
		return
	}
	metrics.statsCalcTotal.WithLabelValues(mode).Inc()
	metrics.statsCalcDocuments.WithLabelValues(mode).Add(float64(docCount))
	metrics.statsCalcDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

func (metrics *Metrics) observeEviction() {
	if metrics == nil {
		return
	}
	metrics.cacheEvictions.Inc()
}

func (metrics *Metrics) observeSplitsScored(count int) {
	if metrics == nil {
		return
	}
	metrics.splitsScored.Add(float64(count))
}
