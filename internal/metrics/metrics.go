package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transitrisk/internal/cache"
	"transitrisk/internal/domain"
	"transitrisk/internal/learner"
	"transitrisk/internal/stats"
)

// Collector satisfies the knowledge base, gatherer and learner observer interfaces.
type Collector struct {
	reg *prometheus.Registry

	Predictions        *prometheus.CounterVec // transport
	PredictionDuration prometheus.Histogram
	Probability        *prometheus.HistogramVec // transport

	IncidentsRecorded  *prometheus.CounterVec // transport, reason
	CacheInvalidations prometheus.Counter
	PersistOps         *prometheus.CounterVec // op, result

	Lookups *prometheus.CounterVec // kind: weather|events, outcome: ok|error|timeout

	LearnerSteps        prometheus.Counter
	LearnerMaterialized prometheus.Counter
	LearnerFetchErrs    prometheus.Counter
	SignalsFetched      prometheus.Counter

	StatIncidents        prometheus.Gauge
	StatTrendSlope       prometheus.Gauge
	StatTrendR2          prometheus.Gauge
	StatReasonCount      *prometheus.GaugeVec // reason
	StatWeatherDuration  *prometheus.GaugeVec // weather, seconds
	StatHourIncidents    *prometheus.GaugeVec // hour
	StatComputedUnixTime prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitrisk_predictions_total",
			Help: "Total delay predictions served.",
		}, []string{"transport"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitrisk_prediction_duration_seconds",
			Help:    "Time to gather context and score a prediction.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Probability: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transitrisk_prediction_probability",
			Help:    "Distribution of predicted delay probabilities.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"transport"}),
		IncidentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitrisk_incidents_recorded_total",
			Help: "Incidents appended to the history.",
		}, []string{"transport", "reason"}),
		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitrisk_cache_invalidated_entries_total",
			Help: "Pattern cache entries dropped by new incidents.",
		}),
		PersistOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitrisk_persist_operations_total",
			Help: "Incident history load and save operations.",
		}, []string{"op", "result"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitrisk_context_lookups_total",
			Help: "External context lookups by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LearnerSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitrisk_learner_steps_total",
			Help: "Learning ticks run.",
		}),
		LearnerMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitrisk_learner_materialized_steps_total",
			Help: "Learning ticks that recorded incidents.",
		}),
		LearnerFetchErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitrisk_learner_fetch_errors_total",
			Help: "Delay feed fetch errors.",
		}),
		SignalsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitrisk_feed_signals_total",
			Help: "Delay signals pulled from the feed.",
		}),
		StatIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitrisk_history_incidents",
			Help: "Incidents in the history at the last statistics refresh.",
		}),
		StatTrendSlope: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitrisk_history_daily_trend_slope",
			Help: "Change in incidents per day from a linear fit over daily counts.",
		}),
		StatTrendR2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitrisk_history_daily_trend_r2",
			Help: "Goodness of fit of the daily trend.",
		}),
		StatReasonCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitrisk_history_reason_incidents",
			Help: "Incidents in the history by reason.",
		}, []string{"reason"}),
		StatWeatherDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitrisk_history_weather_mean_duration_seconds",
			Help: "Mean incident duration by weather condition.",
		}, []string{"weather"}),
		StatHourIncidents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitrisk_history_hour_incidents",
			Help: "Incidents in the history by hour of day.",
		}, []string{"hour"}),
		StatComputedUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitrisk_history_statistics_computed_timestamp_seconds",
			Help: "Unix time of the last statistics refresh.",
		}),
	}

	reg.MustRegister(
		c.Predictions, c.PredictionDuration, c.Probability,
		c.IncidentsRecorded, c.CacheInvalidations, c.PersistOps,
		c.Lookups,
		c.LearnerSteps, c.LearnerMaterialized, c.LearnerFetchErrs, c.SignalsFetched,
		c.StatIncidents, c.StatTrendSlope, c.StatTrendR2,
		c.StatReasonCount, c.StatWeatherDuration, c.StatHourIncidents, c.StatComputedUnixTime,
	)

	return c
}

// WatchCache exports pattern cache counters read from fn at scrape time.
func (c *Collector) WatchCache(fn func() cache.Stats) {
	c.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "transitrisk_cache_entries",
			Help: "Pattern cache entries.",
		}, func() float64 { return float64(fn().Entries) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "transitrisk_cache_hits_total",
			Help: "Pattern cache hits.",
		}, func() float64 { return float64(fn().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "transitrisk_cache_misses_total",
			Help: "Pattern cache misses.",
		}, func() float64 { return float64(fn().Misses) }),
	)
}

func (c *Collector) ObservePrediction(tt domain.TransportType, probability float64, elapsed time.Duration) {
	c.Predictions.WithLabelValues(tt.String()).Inc()
	c.Probability.WithLabelValues(tt.String()).Observe(probability)
	c.PredictionDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveIncident(inc domain.HistoricalIncident, invalidated int) {
	c.IncidentsRecorded.WithLabelValues(inc.TransportType.String(), inc.Reason.String()).Inc()
	c.CacheInvalidations.Add(float64(invalidated))
}

func (c *Collector) ObservePersist(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.PersistOps.WithLabelValues(op, result).Inc()
}

func (c *Collector) ObserveLookup(kind, outcome string) {
	c.Lookups.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ObserveStep(result learner.StepResult) {
	c.LearnerSteps.Inc()
	c.SignalsFetched.Add(float64(result.Fetched))
	if result.Materialized {
		c.LearnerMaterialized.Inc()
	}
	if result.FetchErr != nil {
		c.LearnerFetchErrs.Inc()
	}
}

func (c *Collector) ObserveStatistics(s *stats.Statistics) {
	if s == nil {
		return
	}
	c.StatIncidents.Set(float64(s.Incidents))
	c.StatComputedUnixTime.Set(float64(s.ComputedAt.Unix()))
	if s.Trend != nil {
		c.StatTrendSlope.Set(s.Trend.Slope)
		c.StatTrendR2.Set(s.Trend.R2)
	}

	c.StatReasonCount.Reset()
	for _, rc := range s.Reasons {
		c.StatReasonCount.WithLabelValues(rc.Reason.String()).Set(float64(rc.Count))
	}
	c.StatWeatherDuration.Reset()
	for _, wi := range s.WeatherImpact {
		c.StatWeatherDuration.WithLabelValues(wi.Weather.String()).Set(float64(wi.MeanDuration))
	}
	for hour, n := range s.HourHistogram {
		c.StatHourIncidents.WithLabelValues(strconv.Itoa(hour)).Set(float64(n))
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
