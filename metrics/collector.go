package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Collector interface {
	ApiErrorOccurred()
	SimulationRun()
	ViolationRecorded(kind string)
	EntityBanned(role string)
	MeasureRequestDuration(start time.Time, method string)
}

type DefaultCollector struct {
	apiErrorsCounter  prometheus.Counter
	simulationsRun    prometheus.Counter
	violationCounters *prometheus.CounterVec
	bannedCounters    *prometheus.CounterVec
	requestDurations  *prometheus.HistogramVec
}

func NewCollector(logger zerolog.Logger) Collector {
	apiErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Total number of errors returned by the endpoint resolvers",
	})

	simulationsRun := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validation_simulations_total",
		Help: "Total number of validation-phase simulations run",
	})

	violationCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_violations_total",
		Help: "Total number of EIP-7562 rule violations recorded",
	}, []string{"kind"})

	bannedCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reputation_bans_hit_total",
		Help: "Total number of operations rejected because an entity is banned",
	}, []string{"role"})

	requestDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Duration of requests made to the endpoint resolvers",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	metrics := []prometheus.Collector{
		apiErrors,
		simulationsRun,
		violationCounters,
		bannedCounters,
		requestDurations,
	}
	if err := registerMetrics(logger, metrics...); err != nil {
		logger.Err(err).Msg("failed to register metrics")
		return NopCollector
	}

	return &DefaultCollector{
		apiErrorsCounter:  apiErrors,
		simulationsRun:    simulationsRun,
		violationCounters: violationCounters,
		bannedCounters:    bannedCounters,
		requestDurations:  requestDurations,
	}
}

func registerMetrics(logger zerolog.Logger, metrics ...prometheus.Collector) error {
	for _, m := range metrics {
		if err := prometheus.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *DefaultCollector) ApiErrorOccurred() {
	c.apiErrorsCounter.Inc()
}

func (c *DefaultCollector) SimulationRun() {
	c.simulationsRun.Inc()
}

func (c *DefaultCollector) ViolationRecorded(kind string) {
	c.violationCounters.With(prometheus.Labels{"kind": kind}).Inc()
}

func (c *DefaultCollector) EntityBanned(role string) {
	c.bannedCounters.With(prometheus.Labels{"role": role}).Inc()
}

func (c *DefaultCollector) MeasureRequestDuration(start time.Time, method string) {
	c.requestDurations.
		With(prometheus.Labels{"method": method}).
		Observe(time.Since(start).Seconds())
}
