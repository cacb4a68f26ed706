// Package telemetry exposes Prometheus collectors for the HTTP API, the
// interval parser and the reminder lifecycle.
package telemetry

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nptracker"

// Metrics holds the registered collectors. A nil *Metrics is valid and
// records nothing, so services can be built without telemetry in tests.
type Metrics struct {
	httpDuration    *prometheus.HistogramVec
	intervalParses  *prometheus.CounterVec
	reminderEvents  *prometheus.CounterVec
	registryLookups *prometheus.CounterVec
}

// New registers the collectors with reg. Collectors that are already
// registered are reused, so New may be called more than once per registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		intervalParses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cadence",
			Name:      "interval_parses_total",
			Help:      "Interval labels applied to start dates, by unit and whether the label was understood.",
		}, []string{"unit", "result"}),
		reminderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "events_total",
			Help:      "Reminder lifecycle events.",
		}, []string{"event"}),
		registryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasktype",
			Name:      "registry_lookups_total",
			Help:      "Task type stage lookups by cache result.",
		}, []string{"result"}),
	}

	var err error
	if m.httpDuration, err = register(reg, m.httpDuration); err != nil {
		return nil, err
	}
	if m.intervalParses, err = register(reg, m.intervalParses); err != nil {
		return nil, err
	}
	if m.reminderEvents, err = register(reg, m.reminderEvents); err != nil {
		return nil, err
	}
	if m.registryLookups, err = register(reg, m.registryLookups); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveInterval counts one application of an interval label.
func (m *Metrics) ObserveInterval(unit string, parsed bool) {
	if m == nil {
		return
	}
	result := "parsed"
	if !parsed {
		result = "fallback"
		unit = "none"
	}
	m.intervalParses.WithLabelValues(unit, result).Inc()
}

// ReminderEvent counts a reminder lifecycle event such as "created".
func (m *Metrics) ReminderEvent(event string) {
	if m == nil {
		return
	}
	m.reminderEvents.WithLabelValues(event).Inc()
}

// RegistryLookup counts a task type registry lookup ("hit", "miss",
// "not_found" or "error").
func (m *Metrics) RegistryLookup(result string) {
	if m == nil {
		return
	}
	m.registryLookups.WithLabelValues(result).Inc()
}

// Middleware records request latency labelled by the matched route rather
// than the raw path, keeping label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus exposition format for g.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
