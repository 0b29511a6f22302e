package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmixpanel",
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Number of resource writes by result (ok, error).",
		}, []string{"resource", "result"},
	)
	writerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vmixpanel",
			Subsystem: "writer",
			Name:      "retries_total",
			Help:      "Number of write retries caused by transient busy errors.",
		},
	)
	writerAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vmixpanel",
			Subsystem: "writer",
			Name:      "attempts",
			Help:      "Attempts needed per completed write call.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		},
	)
	instanceConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmixpanel",
			Subsystem: "instance",
			Name:      "conflicts_total",
			Help:      "Occupied-port events at startup by operator choice.",
		}, []string{"choice"},
	)
	reaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vmixpanel",
			Subsystem: "reaper",
			Name:      "terminated_total",
			Help:      "Processes terminated to free the listening port.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmixpanel",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status code.",
		}, []string{"route", "code"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{storeWrites, writerRetries, writerAttempts, instanceConflicts, reaped, httpRequests}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStoreWrite(resource string, ok bool) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	storeWrites.WithLabelValues(resource, result).Inc()
}

func IncWriterRetry() {
	if regOK.Load() {
		writerRetries.Inc()
	}
}

func ObserveWriterAttempts(n int) {
	if regOK.Load() {
		writerAttempts.Observe(float64(n))
	}
}

func IncInstanceConflict(choice string) {
	if regOK.Load() {
		instanceConflicts.WithLabelValues(choice).Inc()
	}
}

func AddReaped(n int) {
	if regOK.Load() && n > 0 {
		reaped.Add(float64(n))
	}
}

func IncHTTPRequest(route string, code int) {
	if regOK.Load() {
		httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}
