// Package metrics exposes the daemon's Prometheus metrics on a dedicated
// registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/repair"
)

type Metrics struct {
	reg *prometheus.Registry

	httpCounter *prometheus.CounterVec

	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	repairEvents  *prometheus.CounterVec
	trashDeleted  prometheus.Counter
	trashFreed    prometheus.Counter
	sweepDuration prometheus.Histogram
	lastSweep     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.reg.MustRegister(collectors.NewGoCollector())

	m.httpCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudmaint_http_request_total",
		Help: "Count of HTTP requests",
	}, []string{"method", "path", "code"})
	m.reg.MustRegister(m.httpCounter)

	m.jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudmaint_jobs_total",
		Help: "Executed background jobs by class and outcome",
	}, []string{"class", "status"})
	m.reg.MustRegister(m.jobs)

	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudmaint_job_duration_seconds",
		Help:    "Duration of background job executions",
		Buckets: prometheus.ExponentialBucketsRange((10 * time.Millisecond).Seconds(), (600 * time.Second).Seconds(), 20),
	}, []string{"class"})
	m.reg.MustRegister(m.jobDuration)

	m.repairEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudmaint_repair_events_total",
		Help: "Events emitted by repair runs",
	}, []string{"event"})
	m.reg.MustRegister(m.repairEvents)

	m.trashDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloudmaint_trashbin_deleted_items_total",
		Help: "Trash bin items purged by expiry",
	})
	m.reg.MustRegister(m.trashDeleted)

	m.trashFreed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloudmaint_trashbin_freed_bytes_total",
		Help: "Bytes freed by trash bin expiry",
	})
	m.reg.MustRegister(m.trashFreed)

	m.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudmaint_trashbin_sweep_duration_seconds",
		Help:    "Duration of scheduled trash sweeps",
		Buckets: prometheus.ExponentialBucketsRange((10 * time.Millisecond).Seconds(), (60 * time.Second).Seconds(), 12),
	})
	m.reg.MustRegister(m.sweepDuration)

	m.lastSweep = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cloudmaint_trashbin_last_sweep_timestamp",
		Help: "Unix time of the last scheduled trash sweep",
	})
	m.reg.MustRegister(m.lastSweep)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveHTTP(method, path string, code int) {
	m.httpCounter.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
}

// ObserveJob records one job execution. A deferred job counts as "deferred".
func (m *Metrics) ObserveJob(class string, err error, elapsed time.Duration) {
	status := string(jobs.StatusSuccess)
	switch {
	case jobs.IsDeferred(err):
		status = "deferred"
	case err != nil:
		status = string(jobs.StatusFailed)
	}
	m.jobs.WithLabelValues(class, status).Inc()
	m.jobDuration.WithLabelValues(class).Observe(elapsed.Seconds())
}

func (m *Metrics) TrashItemsDeleted(count int, bytes int64) {
	m.trashDeleted.Add(float64(count))
	m.trashFreed.Add(float64(bytes))
}

func (m *Metrics) ObserveSweep(elapsed time.Duration) {
	m.sweepDuration.Observe(elapsed.Seconds())
	m.lastSweep.Set(float64(time.Now().Unix()))
}

func (m *Metrics) DispatchTyped(_ context.Context, event repair.Event) {
	m.repairEvents.WithLabelValues(event.EventName()).Inc()
}
