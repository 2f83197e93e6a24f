// Package telemetry exposes operational counters for labconf components as
// Prometheus metrics. All Record methods are safe on a nil *Metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labconf"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics tracks config, backup and restore activity.
type Metrics struct {
	registry *prometheus.Registry

	ConfigUpdates    *prometheus.CounterVec
	BackupUploads    *prometheus.CounterVec
	BackupBytes      prometheus.Counter
	IntegrityChecks  *prometheus.CounterVec
	Restores         *prometheus.CounterVec
	RollbackFailures prometheus.Counter
	OpDuration       *prometheus.HistogramVec
	JobRuns          *prometheus.CounterVec
	JobLastSuccess   *prometheus.GaugeVec
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConfigUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_updates_total",
			Help:      "Config update attempts by result.",
		}, []string{"result"}),
		BackupUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_uploads_total",
			Help:      "Backup uploads by result.",
		}, []string{"result"}),
		BackupBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_uploaded_bytes_total",
			Help:      "Bytes uploaded to remote backup storage.",
		}),
		IntegrityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_integrity_checks_total",
			Help:      "Checksum verifications by outcome (valid, mismatch, error).",
		}, []string{"outcome"}),
		Restores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore operations by terminal status.",
		}, []string{"status"}),
		RollbackFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_rollback_failures_total",
			Help:      "Restores whose rollback failed. Any non-zero value needs operator attention.",
		}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of backup, restore and impact operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		JobLastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_job_last_success_timestamp_seconds",
			Help:      "Unix time of each job's last successful run.",
		}, []string{"job"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// RecordConfigUpdate records an update attempt.
func (m *Metrics) RecordConfigUpdate(ok bool) {
	if m == nil {
		return
	}
	m.ConfigUpdates.WithLabelValues(result(ok)).Inc()
}

// RecordBackupUpload records an upload attempt and, on success, its size.
func (m *Metrics) RecordBackupUpload(ok bool, size int64) {
	if m == nil {
		return
	}
	m.BackupUploads.WithLabelValues(result(ok)).Inc()
	if ok && size > 0 {
		m.BackupBytes.Add(float64(size))
	}
}

// RecordIntegrityCheck records a verification outcome.
func (m *Metrics) RecordIntegrityCheck(outcome string) {
	if m == nil {
		return
	}
	m.IntegrityChecks.WithLabelValues(outcome).Inc()
}

// RecordRestore records a restore's terminal status.
func (m *Metrics) RecordRestore(status string) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(status).Inc()
}

// RecordRollbackFailure counts an unrecoverable restore.
func (m *Metrics) RecordRollbackFailure() {
	if m == nil {
		return
	}
	m.RollbackFailures.Inc()
}

// ObserveDuration records how long an operation took since start.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordJobRun records one run of a scheduled job.
func (m *Metrics) RecordJobRun(job string, ok bool, at time.Time) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, result(ok)).Inc()
	if ok {
		m.JobLastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
	}
}
