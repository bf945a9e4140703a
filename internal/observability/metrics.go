package observability

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

const metricsNamespace = "tutorgraph"

// Metrics holds the counters and histograms for graph mutations. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Labels: op (stage, apply, reject, set_item_status), status (ok, noop, invalid_argument, not_found, conflict, io, error)
	ChangesetOps *prometheus.CounterVec
	// Labels: status
	ChangesetApplySeconds *prometheus.HistogramVec
	// Labels: code (hunk_context_mismatch, patch_target_missing, ...)
	PatchFailures *prometheus.CounterVec
	// Labels: op (preview, apply, undo), status
	MergeOps *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics creates and registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChangesetOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "changeset",
			Name:      "operations_total",
			Help:      "Changeset operations by kind and outcome",
		}, []string{"op", "status"}),
		ChangesetApplySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "changeset",
			Name:      "apply_duration_seconds",
			Help:      "Changeset apply latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"status"}),
		PatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "vaultpatch",
			Name:      "failures_total",
			Help:      "Vault patch failures by error code",
		}, []string{"code"}),
		MergeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "merge",
			Name:      "operations_total",
			Help:      "Concept merge operations by kind and outcome",
		}, []string{"op", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.ChangesetOps, m.ChangesetApplySeconds, m.PatchFailures, m.MergeOps)
	}
	return m
}

// Default returns the process-wide metrics registered on the default
// prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) ObserveChangesetOp(op, status string) {
	if m == nil {
		return
	}
	m.ChangesetOps.WithLabelValues(op, status).Inc()
}

func (m *Metrics) ObserveChangesetApply(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ChangesetOps.WithLabelValues("apply", status).Inc()
	m.ChangesetApplySeconds.WithLabelValues(status).Observe(dur.Seconds())
}

func (m *Metrics) IncPatchFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.PatchFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveMergeOp(op, status string) {
	if m == nil {
		return
	}
	m.MergeOps.WithLabelValues(op, status).Inc()
}

// StatusOf maps an operation error to the status label: its kind when it
// carries one, "error" otherwise.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case errors.Is(err, apperr.ErrIO):
		return "io"
	default:
		return "error"
	}
}
