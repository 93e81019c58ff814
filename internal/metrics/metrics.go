// Package metrics holds the Prometheus collectors for todo operations and
// backup runs.
//
// The collectors are registered on a registry passed in by the caller rather
// than the global default one, so each test can build its own set without
// "duplicate metrics collector registration" panics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sakif/todo-tracker/internal/apperror"
)

// Outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeNotFound     = "not_found"
	OutcomeConflict     = "conflict"
	OutcomeBusy         = "busy"
	OutcomeSafetyBackup = "safety_backup_failed"
	OutcomeError        = "error"
)

type Metrics struct {
	operations     *prometheus.CounterVec
	backupRuns     *prometheus.CounterVec
	backupDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_operations_total",
			Help: "Todo CRUD operations by operation and outcome",
		}, []string{"op", "outcome"}),
		backupRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_backup_runs_total",
			Help: "Backup and restore runs by kind and outcome",
		}, []string{"kind", "outcome"}),
		backupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todo_backup_duration_seconds",
			Help:    "Time to take a snapshot or restore one",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
	}
}

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, apperror.ErrValidation):
		return OutcomeInvalid
	case errors.Is(err, apperror.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, apperror.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, apperror.ErrBusy):
		return OutcomeBusy
	case errors.Is(err, apperror.ErrSafetyBackup):
		return OutcomeSafetyBackup
	default:
		return OutcomeError
	}
}

// ObserveOperation counts one CRUD call. A nil *Metrics records nothing.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveBackup counts one backup or restore run and records how long it took.
func (m *Metrics) ObserveBackup(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.backupRuns.WithLabelValues(kind, Outcome(err)).Inc()
	m.backupDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
