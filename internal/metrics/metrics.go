// Package metrics exposes prometheus instrumentation for the schedulers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors served on /metrics.
type Metrics struct {
	CyclesTotal       prometheus.Counter
	CycleRestarts     prometheus.Counter
	RefreshTotal      *prometheus.CounterVec
	SubmitAttempts    prometheus.Counter
	SubmitSuccesses   prometheus.Counter
	AttendanceRuns    prometheus.Counter
	AccountsTracked   prometheus.Gauge
	NextCycleUnixTime prometheus.Gauge
}

// New registers all collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autocheckin_cycles_total",
			Help: "Completed check-in scheduler cycles.",
		}),
		CycleRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autocheckin_cycle_restarts_total",
			Help: "Scheduler loop restarts after an escaped failure.",
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autocheckin_session_refresh_total",
			Help: "Session refresh attempts by result.",
		}, []string{"result"}),
		SubmitAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autocheckin_code_attempts_total",
			Help: "Individual code submission attempts.",
		}),
		SubmitSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autocheckin_checkins_total",
			Help: "Successful event check-ins.",
		}),
		AttendanceRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autocheckin_attendance_runs_total",
			Help: "Attendance fetch batches executed.",
		}),
		AccountsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autocheckin_accounts",
			Help: "Accounts currently tracked in the state store.",
		}),
		NextCycleUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autocheckin_next_cycle_unix_seconds",
			Help: "Scheduled time of the next check-in cycle.",
		}),
	}
	reg.MustRegister(
		m.CyclesTotal, m.CycleRestarts, m.RefreshTotal,
		m.SubmitAttempts, m.SubmitSuccesses, m.AttendanceRuns,
		m.AccountsTracked, m.NextCycleUnixTime,
	)
	return m
}
