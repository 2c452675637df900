package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"autocheckin/internal/attendance"
	"autocheckin/internal/metrics"
)

// Attendance ticks the attendance sync on the hour. The sync applies its own
// 24 hour gate, so most ticks are no-ops; the hourly cadence just bounds how
// stale the gate check can get.
type Attendance struct {
	sync    *attendance.Sync
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewAttendance creates the attendance tick.
func NewAttendance(sync *attendance.Sync, m *metrics.Metrics, log zerolog.Logger) *Attendance {
	return &Attendance{sync: sync, metrics: m, log: log}
}

// Run schedules the hourly tick and blocks until ctx is canceled.
func (a *Attendance) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc("0 * * * *", func() {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error().Interface("panic", r).Msg("attendance tick panicked")
			}
		}()
		if err := a.sync.RunAll(ctx, false); err != nil {
			a.log.Error().Err(err).Msg("attendance fetch cycle failed")
			return
		}
		a.metrics.AttendanceRuns.Inc()
	})
	if err != nil {
		a.log.Error().Err(err).Msg("attendance schedule invalid")
		return
	}

	a.log.Info().Msg("attendance scheduler running")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}
