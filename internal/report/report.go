// Package report periodically publishes fleet statistics to the metrics
// registry and the log.
package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
)

// FleetCounter exposes the counts the stats are derived from.
type FleetCounter interface {
	Len() int
	ActiveLeaks() int
}

// Reporter runs Report on a cron schedule.
type Reporter struct {
	fleet   FleetCounter
	metrics *observability.Metrics
	logger  *slog.Logger
	clock   clockwork.Clock

	cron     *cron.Cron
	schedule string
}

// New validates the schedule and returns an idle reporter. The schedule is a
// standard five-field cron spec or a descriptor such as "@every 1m".
func New(schedule string, fleet FleetCounter, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) (*Reporter, error) {
	c := cron.New()
	r := &Reporter{
		fleet:    fleet,
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
		cron:     c,
		schedule: schedule,
	}
	if _, err := c.AddFunc(schedule, func() { r.Report() }); err != nil {
		return nil, fmt.Errorf("parse stats schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Report computes the current stats once and publishes them.
func (r *Reporter) Report() domain.Stats {
	stats := domain.ComputeStats(r.fleet.Len(), r.fleet.ActiveLeaks())
	r.metrics.ActiveLeaks.Set(float64(stats.ActiveLeaks))
	r.logger.Info("fleet stats",
		"total_meters", stats.TotalMeters,
		"active_leaks", stats.ActiveLeaks,
		"water_saved_today_m3", stats.WaterSavedTodayM3,
		"projected_yearly_saving_jod", stats.ProjectedYearlySavingJOD,
		"at", r.clock.Now().UTC(),
	)
	return stats
}

// Run reports once immediately, then on schedule until ctx is cancelled.
// It waits for an in-flight report before returning.
func (r *Reporter) Run(ctx context.Context) {
	r.Report()
	r.cron.Start()
	r.logger.Info("stats reporter started", "schedule", r.schedule)

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info("stats reporter stopped")
}
