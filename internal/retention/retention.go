// Package retention runs the scheduled bulk deletion of aged telemetry.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"smtrack.dev/telemetry-hub/internal/store"
)

// Schedule is the default deletion schedule: every midnight.
const Schedule = "0 0 * * *"

// Job deletes device logs and notifications older than the start of the
// current day.
type Job struct {
	logger        *slog.Logger
	logs          store.LogRepository
	notifications store.NotificationRepository
	cron          *cron.Cron
	now           func() time.Time
}

// JobConfig holds the configuration for the retention Job.
type JobConfig struct {
	Logger        *slog.Logger
	Logs          store.LogRepository
	Notifications store.NotificationRepository
	// Now overrides the clock used to compute the cutoff. Defaults to time.Now.
	Now func() time.Time
}

// NewJob creates a retention job.
func NewJob(cfg *JobConfig) (*Job, error) {
	if cfg == nil {
		return nil, errors.New("retention config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Logs == nil {
		return nil, errors.New("log repository cannot be nil")
	}

	if cfg.Notifications == nil {
		return nil, errors.New("notification repository cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Job{
		logger:        cfg.Logger,
		logs:          cfg.Logs,
		notifications: cfg.Notifications,
		cron:          cron.New(),
		now:           now,
	}, nil
}

// Start schedules the job and starts the cron runner.
func (j *Job) Start() error {
	_, err := j.cron.AddFunc(Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.Run(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("retention job scheduled", "schedule", Schedule)
	return nil
}

// Run performs one deletion pass. Failures are logged, never propagated;
// a missed pass is retried at the next tick.
func (j *Job) Run(ctx context.Context) {
	cutoff := j.cutoff()

	logCount, err := j.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to delete aged device logs", "error", err)
		return
	}

	notificationCount, err := j.notifications.DeleteBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to delete aged notifications", "error", err)
		return
	}

	j.logger.Info("retention pass completed",
		"cutoff", cutoff,
		"logs_deleted", logCount,
		"notifications_deleted", notificationCount,
	)
}

// cutoff is the start of the current day in UTC.
func (j *Job) cutoff() time.Time {
	now := j.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Stop stops the cron runner and waits for a running pass to finish.
func (j *Job) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.logger.Info("retention job stopped")
}
