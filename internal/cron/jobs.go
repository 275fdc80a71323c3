package cron

import (
	"context"
	"log/slog"
	"time"
)

// ConversationArchiver ends conversations idle past a cutoff.
// Defined here to avoid depending on the repository packages.
type ConversationArchiver interface {
	ArchiveIdle(ctx context.Context, before time.Time) (int, error)
}

// UsageRoller aggregates per-message usage into daily rollup rows.
type UsageRoller interface {
	RollupUsage(ctx context.Context, day time.Time) (int, error)
}

// Cleaner releases stale tracking state and reports how much was freed.
type Cleaner interface {
	Cleanup() int
}

// ArchiveJob ends durable conversations whose last activity is older
// than IdleAfter. Sessions expire on their own; this keeps the
// conversation store from accumulating open rows for users who left.
type ArchiveJob struct {
	Repo         ConversationArchiver
	IdleAfter    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "30 * * * *"
}

// Compile-time interface check.
var _ Job = (*ArchiveJob)(nil)

// Name implements Job.
func (j *ArchiveJob) Name() string { return "conversation_archive" }

// Schedule implements Job.
func (j *ArchiveJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "30 * * * *"
}

// Run archives conversations idle longer than IdleAfter.
func (j *ArchiveJob) Run(ctx context.Context) error {
	idle := j.IdleAfter
	if idle <= 0 {
		idle = 6 * time.Hour
	}
	n, err := j.Repo.ArchiveIdle(ctx, time.Now().Add(-idle))
	if err != nil {
		return err
	}
	if n > 0 {
		j.Logger.Info("cron: archived idle conversations", "count", n)
	}
	return nil
}

// RollupJob folds the previous day's per-message usage into the daily
// rollup table so billing review does not scan raw messages.
type RollupJob struct {
	Repo         UsageRoller
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "15 0 * * *"
}

// Compile-time interface check.
var _ Job = (*RollupJob)(nil)

// Name implements Job.
func (j *RollupJob) Name() string { return "usage_rollup" }

// Schedule implements Job.
func (j *RollupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "15 0 * * *"
}

// Run rolls up usage for the previous calendar day (UTC).
func (j *RollupJob) Run(ctx context.Context) error {
	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	n, err := j.Repo.RollupUsage(ctx, day)
	if err != nil {
		return err
	}
	j.Logger.Info("cron: usage rollup complete", "day", day.Format("2006-01-02"), "rows", n)
	return nil
}

// CleanupJob releases idle tracking state from in-memory components,
// such as rate limiter buckets for users who stopped sending.
type CleanupJob struct {
	Target       Cleaner
	JobName      string
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*CleanupJob)(nil)

// Name implements Job.
func (j *CleanupJob) Name() string {
	if j.JobName != "" {
		return j.JobName
	}
	return "state_cleanup"
}

// Schedule implements Job.
func (j *CleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run frees stale entries.
func (j *CleanupJob) Run(_ context.Context) error {
	if n := j.Target.Cleanup(); n > 0 {
		j.Logger.Debug("cron: cleaned stale entries", "job", j.Name(), "count", n)
	}
	return nil
}
