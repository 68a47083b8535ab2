package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/metrics"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/robfig/cron/v3"
)

const (
	JobDetection  = "audit_detection"
	JobAuditPurge = "audit_purge"
)

// Config carries the job schedules in cron syntax (descriptors such as "@every 5m" accepted).
type Config struct {
	DetectionSchedule string
	PurgeSchedule     string
	AuditRetention    time.Duration
	JobTimeout        time.Duration
}

// Jobs holds the work run on a schedule.
type Jobs struct {
	detection portssvc.DetectionSvc
	retention portssvc.AuditRetentionSvc
	metrics   *metrics.CronJobMetrics
	logger    *slog.Logger
	cfg       Config
	clock     func() time.Time
}

// NewJobs wires the jobs to the services they drive.
func NewJobs(detection portssvc.DetectionSvc, retention portssvc.AuditRetentionSvc, jobMetrics *metrics.CronJobMetrics, logger *slog.Logger, cfg Config) *Jobs {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	return &Jobs{
		detection: detection,
		retention: retention,
		metrics:   jobMetrics,
		logger:    logger,
		cfg:       cfg,
		clock:     time.Now,
	}
}

// RunDetection evaluates the detection rules once.
func (j *Jobs) RunDetection() error {
	return j.run(JobDetection, func(ctx context.Context) error {
		flagged, err := j.detection.RunDetection(ctx, j.clock().UTC())
		if err != nil {
			return err
		}
		if len(flagged) > 0 {
			j.logger.Warn("Detection flagged suspicious activity", slog.Int("events", len(flagged)))
		}
		return nil
	})
}

// PurgeAudit discards low and medium events older than the retention period.
func (j *Jobs) PurgeAudit() error {
	return j.run(JobAuditPurge, func(ctx context.Context) error {
		purged, err := j.retention.PurgeOlderThan(ctx, j.cfg.AuditRetention, domain.SeverityHigh)
		if err != nil {
			return err
		}
		j.logger.Info("Audit retention purge finished", slog.Int64("purged", purged))
		return nil
	})
}

func (j *Jobs) run(job string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.JobTimeout)
	defer cancel()
	logger := j.logger.With(slog.String("job", job))
	ctx = middleware.WithLogger(ctx, logger)

	start := time.Now()
	err := fn(ctx)
	j.metrics.Observe(job, time.Since(start), err)
	if err != nil {
		logger.Error("Scheduled job failed", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", job, err)
	}
	return nil
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
}

// NewScheduler creates a scheduler whose panics are recovered and whose overlapping runs are skipped.
func NewScheduler(jobs *Jobs, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	return &Scheduler{cron: c, jobs: jobs, logger: logger}
}

// Start registers the jobs and starts the runner. An empty schedule disables its job.
func (s *Scheduler) Start() error {
	entries := []struct {
		name     string
		schedule string
		fn       func() error
	}{
		{JobDetection, s.jobs.cfg.DetectionSchedule, s.jobs.RunDetection},
		{JobAuditPurge, s.jobs.cfg.PurgeSchedule, s.jobs.PurgeAudit},
	}
	for _, e := range entries {
		if e.schedule == "" {
			s.logger.Info("Scheduled job disabled", slog.String("job", e.name))
			continue
		}
		fn := e.fn
		if _, err := s.cron.AddFunc(e.schedule, func() { _ = fn() }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", e.name, e.schedule, err)
		}
		s.logger.Info("Scheduled job", slog.String("job", e.name), slog.String("schedule", e.schedule))
	}
	s.cron.Start()
	return nil
}

// Stop halts the runner; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
