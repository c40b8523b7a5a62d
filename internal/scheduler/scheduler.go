package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"vpsdash/internal/backup"
	"vpsdash/internal/health"
	"vpsdash/internal/logger"
)

// Ticker runs one probe cycle
type Ticker interface {
	Tick(ctx context.Context) (health.Snapshot, bool)
}

// BackupTrigger starts scheduled backup runs
type BackupTrigger interface {
	TriggerRun(trigger backup.Trigger) (int64, error)
	Active() (backup.Run, bool)
}

// Options configures the scheduler
type Options struct {
	Interval       time.Duration
	BackupSchedule string
	StopTimeout    time.Duration
	Logger         *logger.Logger
}

// Scheduler drives the periodic probe cycle and the backup schedule
type Scheduler struct {
	cron      gocron.Scheduler
	ticker    Ticker
	trigger   BackupTrigger
	probeJob  gocron.Job
	backupJob gocron.Job
	log       *logger.Logger
}

// New registers the probe job and, when a schedule is set, the backup job.
// Nothing runs until Start.
func New(ticker Ticker, trigger BackupTrigger, opts Options) (*Scheduler, error) {
	if ticker == nil {
		return nil, errors.New("scheduler: ticker is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: invalid probe interval %s", opts.Interval)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("scheduler")

	schedOpts := []gocron.SchedulerOption{gocron.WithLogger(cronLogger{log})}
	if opts.StopTimeout > 0 {
		schedOpts = append(schedOpts, gocron.WithStopTimeout(opts.StopTimeout))
	}
	cron, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{cron: cron, ticker: ticker, trigger: trigger, log: log}

	s.probeJob, err = cron.NewJob(
		gocron.DurationJob(opts.Interval),
		gocron.NewTask(s.probeTick),
		gocron.WithName("probe-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("failed to register probe job: %w", err)
	}

	if opts.BackupSchedule != "" && trigger != nil {
		s.backupJob, err = cron.NewJob(
			gocron.CronJob(opts.BackupSchedule, false),
			gocron.NewTask(s.backupTick),
			gocron.WithName("backup"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = cron.Shutdown()
			return nil, fmt.Errorf("invalid backup schedule %q: %w", opts.BackupSchedule, err)
		}
	} else {
		log.Info("scheduled backups disabled")
	}

	return s, nil
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	if next, ok := s.NextBackup(); ok {
		s.log.Info("next scheduled backup at %s", next.Format(time.RFC3339))
	}
}

// TickNow runs one probe cycle immediately, outside the schedule
func (s *Scheduler) TickNow(ctx context.Context) (health.Snapshot, bool) {
	return s.ticker.Tick(ctx)
}

// NextBackup reports when the backup job fires next
func (s *Scheduler) NextBackup() (time.Time, bool) {
	if s.backupJob == nil {
		return time.Time{}, false
	}
	next, err := s.backupJob.NextRun()
	if err != nil || next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Shutdown stops the scheduler and waits for running jobs
func (s *Scheduler) Shutdown() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	return nil
}

func (s *Scheduler) probeTick(ctx context.Context) {
	if _, ok := s.ticker.Tick(ctx); !ok {
		s.log.Debug("probe cycle still running, tick skipped")
	}
}

func (s *Scheduler) backupTick() {
	id, err := s.trigger.TriggerRun(backup.TriggerScheduled)
	switch {
	case errors.Is(err, backup.ErrAlreadyRunning):
		if run, ok := s.trigger.Active(); ok {
			s.log.Warning("skipping scheduled backup: run #%d still active", run.ID)
		} else {
			s.log.Warning("skipping scheduled backup: a run is still active")
		}
	case err != nil:
		s.log.Error("scheduled backup not started: %v", err)
	default:
		s.log.Info("scheduled backup run #%d started", id)
	}
}

// cronLogger routes gocron's own logging through the agent logger
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Debug(msg string, args ...any) { c.log.Zap().Sugar().Debugw(msg, args...) }
func (c cronLogger) Info(msg string, args ...any)  { c.log.Zap().Sugar().Infow(msg, args...) }
func (c cronLogger) Warn(msg string, args ...any)  { c.log.Zap().Sugar().Warnw(msg, args...) }
func (c cronLogger) Error(msg string, args ...any) { c.log.Zap().Sugar().Errorw(msg, args...) }
