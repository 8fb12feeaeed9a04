// Package scheduler runs the periodic queue maintenance jobs.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	defaultRolloverInterval = time.Minute
	defaultPurgeInterval    = time.Hour
)

// Jobs is the maintenance surface of the queue engine.
type Jobs interface {
	Rollover(ctx context.Context) (bool, error)
	PurgeVerifications(ctx context.Context, retention time.Duration) (int64, error)
}

type Options struct {
	Location         *time.Location
	RolloverInterval time.Duration
	PurgeInterval    time.Duration
	// Retention of expired verification codes. Zero disables the purge job.
	Retention time.Duration
}

type Scheduler struct {
	cron gocron.Scheduler
	jobs Jobs
	log  *zap.Logger
	ctx  context.Context
}

func New(ctx context.Context, jobs Jobs, log *zap.Logger, options Options) (*Scheduler, error) {
	if jobs == nil {
		return nil, errors.New("scheduler: jobs are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(cronLogger{log.Sugar()}),
	)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{cron: cron, jobs: jobs, log: log, ctx: ctx}

	rollover := options.RolloverInterval
	if rollover <= 0 {
		rollover = defaultRolloverInterval
	}
	if err := s.add("queue-day-rollover", rollover, s.rollover); err != nil {
		return nil, err
	}

	if options.Retention > 0 {
		purge := options.PurgeInterval
		if purge <= 0 {
			purge = defaultPurgeInterval
		}
		retention := options.Retention
		if err := s.add("verification-purge", purge, func() { s.purge(retention) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, task func()) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Jobs())))
}

func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) rollover() {
	if _, err := s.jobs.Rollover(s.ctx); err != nil {
		s.log.Error("queue day rollover failed", zap.Error(err))
	}
}

func (s *Scheduler) purge(retention time.Duration) {
	if _, err := s.jobs.PurgeVerifications(s.ctx, retention); err != nil {
		s.log.Error("verification purge failed", zap.Error(err))
	}
}

// cronLogger adapts zap to the gocron logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Debug(msg string, args ...any) { l.log.Debugw(msg, args...) }
func (l cronLogger) Info(msg string, args ...any)  { l.log.Infow(msg, args...) }
func (l cronLogger) Warn(msg string, args ...any)  { l.log.Warnw(msg, args...) }
func (l cronLogger) Error(msg string, args ...any) { l.log.Errorw(msg, args...) }
