package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/lock"
	obsmetrics "github.com/smallbiznis/petlog/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	Locker          lock.Locker
	Metrics         *obsmetrics.Metrics          `optional:"true"`
	SchedMetrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config          Config                       `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	locker          lock.Locker
	metrics         *obsmetrics.Metrics
	schedMetrics    *obsmetrics.SchedulerMetrics
	cron            *cron.Cron
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	schedMetrics := p.SchedMetrics
	if schedMetrics == nil {
		schedMetrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		locker:          p.Locker,
		metrics:         p.Metrics,
		schedMetrics:    schedMetrics,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: JobExpireTrials, schedule: s.cfg.ExpirySchedule, run: s.ExpireTrialsJob},
		{name: JobExpirePaid, schedule: s.cfg.ExpirySchedule, run: s.ExpirePaidJob},
		{name: JobSubscriptionReport, schedule: s.cfg.ReportSchedule, run: s.SubscriptionReportJob},
	}
}

// Start registers every enabled job with cron and starts it.
func (s *Scheduler) Start() error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: s.log.Sugar()}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log.Sugar()})),
	)
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		j := j
		if _, err := c.AddFunc(j.schedule, func() {
			if err := s.runJob(context.Background(), j.name, j.run); err != nil {
				s.logJobError(context.Background(), j.name, err)
			}
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.schedule, err)
		}
		s.log.Info("scheduler.job.registered", zap.String("job", j.name), zap.String("schedule", j.schedule))
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every enabled job immediately, in order.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if s.isJobEnabled(j.name) {
			err = errors.Join(err, s.runJob(ctx, j.name, j.run))
		}
	}
	return err
}

// runJob executes fn under a cross-instance job lock and a deadline. A held
// lock skips the run; timeouts are counted and left for the next tick.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) error {
	token, acquired, err := s.locker.TryLock(parent, lock.JobKey(name), s.cfg.JobTimeout+5*time.Second)
	if err != nil {
		s.schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockErr)
		s.log.Warn("scheduler.job.lock_failed", zap.String("job", name), zap.Error(err))
		return nil
	}
	if !acquired {
		s.schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		s.log.Debug("scheduler.job.skipped", zap.String("job", name))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(parent), lock.JobKey(name), token); err != nil {
			s.log.Warn("scheduler.job.unlock_failed", zap.String("job", name), zap.Error(err))
		}
	}()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx, run := s.ensureJobRun(ctx, name)
	s.schedMetrics.IncJobRun(name)

	processed, err := fn(ctx)
	s.schedMetrics.ObserveJobDuration(name, time.Since(start))
	run.AddProcessed(processed)
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.schedMetrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.schedMetrics.IncJobTimeout(name)
		s.logger(ctx).Warn("scheduler.job.timeout",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), name) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ExpireTrialsJob(ctx context.Context) (int64, error) {
	n, err := s.subscriptionSvc.DeactivateExpiredTrials(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.schedMetrics.AddBatchProcessed(JobExpireTrials, "subscriptions", n)
	s.metrics.RecordExpirations(ctx, "trial", n)
	return n, nil
}

func (s *Scheduler) ExpirePaidJob(ctx context.Context) (int64, error) {
	n, err := s.subscriptionSvc.DeactivateExpiredPaid(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.schedMetrics.AddBatchProcessed(JobExpirePaid, "subscriptions", n)
	s.metrics.RecordExpirations(ctx, "paid", n)
	return n, nil
}

// SubscriptionReportJob logs headline counts. It changes nothing, so it
// reports zero processed rows.
func (s *Scheduler) SubscriptionReportJob(ctx context.Context) (int64, error) {
	stats, err := s.subscriptionSvc.Stats(ctx)
	if err != nil {
		return 0, err
	}

	plans := make([]string, 0, len(stats.PlanDistribution))
	for name := range stats.PlanDistribution {
		plans = append(plans, name)
	}
	sort.Strings(plans)
	fields := []zap.Field{
		zap.Int64("total", stats.Total),
		zap.Int64("active", stats.Active),
		zap.Int64("active_trials", stats.ActiveTrials),
	}
	for _, name := range plans {
		fields = append(fields, zap.Int64("plan_"+name, stats.PlanDistribution[name]))
	}
	s.logger(ctx).Info("scheduler.subscription_report", fields...)
	return 0, nil
}
