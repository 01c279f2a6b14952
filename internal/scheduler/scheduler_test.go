package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/lock"
	obsmetrics "github.com/smallbiznis/petlog/internal/observability/metrics"
	schedtesting "github.com/smallbiznis/petlog/internal/scheduler/testing"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	settingservice "github.com/smallbiznis/petlog/internal/setting/service"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/petlog/internal/subscription/service"
	"github.com/smallbiznis/petlog/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	sched    *Scheduler
	subs     subscriptiondomain.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	locker   *lock.LocalLocker
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	conn := dbtest.Open(t, &subscriptiondomain.Subscription{}, &settingdomain.SystemConfig{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(start)

	settings := settingservice.New(settingservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	subs := subscriptionservice.New(subscriptionservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     repository.Provide(),
		Settings: settings,
	})

	registry := prometheus.NewRegistry()
	locker := lock.NewLocalLocker()
	sched, err := New(Params{
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fake,
		SubscriptionSvc: subs,
		Locker:          locker,
		Metrics:         obsmetrics.NewNoop(),
		SchedMetrics:    obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "petlog", Environment: "test"}),
		Config:          cfg,
	})
	require.NoError(t, err)

	return fixture{sched: sched, subs: subs, db: conn, clock: fake, locker: locker, registry: registry}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := true
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					matched = false
					break
				}
			}
			if matched {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceDeactivatesExpiredSubscriptions(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	accel := schedtesting.NewTimeAccelerator(f.db)

	for _, tenant := range []int64{1, 2, 3, 4} {
		_, err := f.subs.StartTrial(ctx, tenant)
		require.NoError(t, err)
	}
	require.NoError(t, accel.ExpireTrial(ctx, 1, start))
	require.NoError(t, accel.SetWindow(ctx, 3, "basic", start.AddDate(0, 0, -31), start.AddDate(0, 0, -1)))
	require.NoError(t, accel.SetWindow(ctx, 4, "pro", start.AddDate(0, 0, -5), start.AddDate(0, 0, 25)))

	require.NoError(t, f.sched.RunOnce(ctx))

	active := map[int64]bool{}
	for _, tenant := range []int64{1, 2, 3, 4} {
		sub, err := f.subs.GetByTenant(ctx, tenant)
		require.NoError(t, err)
		active[tenant] = sub.IsActive
	}
	assert.Equal(t, map[int64]bool{1: false, 2: true, 3: false, 4: true}, active)

	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_batch_processed_total",
		map[string]string{"job": JobExpireTrials}))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_batch_processed_total",
		map[string]string{"job": JobExpirePaid}))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_job_runs_total",
		map[string]string{"job": JobSubscriptionReport}))

	// Trials lapse once the fake clock passes trial_ends_at.
	f.clock.Advance(15 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	sub, err := f.subs.GetByTenant(ctx, 2)
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t, Config{})
	_, ok, err := f.locker.TryLock(context.Background(), lock.JobKey(JobExpirePaid), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = f.sched.runJob(context.Background(), JobExpirePaid, func(context.Context) (int64, error) {
		called = true
		return 0, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_job_skipped_total",
		map[string]string{"job": JobExpirePaid, "reason": obsmetrics.SchedulerSkipReasonLockHeld}))
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, Config{JobTimeout: 5 * time.Millisecond})

	err := f.sched.runJob(context.Background(), "slow_job", func(ctx context.Context) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_job_timeouts_total",
		map[string]string{"job": "slow_job"}))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_job_errors_total",
		map[string]string{"job": "slow_job", "reason": obsmetrics.SchedulerJobReasonDeadlineExceeded}))

	// The lock is released after the run.
	_, ok, err := f.locker.TryLock(context.Background(), lock.JobKey("slow_job"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunJobReturnsErrors(t *testing.T) {
	f := newFixture(t, Config{})
	boom := errors.New("boom")

	err := f.sched.runJob(context.Background(), "broken", func(context.Context) (int64, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "petlog_scheduler_job_errors_total",
		map[string]string{"job": "broken", "reason": obsmetrics.SchedulerJobReasonUnknown}))
}

func TestEnabledJobsFilter(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{"EXPIRE_TRIALS"}})
	assert.True(t, f.sched.isJobEnabled(JobExpireTrials))
	assert.False(t, f.sched.isJobEnabled(JobExpirePaid))

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, float64(0), counterValue(t, f.registry, "petlog_scheduler_job_runs_total",
		map[string]string{"job": JobSubscriptionReport}))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t, Config{ExpirySchedule: "every now and then"})
	err := f.sched.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobExpireTrials)
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.sched.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.sched.Stop(ctx))
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{Scheduler: config.SchedulerConfig{Enabled: true}})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "@hourly", cfg.ExpirySchedule)
	assert.Equal(t, "0 8 * * *", cfg.ReportSchedule)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}
