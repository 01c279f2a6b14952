package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/petlog/internal/config"
)

const (
	JobExpireTrials       = "expire_trials"
	JobExpirePaid         = "expire_paid"
	JobSubscriptionReport = "subscription_report"
)

// Config controls cron schedules and job deadlines.
type Config struct {
	Enabled        bool
	ExpirySchedule string
	ReportSchedule string
	JobTimeout     time.Duration
	// EnabledJobs limits which jobs run. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		ExpirySchedule: "@hourly",
		ReportSchedule: "0 8 * * *",
		JobTimeout:     30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:        cfg.Scheduler.Enabled,
		ExpirySchedule: cfg.Scheduler.ExpirySchedule,
		ReportSchedule: cfg.Scheduler.ReportSchedule,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.ExpirySchedule) == "" {
		c.ExpirySchedule = defaults.ExpirySchedule
	}
	if strings.TrimSpace(c.ReportSchedule) == "" {
		c.ReportSchedule = defaults.ReportSchedule
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
