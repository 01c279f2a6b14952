package guard

import (
	"errors"
	"time"

	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
)

var (
	ErrNoSubscription       = errors.New("subscription_missing")
	ErrSubscriptionInactive = errors.New("subscription_inactive")
	ErrTrialExpired         = errors.New("trial_expired")
	ErrPlanExpired          = errors.New("plan_expired")
)

// EnsureAccess reports whether a tenant may use gated features right now.
// It reads dates directly, so it also denies records the sweeper has not
// reached yet.
func EnsureAccess(sub *subscriptiondomain.Subscription, now time.Time) error {
	if sub == nil {
		return ErrNoSubscription
	}
	if !sub.IsActive {
		return ErrSubscriptionInactive
	}
	if sub.Plan == plandomain.NameTrial && sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(now) {
		return ErrTrialExpired
	}
	if sub.Plan != plandomain.NameTrial && sub.Plan != plandomain.NameFree &&
		sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
		return ErrPlanExpired
	}
	return nil
}

// IsAccessError reports whether err came from EnsureAccess.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrSubscriptionInactive) ||
		errors.Is(err, ErrTrialExpired) ||
		errors.Is(err, ErrPlanExpired)
}
