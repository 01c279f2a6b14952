package guard

import (
	"testing"
	"time"

	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnsureAccess(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		sub  *subscriptiondomain.Subscription
		want error
	}{
		{name: "missing", sub: nil, want: ErrNoSubscription},
		{name: "inactive", sub: &subscriptiondomain.Subscription{Plan: "pro", IsActive: false}, want: ErrSubscriptionInactive},
		{name: "trial running", sub: &subscriptiondomain.Subscription{Plan: "trial", IsActive: true, TrialEndsAt: &future}},
		{name: "trial over", sub: &subscriptiondomain.Subscription{Plan: "trial", IsActive: true, TrialEndsAt: &past}, want: ErrTrialExpired},
		{name: "trial without end", sub: &subscriptiondomain.Subscription{Plan: "trial", IsActive: true}},
		{name: "paid running", sub: &subscriptiondomain.Subscription{Plan: "basic", IsActive: true, ExpiresAt: &future}},
		{name: "paid lapsed", sub: &subscriptiondomain.Subscription{Plan: "basic", IsActive: true, ExpiresAt: &past}, want: ErrPlanExpired},
		{name: "free ignores expiry", sub: &subscriptiondomain.Subscription{Plan: "free", IsActive: true, ExpiresAt: &past}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := EnsureAccess(tc.sub, now)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsAccessError(err))
		})
	}
}
