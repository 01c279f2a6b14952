package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/internal/proration"
)

// Subscription is the single billing record of a tenant. MaxRooms is a
// snapshot of the plan at activation time, not a live join.
type Subscription struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    int64        `gorm:"not null;uniqueIndex:ux_subscriptions_tenant"`
	Plan        string       `gorm:"type:varchar(30);not null;default:'trial'"`
	MaxRooms    int          `gorm:"not null;default:3"`
	ExtraRooms  int          `gorm:"not null;default:0"`
	StartedAt   time.Time    `gorm:"not null"`
	ExpiresAt   *time.Time
	TrialEndsAt *time.Time
	IsActive    bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s Subscription) RoomAllowance() int {
	return s.MaxRooms + s.ExtraRooms
}

func (s Subscription) IsTrial() bool {
	return s.Plan == plandomain.NameTrial
}

// Window is the part of the record the proration calculator prices against.
func (s Subscription) Window() proration.Window {
	return proration.Window{
		Plan:       s.Plan,
		ExtraRooms: s.ExtraRooms,
		StartedAt:  s.StartedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

type Stats struct {
	Total            int64            `json:"total"`
	Active           int64            `json:"active"`
	ActiveTrials     int64            `json:"active_trials"`
	PlanDistribution map[string]int64 `json:"plan_distribution"`
}

type PlanCount struct {
	Plan  string
	Count int64
}
