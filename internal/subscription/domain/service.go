package domain

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/internal/proration"
	"gorm.io/gorm"
)

type Service interface {
	// StartTrial creates the registration-time trial record. Calling it for a
	// tenant that already has a record returns the existing one.
	StartTrial(ctx context.Context, tenantID int64) (*Subscription, error)
	GetByTenant(ctx context.Context, tenantID int64) (*Subscription, error)
	CheckAccess(ctx context.Context, tenantID int64) error
	AdminUpdate(ctx context.Context, req AdminUpdateRequest) (*Subscription, error)

	// Activate and AddExtraRooms run inside the caller's transaction.
	Activate(ctx context.Context, tx *gorm.DB, req ActivateRequest) (*Subscription, error)
	AddExtraRooms(ctx context.Context, tx *gorm.DB, tenantID int64, rooms int, settings proration.Settings) (*Subscription, error)

	DeactivateExpiredTrials(ctx context.Context, now time.Time) (int64, error)
	DeactivateExpiredPaid(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

type ActivateRequest struct {
	TenantID     int64
	Plan         plandomain.Plan
	Months       int
	KeepExpiry   bool
	BundledRooms int
	Settings     proration.Settings
}

type AdminUpdateRequest struct {
	TenantID   int64   `json:"-"`
	Plan       *string `json:"plan,omitempty"`
	MaxRooms   *int    `json:"max_rooms,omitempty"`
	ExtraRooms *int    `json:"extra_rooms,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

type Response struct {
	TenantID      int64      `json:"tenant_id"`
	Plan          string     `json:"plan"`
	MaxRooms      int        `json:"max_rooms"`
	ExtraRooms    int        `json:"extra_rooms"`
	RoomAllowance int        `json:"room_allowance"`
	StartedAt     time.Time  `json:"started_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	TrialEndsAt   *time.Time `json:"trial_ends_at"`
	IsActive      bool       `json:"is_active"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func ToResponse(s *Subscription) Response {
	return Response{
		TenantID:      s.TenantID,
		Plan:          s.Plan,
		MaxRooms:      s.MaxRooms,
		ExtraRooms:    s.ExtraRooms,
		RoomAllowance: s.RoomAllowance(),
		StartedAt:     s.StartedAt,
		ExpiresAt:     s.ExpiresAt,
		TrialEndsAt:   s.TrialEndsAt,
		IsActive:      s.IsActive,
		UpdatedAt:     s.UpdatedAt,
	}
}

var (
	ErrNotFound        = errors.New("subscription_not_found")
	ErrInvalidTenant   = errors.New("invalid_tenant_id")
	ErrInvalidRooms    = errors.New("invalid_room_count")
	ErrInvalidPlanName = errors.New("invalid_plan_name")
)
