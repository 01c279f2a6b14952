package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/clock"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/internal/proration"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/internal/subscription/guard"
	"github.com/smallbiznis/petlog/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Settings settingdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	settings settingdomain.Service
}

func New(p Params) subscriptiondomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    c,
		repo:     p.Repo,
		settings: p.Settings,
	}
}

func (s *Service) StartTrial(ctx context.Context, tenantID int64) (*subscriptiondomain.Subscription, error) {
	if tenantID <= 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	existing, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	trialEnd := proration.TrialEnd(now, settings.TrialDays)
	sub := &subscriptiondomain.Subscription{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Plan:        plandomain.NameTrial,
		MaxRooms:    settings.TrialMaxRooms,
		StartedAt:   now,
		TrialEndsAt: &trialEnd,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// concurrent registration hook won
			return s.GetByTenant(ctx, tenantID)
		}
		return nil, err
	}

	s.log.Info("trial started",
		zap.Int64("tenant_id", tenantID),
		zap.Time("trial_ends_at", trialEnd),
	)
	return sub, nil
}

func (s *Service) GetByTenant(ctx context.Context, tenantID int64) (*subscriptiondomain.Subscription, error) {
	if tenantID <= 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return sub, nil
}

func (s *Service) CheckAccess(ctx context.Context, tenantID int64) error {
	if tenantID <= 0 {
		return guard.ErrNoSubscription
	}
	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return err
	}
	return guard.EnsureAccess(sub, s.clock.Now())
}

func (s *Service) AdminUpdate(ctx context.Context, req subscriptiondomain.AdminUpdateRequest) (*subscriptiondomain.Subscription, error) {
	if req.TenantID <= 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	if req.Plan != nil && strings.TrimSpace(*req.Plan) == "" {
		return nil, subscriptiondomain.ErrInvalidPlanName
	}
	if (req.MaxRooms != nil && *req.MaxRooms < 0) || (req.ExtraRooms != nil && *req.ExtraRooms < 0) {
		return nil, subscriptiondomain.ErrInvalidRooms
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var result *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		sub, created, err := s.lockOrCreate(ctx, tx, req.TenantID, settings, now)
		if err != nil {
			return err
		}

		if req.Plan != nil {
			sub.Plan = strings.TrimSpace(*req.Plan)
		}
		if req.MaxRooms != nil {
			sub.MaxRooms = *req.MaxRooms
		}
		if req.ExtraRooms != nil {
			sub.ExtraRooms = *req.ExtraRooms
		}
		if req.IsActive != nil {
			sub.IsActive = *req.IsActive
		}
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		s.log.Info("subscription overridden",
			zap.Int64("tenant_id", req.TenantID),
			zap.String("plan", sub.Plan),
			zap.Int("max_rooms", sub.MaxRooms),
			zap.Int("extra_rooms", sub.ExtraRooms),
			zap.Bool("is_active", sub.IsActive),
			zap.Bool("created", created),
		)
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Activate applies a paid plan purchase. It re-derives the record from the
// locked row, so applying the same purchase twice converges on one state.
func (s *Service) Activate(ctx context.Context, tx *gorm.DB, req subscriptiondomain.ActivateRequest) (*subscriptiondomain.Subscription, error) {
	if req.TenantID <= 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	if req.BundledRooms < 0 {
		return nil, subscriptiondomain.ErrInvalidRooms
	}

	now := s.clock.Now()
	sub, _, err := s.lockOrCreate(ctx, tx, req.TenantID, req.Settings, now)
	if err != nil {
		return nil, err
	}

	previousAllowance := sub.RoomAllowance()
	sub.Plan = req.Plan.Name
	sub.MaxRooms = req.Plan.MaxRooms
	sub.IsActive = true
	if req.Plan.MaxRooms >= previousAllowance {
		sub.ExtraRooms = 0
	}
	sub.ExtraRooms += req.BundledRooms

	if !req.KeepExpiry {
		months := req.Months
		if months < 1 {
			months = 1
		}
		expiresAt := proration.ExpiryAfter(now, months, req.Settings.MonthArithmetic)
		sub.StartedAt = now
		sub.ExpiresAt = &expiresAt
	}
	sub.UpdatedAt = now

	if err := s.repo.Update(ctx, tx, sub); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("tenant_id", req.TenantID),
		zap.String("plan", sub.Plan),
		zap.Int("max_rooms", sub.MaxRooms),
		zap.Int("extra_rooms", sub.ExtraRooms),
		zap.Bool("keep_expiry", req.KeepExpiry),
	}
	if sub.ExpiresAt != nil {
		fields = append(fields, zap.Time("expires_at", *sub.ExpiresAt))
	}
	s.log.Info("subscription activated", fields...)
	return sub, nil
}

func (s *Service) AddExtraRooms(ctx context.Context, tx *gorm.DB, tenantID int64, rooms int, settings proration.Settings) (*subscriptiondomain.Subscription, error) {
	if tenantID <= 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	if rooms <= 0 {
		return nil, subscriptiondomain.ErrInvalidRooms
	}

	now := s.clock.Now()
	if _, _, err := s.lockOrCreate(ctx, tx, tenantID, settings, now); err != nil {
		return nil, err
	}
	if _, err := s.repo.AddExtraRooms(ctx, tx, tenantID, rooms, now); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByTenant(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}

	s.log.Info("extra rooms added",
		zap.Int64("tenant_id", tenantID),
		zap.Int("rooms", rooms),
		zap.Int("extra_rooms", sub.ExtraRooms),
	)
	return sub, nil
}

func (s *Service) DeactivateExpiredTrials(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeactivateExpiredTrials(ctx, s.db, now.UTC())
}

func (s *Service) DeactivateExpiredPaid(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeactivateExpiredPaid(ctx, s.db, now.UTC())
}

func (s *Service) Stats(ctx context.Context) (*subscriptiondomain.Stats, error) {
	total, err := s.repo.Count(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.Count(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	trials, err := s.repo.CountActiveTrials(ctx, s.db)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.PlanDistribution(ctx, s.db)
	if err != nil {
		return nil, err
	}

	dist := make(map[string]int64, len(rows))
	for _, row := range rows {
		dist[row.Plan] = row.Count
	}
	return &subscriptiondomain.Stats{
		Total:            total,
		Active:           active,
		ActiveTrials:     trials,
		PlanDistribution: dist,
	}, nil
}

// lockOrCreate returns the tenant's row locked for update, inserting a fresh
// trial first when the tenant has none.
func (s *Service) lockOrCreate(ctx context.Context, tx *gorm.DB, tenantID int64, settings proration.Settings, now time.Time) (*subscriptiondomain.Subscription, bool, error) {
	sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
	if err != nil {
		return nil, false, err
	}
	if sub != nil {
		return sub, false, nil
	}

	trialEnd := proration.TrialEnd(now, settings.TrialDays)
	sub = &subscriptiondomain.Subscription{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Plan:        plandomain.NameTrial,
		MaxRooms:    settings.TrialMaxRooms,
		StartedAt:   now,
		TrialEndsAt: &trialEnd,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// postgres aborts the whole transaction on a failed insert
	if err := tx.SavePoint("subscription_create").Error; err != nil {
		return nil, false, err
	}
	if err := s.repo.Insert(ctx, tx, sub); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, false, err
		}
		if err := tx.RollbackTo("subscription_create").Error; err != nil {
			return nil, false, err
		}
		sub, err = s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return nil, false, err
		}
		if sub == nil {
			return nil, false, subscriptiondomain.ErrNotFound
		}
		return sub, false, nil
	}
	return sub, true, nil
}
