package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	obscontext "github.com/smallbiznis/petlog/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Roles forwarded by the auth proxy in X-User-Role.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

const (
	ObjectPlan         = "plan"
	ObjectSubscription = "subscription"
	ObjectPayment      = "payment"
	ObjectConfig       = "config"
	ObjectRevenue      = "revenue"
)

const (
	ActionView   = "view"
	ActionManage = "manage"
	// ActionCheckout lets a tenant pay for its own plan changes.
	ActionCheckout = "checkout"
)

type Service interface {
	Authorize(ctx context.Context, role, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// defaults. Seeding is idempotent; existing rows are left alone.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role, object, action string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization.denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
			zap.String("tenant_id", obscontext.TenantIDFromContext(ctx)),
			zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
		)
		return ErrForbidden
	}
	return nil
}

func subject(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Staff can see what the hotel is on, nothing more.
		{subject(RoleStaff), ObjectPlan, ActionView},
		{subject(RoleStaff), ObjectSubscription, ActionView},

		{subject(RoleOwner), ObjectPayment, ActionView},
		{subject(RoleOwner), ObjectPayment, ActionCheckout},

		{subject(RoleAdmin), ObjectPlan, "*"},
		{subject(RoleAdmin), ObjectSubscription, "*"},
		{subject(RoleAdmin), ObjectPayment, "*"},
		{subject(RoleAdmin), ObjectConfig, "*"},
		{subject(RoleAdmin), ObjectRevenue, ActionView},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{subject(RoleOwner), subject(RoleStaff)},
		{subject(RoleAdmin), subject(RoleOwner)},
	}
	for _, g := range groupings {
		has, err := enforcer.HasGroupingPolicy(g)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(g); err != nil {
			return err
		}
	}
	return nil
}
