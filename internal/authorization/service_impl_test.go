package authorization

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/petlog/internal/observability/context"
	"github.com/smallbiznis/petlog/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newService(t *testing.T) (Service, *observer.ObservedLogs) {
	t.Helper()
	enforcer, err := NewEnforcer(dbtest.Open(t))
	require.NoError(t, err)
	core, logs := observer.New(zapcore.InfoLevel)
	return NewService(Params{Log: zap.New(core), Enforcer: enforcer}), logs
}

func TestAuthorizeRoleMatrix(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{RoleStaff, ObjectPlan, ActionView, true},
		{RoleStaff, ObjectSubscription, ActionView, true},
		{RoleStaff, ObjectPayment, ActionCheckout, false},
		{RoleStaff, ObjectPayment, ActionView, false},
		{RoleOwner, ObjectSubscription, ActionView, true},
		{RoleOwner, ObjectPayment, ActionCheckout, true},
		{RoleOwner, ObjectPayment, ActionView, true},
		{RoleOwner, ObjectPlan, ActionManage, false},
		{RoleOwner, ObjectRevenue, ActionView, false},
		{RoleOwner, ObjectConfig, ActionView, false},
		{RoleAdmin, ObjectPlan, ActionManage, true},
		{RoleAdmin, ObjectConfig, ActionManage, true},
		{RoleAdmin, ObjectRevenue, ActionView, true},
		{RoleAdmin, ObjectRevenue, ActionManage, false},
		{"ADMIN", ObjectPayment, ActionManage, true},
		{"groomer", ObjectPlan, ActionView, false},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s %s", tc.role, tc.object, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s %s", tc.role, tc.object, tc.action)
		}
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, " ", ObjectPlan, ActionView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, RoleOwner, "", ActionView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, RoleOwner, ObjectPlan, ""), ErrInvalidAction)
}

func TestAuthorizeLogsDenials(t *testing.T) {
	svc, logs := newService(t)
	ctx := obscontext.WithTenantID(context.Background(), 42)

	require.ErrorIs(t, svc.Authorize(ctx, RoleStaff, ObjectRevenue, ActionView), ErrForbidden)
	entries := logs.FilterMessage("authorization.denied").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].ContextMap()["tenant_id"])
	assert.Equal(t, "staff", entries[0].ContextMap()["role"])
}

func TestNewEnforcerSeedsOnce(t *testing.T) {
	conn := dbtest.Open(t)
	first, err := NewEnforcer(conn)
	require.NoError(t, err)
	before, err := first.GetPolicy()
	require.NoError(t, err)

	second, err := NewEnforcer(conn)
	require.NoError(t, err)
	after, err := second.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	var rows int64
	require.NoError(t, conn.Table("casbin_rule").Count(&rows).Error)
	assert.Equal(t, int64(len(before)+2), rows)
}
