package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/setting/domain"
	"github.com/smallbiznis/petlog/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, billing config.BillingConfig) (domain.Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &domain.SystemConfig{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Billing: config.NewStaticBillingConfigHolder(billing),
	})
	return svc, conn
}

func TestGetFallsBackToBillingDefaults(t *testing.T) {
	billing := config.DefaultBillingConfig()
	billing.ExtraRoomPrice = 12000
	svc, _ := newTestService(t, billing)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12000), settings.ExtraRoomPrice)
	assert.Equal(t, 14, settings.TrialDays)
	assert.Equal(t, int64(1000), settings.RoundingUnit)
}

func TestPersistedValuesOverrideDefaults(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultBillingConfig())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, domain.UpsertRequest{Key: "extra_room_price", Value: "15000"})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, domain.UpsertRequest{Key: "trial_days", Value: "7"})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, domain.UpsertRequest{Key: "trial_days", Value: "21"})
	require.NoError(t, err)

	settings, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), settings.ExtraRoomPrice)
	assert.Equal(t, 21, settings.TrialDays)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "extra_room_price", items[0].Key)
	assert.Equal(t, "21", items[1].Value)
}

func TestUpsertValidatesKnownKeys(t *testing.T) {
	svc, _ := newTestService(t, config.DefaultBillingConfig())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, domain.UpsertRequest{Key: "trial_days", Value: "abc"})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
	_, err = svc.Upsert(ctx, domain.UpsertRequest{Key: "extra_room_price", Value: "-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
	_, err = svc.Upsert(ctx, domain.UpsertRequest{Key: " ", Value: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	resp, err := svc.Upsert(ctx, domain.UpsertRequest{Key: "support_phone", Value: "0901234567"})
	require.NoError(t, err)
	assert.Equal(t, "support_phone", resp.Key)
}

func TestGetIgnoresMalformedRows(t *testing.T) {
	svc, conn := newTestService(t, config.DefaultBillingConfig())
	require.NoError(t, conn.Create(&domain.SystemConfig{ID: 1, Key: "extra_room_price", Value: "lots"}).Error)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10000), settings.ExtraRoomPrice)
}
