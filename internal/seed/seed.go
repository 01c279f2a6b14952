package seed

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/config"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type planSeed struct {
	name        string
	display     string
	description string
	price       int64
	maxRooms    int
}

// Stock catalog. Only inserted into an empty pricing_plans table.
var defaultPlans = []planSeed{
	{name: "basic", display: "Gói Cơ bản", description: "Phù hợp cho cửa hàng nhỏ", price: 99000, maxRooms: 5},
	{name: "pro", display: "Gói Chuyên nghiệp", description: "Phù hợp cho cửa hàng vừa", price: 199000, maxRooms: 15},
	{name: "unlimited", display: "Gói Không giới hạn", description: "Không giới hạn phòng", price: 499000, maxRooms: 999},
}

type configSeed struct {
	key         string
	value       string
	description string
}

func defaultConfigs() []configSeed {
	defaults := config.DefaultBillingConfig()
	return []configSeed{
		{key: settingdomain.KeyTrialDays, value: strconv.Itoa(defaults.TrialDays), description: "Số ngày dùng thử"},
		{key: settingdomain.KeyExtraRoomPrice, value: strconv.FormatInt(defaults.ExtraRoomPrice, 10), description: "Giá mỗi phòng thêm / tháng"},
	}
}

// EnsureDefaults seeds the plan catalog and the system settings. Existing
// rows are never touched, so admin edits survive restarts.
func EnsureDefaults(db *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plans, err := ensurePlansTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if plans > 0 {
			log.Info("seed.plans.inserted", zap.Int("count", plans))
		}

		configs, err := ensureConfigsTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if configs > 0 {
			log.Info("seed.configs.inserted", zap.Int("count", configs))
		}
		return nil
	})
}

func ensurePlansTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (int, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&plandomain.Plan{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]plandomain.Plan, 0, len(defaultPlans))
	for i, p := range defaultPlans {
		description := p.description
		rows = append(rows, plandomain.Plan{
			ID:          node.Generate(),
			Name:        p.name,
			DisplayName: p.display,
			Description: &description,
			Price:       p.price,
			MaxRooms:    p.maxRooms,
			IsActive:    true,
			SortOrder:   i + 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

func ensureConfigsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (int, error) {
	inserted := 0
	now := time.Now().UTC()
	for _, c := range defaultConfigs() {
		var existing settingdomain.SystemConfig
		err := tx.WithContext(ctx).Where(&settingdomain.SystemConfig{Key: c.key}).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return inserted, err
		}
		description := c.description
		row := settingdomain.SystemConfig{
			ID:          node.Generate(),
			Key:         c.key,
			Value:       c.value,
			Description: &description,
			UpdatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
