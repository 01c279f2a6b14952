package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/proration"
	"github.com/smallbiznis/petlog/internal/setting/domain"
	"github.com/smallbiznis/petlog/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Billing *config.BillingConfigHolder
}

type Service struct {
	store   repository.Repository[domain.SystemConfig]
	log     *zap.Logger
	genID   *snowflake.Node
	billing *config.BillingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		store:   repository.ProvideStore[domain.SystemConfig](p.DB),
		log:     p.Log.Named("setting.service"),
		genID:   p.GenID,
		billing: p.Billing,
	}
}

// Get layers persisted values over the file/env defaults. Malformed rows are
// logged and ignored so a bad admin edit never blocks checkout.
func (s *Service) Get(ctx context.Context) (proration.Settings, error) {
	settings := proration.FromBillingConfig(s.billing.Get())

	rows, err := s.store.Find(ctx, &domain.SystemConfig{})
	if err != nil {
		return proration.Settings{}, err
	}
	for _, row := range rows {
		switch row.Key {
		case domain.KeyExtraRoomPrice:
			v, err := parseValue(row.Key, row.Value)
			if err != nil {
				s.log.Warn("ignoring invalid config value", zap.String("key", row.Key), zap.String("value", row.Value))
				continue
			}
			settings.ExtraRoomPrice = v
		case domain.KeyTrialDays:
			v, err := parseValue(row.Key, row.Value)
			if err != nil {
				s.log.Warn("ignoring invalid config value", zap.String("key", row.Key), zap.String("value", row.Value))
				continue
			}
			settings.TrialDays = int(v)
		}
	}
	return settings, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	rows, err := s.store.Find(ctx, &domain.SystemConfig{})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	resp := make([]domain.Response, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toResponse(row))
	}
	return resp, nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	key := strings.ToLower(strings.TrimSpace(req.Key))
	if key == "" || len(key) > 50 {
		return nil, domain.ErrInvalidKey
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		return nil, domain.ErrInvalidValue
	}
	if isKnownKey(key) {
		if _, err := parseValue(key, value); err != nil {
			return nil, err
		}
	}

	existing, err := s.store.FindOne(ctx, &domain.SystemConfig{Key: key})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		record := &domain.SystemConfig{
			ID:          s.genID.Generate(),
			Key:         key,
			Value:       value,
			Description: req.Description,
			UpdatedAt:   now,
		}
		if err := s.store.Upsert(ctx, record, []string{"key"}, []string{"value", "updated_at"}); err != nil {
			return nil, err
		}
		s.log.Info("config created", zap.String("key", key))
		resp := toResponse(record)
		return &resp, nil
	}

	updates := map[string]any{"value": value, "updated_at": now}
	if req.Description != nil {
		updates["description"] = *req.Description
		existing.Description = req.Description
	}
	if err := s.store.Update(ctx, existing.ID, updates); err != nil {
		return nil, err
	}
	existing.Value = value
	existing.UpdatedAt = now

	s.log.Info("config updated", zap.String("key", key))
	resp := toResponse(existing)
	return &resp, nil
}

func isKnownKey(key string) bool {
	return key == domain.KeyExtraRoomPrice || key == domain.KeyTrialDays
}

func parseValue(key, value string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidValue
	}
	switch key {
	case domain.KeyExtraRoomPrice:
		if v < 0 {
			return 0, domain.ErrInvalidValue
		}
	case domain.KeyTrialDays:
		if v <= 0 || v > 365 {
			return 0, domain.ErrInvalidValue
		}
	}
	return v, nil
}

func toResponse(row *domain.SystemConfig) domain.Response {
	return domain.Response{
		Key:         row.Key,
		Value:       row.Value,
		Description: row.Description,
		UpdatedAt:   row.UpdatedAt,
	}
}
