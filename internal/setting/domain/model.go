package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/proration"
)

const (
	KeyExtraRoomPrice = "extra_room_price"
	KeyTrialDays      = "trial_days"
)

type SystemConfig struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Key         string       `gorm:"type:varchar(50);not null;uniqueIndex:ux_system_configs_key"`
	Value       string       `gorm:"type:text;not null"`
	Description *string      `gorm:"type:varchar(100)"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SystemConfig) TableName() string { return "system_configs" }

type Service interface {
	// Get returns the pricing settings in effect right now.
	Get(ctx context.Context) (proration.Settings, error)
	List(ctx context.Context) ([]Response, error)
	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
}

type UpsertRequest struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Description *string `json:"description,omitempty"`
}

type Response struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description *string   `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrInvalidKey   = errors.New("invalid_config_key")
	ErrInvalidValue = errors.New("invalid_config_value")
)
