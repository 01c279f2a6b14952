package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	ListActive(ctx context.Context) ([]Response, error)
	ListAll(ctx context.Context) ([]Response, error)
	GetActiveByName(ctx context.Context, name string) (*Plan, error)
	Resolve(ctx context.Context, name string) (Ref, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Description *string `json:"description"`
	Price       int64   `json:"price"`
	MaxRooms    int     `json:"max_rooms"`
	IsActive    *bool   `json:"is_active"`
	SortOrder   int     `json:"sort_order"`
}

type UpdateRequest struct {
	ID          string  `json:"-"`
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *int64  `json:"price,omitempty"`
	MaxRooms    *int    `json:"max_rooms,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	SortOrder   *int    `json:"sort_order,omitempty"`
}

type Response struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description *string   `json:"description,omitempty"`
	Price       int64     `json:"price"`
	MaxRooms    int       `json:"max_rooms"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("plan_not_found")
	ErrInvalidID       = errors.New("invalid_plan_id")
	ErrInvalidName     = errors.New("invalid_plan_name")
	ErrReservedName    = errors.New("reserved_plan_name")
	ErrDuplicateName   = errors.New("plan_name_exists")
	ErrInvalidDisplay  = errors.New("invalid_display_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidMaxRooms = errors.New("invalid_max_rooms")
)
