package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reserved plan names. They describe subscription states, not catalog rows.
const (
	NameTrial      = "trial"
	NameFree       = "free"
	NameExtraRooms = "extra_rooms"
)

type Plan struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Name        string       `gorm:"type:varchar(30);not null;uniqueIndex:ux_pricing_plans_name"`
	DisplayName string       `gorm:"type:varchar(50);not null"`
	Description *string      `gorm:"type:text"`
	Price       int64        `gorm:"not null"`
	MaxRooms    int          `gorm:"not null"`
	IsActive    bool         `gorm:"not null;default:true"`
	SortOrder   int          `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plan) TableName() string { return "pricing_plans" }

func IsReservedName(name string) bool {
	switch name {
	case NameTrial, NameFree, NameExtraRooms:
		return true
	default:
		return false
	}
}

type RefKind string

const (
	RefUnknown RefKind = "unknown"
	RefTrial   RefKind = "trial"
	RefFree    RefKind = "free"
	RefCatalog RefKind = "catalog"
)

// Ref is a subscription's plan name resolved against the catalog. A name that
// no longer matches a catalog row resolves to RefUnknown and prices at zero.
type Ref struct {
	Kind RefKind
	Name string
	Plan *Plan
}

func (r Ref) Price() int64 {
	if r.Kind == RefCatalog && r.Plan != nil {
		return r.Plan.Price
	}
	return 0
}

func (r Ref) DisplayName() string {
	if r.Kind == RefCatalog && r.Plan != nil {
		return r.Plan.DisplayName
	}
	return r.Name
}

// IsUnpaid reports whether the reference is a trial or free state.
func (r Ref) IsUnpaid() bool {
	return r.Kind == RefTrial || r.Kind == RefFree
}
