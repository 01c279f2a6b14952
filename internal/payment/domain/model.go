package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

type Kind string

const (
	KindRenewal    Kind = "renewal"
	KindUpgrade    Kind = "upgrade"
	KindExtraRooms Kind = "extra_rooms"
)

// Payment is one checkout attempt. It moves from pending to paid once and is
// never deleted.
type Payment struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	TenantID    int64          `gorm:"not null;index:ix_payments_tenant"`
	OrderCode   int64          `gorm:"not null;uniqueIndex:ux_payments_order_code"`
	Amount      int64          `gorm:"not null"`
	PlanName    string         `gorm:"type:varchar(30);not null"`
	Kind        Kind           `gorm:"type:varchar(20);not null"`
	Months      int            `gorm:"not null;default:0"`
	RoomCount   int            `gorm:"not null;default:0"`
	ExtraRooms  int            `gorm:"not null;default:0"`
	Status      Status         `gorm:"type:varchar(20);not null;index:ix_payments_status"`
	Gateway     string         `gorm:"type:varchar(20);not null"`
	GatewayRef  *string        `gorm:"type:varchar(255)"`
	CheckoutURL *string        `gorm:"type:text"`
	GatewayData datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	PaidAt      *time.Time
}

func (Payment) TableName() string { return "payments" }

func (p Payment) IsPaid() bool { return p.Status == StatusPaid }

// Purchase is what a paid payment grants.
type Purchase struct {
	Kind         Kind
	Months       int
	Rooms        int
	BundledRooms int
}

func (p Payment) Purchase() Purchase {
	return Purchase{
		Kind:         p.Kind,
		Months:       p.Months,
		Rooms:        p.RoomCount,
		BundledRooms: p.ExtraRooms,
	}
}

// LegacyMonths renders the purchase in the single-column encoding used by
// older reports: 0 for an upgrade, the room count for an add-on, otherwise
// the term in months.
func (p Payment) LegacyMonths() int {
	switch p.Kind {
	case KindUpgrade:
		return 0
	case KindExtraRooms:
		return p.RoomCount
	default:
		return p.Months
	}
}

// PurchaseFromLegacy decodes the single-column encoding.
func PurchaseFromLegacy(planName string, months int) Purchase {
	switch {
	case planName == plandomain.NameExtraRooms:
		return Purchase{Kind: KindExtraRooms, Rooms: months}
	case months == 0:
		return Purchase{Kind: KindUpgrade}
	default:
		return Purchase{Kind: KindRenewal, Months: months}
	}
}
