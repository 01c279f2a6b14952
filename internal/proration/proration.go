// Package proration prices plan changes, add-on rooms and renewals. Every
// function is pure: settings and the current time are passed in.
package proration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/smallbiznis/petlog/internal/config"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
)

const (
	day = 24 * time.Hour

	// Add-on rooms are priced against a flat month regardless of the
	// subscription's actual billing window.
	roomMonthDays = 30
)

var (
	ErrDowngradeNotAllowed       = errors.New("downgrade_not_allowed")
	ErrExtraRoomsRequirePaidPlan = errors.New("extra_rooms_require_paid_plan")
	ErrInvalidMonths             = errors.New("invalid_months")
	ErrInvalidRooms              = errors.New("invalid_rooms")
	ErrAmountOverflow            = errors.New("amount_overflow")
)

type QuoteType string

const (
	QuoteTypeNew        QuoteType = "new"
	QuoteTypeUpgrade    QuoteType = "upgrade"
	QuoteTypeExtraRooms QuoteType = "extra_rooms"
	QuoteTypeRenewal    QuoteType = "renewal"
)

// Settings are the pricing tunables in effect for one calculation.
type Settings struct {
	ExtraRoomPrice  int64
	TrialDays       int
	TrialMaxRooms   int
	MaxExtraRooms   int
	RoundingUnit    int64
	AnnualMonths    int
	AnnualDiscount  float64
	MaxMonths       int
	MonthArithmetic string
}

func DefaultSettings() Settings {
	return FromBillingConfig(config.DefaultBillingConfig())
}

func FromBillingConfig(cfg config.BillingConfig) Settings {
	return Settings{
		ExtraRoomPrice:  cfg.ExtraRoomPrice,
		TrialDays:       cfg.TrialDays,
		TrialMaxRooms:   cfg.TrialMaxRooms,
		MaxExtraRooms:   cfg.MaxExtraRooms,
		RoundingUnit:    cfg.RoundingUnit,
		AnnualMonths:    cfg.AnnualMonths,
		AnnualDiscount:  cfg.AnnualDiscount,
		MaxMonths:       cfg.MaxMonths,
		MonthArithmetic: cfg.MonthArithmetic,
	}
}

// Window is the billing window of a subscription.
type Window struct {
	Plan       string
	ExtraRooms int
	StartedAt  time.Time
	ExpiresAt  *time.Time
}

type Quote struct {
	Type           QuoteType  `json:"type"`
	CurrentPlan    string     `json:"current_plan,omitempty"`
	NewPlan        string     `json:"new_plan,omitempty"`
	NewPlanDisplay string     `json:"new_plan_display,omitempty"`
	NewPrice       int64      `json:"new_price"`
	CurrentPrice   int64      `json:"current_price"`
	DaysRemaining  int        `json:"days_remaining"`
	TotalDays      int        `json:"total_days"`
	ProratedAmount int64      `json:"prorated_amount"`
	Amount         int64      `json:"amount"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Rooms          int        `json:"rooms,omitempty"`
	Months         int        `json:"months,omitempty"`
	Message        string     `json:"message"`
}

// QuoteUpgrade prices a move from the current plan to target.
func QuoteUpgrade(w Window, current plandomain.Ref, target plandomain.Plan, s Settings, now time.Time) (Quote, error) {
	q := Quote{
		Type:           QuoteTypeNew,
		CurrentPlan:    w.Plan,
		NewPlan:        target.Name,
		NewPlanDisplay: target.DisplayName,
		NewPrice:       target.Price,
		Amount:         target.Price,
	}

	if current.IsUnpaid() || w.ExpiresAt == nil {
		q.TotalDays = roomMonthDays
		q.Message = fmt.Sprintf("Subscribe to %s", target.DisplayName)
		return q, nil
	}

	q.CurrentPrice = current.Price()
	q.TotalDays = max(1, ceilDays(w.ExpiresAt.Sub(w.StartedAt)))
	q.DaysRemaining = DaysRemaining(w.ExpiresAt, now)

	if q.DaysRemaining == 0 {
		q.Message = fmt.Sprintf("Current plan has expired. Subscribe to %s.", target.DisplayName)
		return q, nil
	}

	diff := target.Price - q.CurrentPrice
	if diff <= 0 {
		return Quote{}, ErrDowngradeNotAllowed
	}

	prorated := RoundUp(ceilDiv(diff*int64(q.DaysRemaining), int64(q.TotalDays)), s.RoundingUnit)
	expiresAt := *w.ExpiresAt

	q.Type = QuoteTypeUpgrade
	q.ProratedAmount = prorated
	q.Amount = prorated
	q.ExpiresAt = &expiresAt
	q.Message = fmt.Sprintf("Upgrade: %d difference for %d remaining days. Expiry date unchanged.", prorated, q.DaysRemaining)
	return q, nil
}

// QuoteExtraRooms prices add-on rooms for the rest of the current paid window.
func QuoteExtraRooms(w Window, rooms int, s Settings, now time.Time) (Quote, error) {
	if rooms < 1 || !s.roomsAllowed(w.ExtraRooms, rooms) {
		return Quote{}, ErrInvalidRooms
	}
	if w.ExpiresAt == nil {
		return Quote{}, ErrExtraRoomsRequirePaidPlan
	}
	remaining := DaysRemaining(w.ExpiresAt, now)
	if remaining == 0 {
		return Quote{}, ErrExtraRoomsRequirePaidPlan
	}

	total, err := mulAmount(int64(rooms), s.ExtraRoomPrice, int64(remaining))
	if err != nil {
		return Quote{}, err
	}
	amount := RoundUp(ceilDiv(total, roomMonthDays), s.RoundingUnit)
	expiresAt := *w.ExpiresAt
	return Quote{
		Type:           QuoteTypeExtraRooms,
		CurrentPlan:    w.Plan,
		NewPlan:        plandomain.NameExtraRooms,
		NewPrice:       s.ExtraRoomPrice,
		DaysRemaining:  remaining,
		TotalDays:      roomMonthDays,
		ProratedAmount: amount,
		Amount:         amount,
		ExpiresAt:      &expiresAt,
		Rooms:          rooms,
		Message:        fmt.Sprintf("%d extra rooms for %d remaining days", rooms, remaining),
	}, nil
}

// QuoteRenewal prices a fresh term of target, carrying existing add-on rooms
// and any newly bundled ones for the same number of months.
func QuoteRenewal(target plandomain.Plan, months, existingExtra, newExtra int, s Settings) (Quote, error) {
	if months < 1 || (s.MaxMonths > 0 && months > s.MaxMonths) {
		return Quote{}, ErrInvalidMonths
	}
	if existingExtra < 0 || newExtra < 0 || !s.roomsAllowed(existingExtra, newExtra) {
		return Quote{}, ErrInvalidRooms
	}

	discount := 1.0
	if s.AnnualMonths > 0 && months == s.AnnualMonths && s.AnnualDiscount > 0 {
		discount = s.AnnualDiscount
	}
	// The epsilon absorbs binary representation error, e.g. 1188000*0.9.
	base := math.Ceil(float64(target.Price)*float64(months)*discount - 1e-6)
	if base >= math.MaxInt64 {
		return Quote{}, ErrAmountOverflow
	}
	rooms, err := RoomsCost(existingExtra+newExtra, months, s)
	if err != nil {
		return Quote{}, err
	}
	total, err := SumAmounts(int64(base), rooms)
	if err != nil {
		return Quote{}, err
	}
	amount := RoundUp(total, s.RoundingUnit)

	return Quote{
		Type:           QuoteTypeRenewal,
		NewPlan:        target.Name,
		NewPlanDisplay: target.DisplayName,
		NewPrice:       target.Price,
		Amount:         amount,
		Rooms:          existingExtra + newExtra,
		Months:         months,
		Message:        fmt.Sprintf("%s x %d months", target.DisplayName, months),
	}, nil
}

// RoomsCost is the unrounded price of rooms add-on rooms for months full months.
func RoomsCost(rooms, months int, s Settings) (int64, error) {
	if rooms < 0 || !s.roomsAllowed(0, rooms) {
		return 0, ErrInvalidRooms
	}
	return mulAmount(int64(rooms), s.ExtraRoomPrice, int64(months))
}

// SumAmounts adds non-negative amounts, failing instead of wrapping.
func SumAmounts(amounts ...int64) (int64, error) {
	var total int64
	for _, a := range amounts {
		if a < 0 || total > math.MaxInt64-a {
			return 0, ErrAmountOverflow
		}
		total += a
	}
	return total, nil
}

// roomsAllowed reports whether added rooms fit on top of existing ones.
// A zero MaxExtraRooms leaves the count unbounded.
func (s Settings) roomsAllowed(existing, added int) bool {
	if s.MaxExtraRooms <= 0 {
		return true
	}
	return existing <= s.MaxExtraRooms && added <= s.MaxExtraRooms-existing
}

// mulAmount multiplies non-negative factors, failing instead of wrapping.
func mulAmount(factors ...int64) (int64, error) {
	product := int64(1)
	for _, f := range factors {
		if f < 0 {
			return 0, ErrAmountOverflow
		}
		if f != 0 && product > math.MaxInt64/f {
			return 0, ErrAmountOverflow
		}
		product *= f
	}
	return product, nil
}

// RoundUp rounds amount up to the next multiple of unit.
func RoundUp(amount, unit int64) int64 {
	if unit <= 1 || amount <= 0 {
		return amount
	}
	return ceilDiv(amount, unit) * unit
}

// ExpiryAfter returns the end of a paid term of months starting at now.
func ExpiryAfter(now time.Time, months int, arithmetic string) time.Time {
	if months < 1 {
		months = 1
	}
	if arithmetic == config.MonthArithmeticCalendar {
		return now.AddDate(0, months, 0)
	}
	return now.AddDate(0, 0, 30*months)
}

// TrialEnd returns the end of a trial of days calendar days starting at now.
func TrialEnd(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, days)
}

// DaysRemaining is the number of started days left before expiresAt, never negative.
func DaysRemaining(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	return max(0, ceilDays(expiresAt.Sub(now)))
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	q := a / b
	if a > 0 && a%b != 0 {
		q++
	}
	return q
}
