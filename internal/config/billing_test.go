package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	cfg := DefaultBillingConfig()
	assert.NoError(t, validateBillingConfig(cfg))
	assert.Equal(t, int64(10000), cfg.ExtraRoomPrice)
	assert.Equal(t, 14, cfg.TrialDays)
	assert.Equal(t, MonthArithmeticFixed30, cfg.MonthArithmetic)
}

func TestValidateBillingConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*BillingConfig){
		"negative room price": func(c *BillingConfig) { c.ExtraRoomPrice = -1 },
		"zero trial days":     func(c *BillingConfig) { c.TrialDays = 0 },
		"zero rounding":       func(c *BillingConfig) { c.RoundingUnit = 0 },
		"zero room cap":       func(c *BillingConfig) { c.MaxExtraRooms = 0 },
		"discount above one":  func(c *BillingConfig) { c.AnnualDiscount = 1.5 },
		"unknown arithmetic":  func(c *BillingConfig) { c.MonthArithmetic = "lunar" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			mutate(&cfg)
			assert.Error(t, validateBillingConfig(cfg))
		})
	}
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), holder.Get())
}
