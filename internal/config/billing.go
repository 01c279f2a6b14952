package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	MonthArithmeticFixed30  = "fixed30"
	MonthArithmeticCalendar = "calendar"
)

// BillingConfig carries deployment tunables for pricing. Values stored in the
// system_configs table take precedence over ExtraRoomPrice and TrialDays.
type BillingConfig struct {
	ExtraRoomPrice  int64   `mapstructure:"extraRoomPrice"`
	TrialDays       int     `mapstructure:"trialDays"`
	TrialMaxRooms   int     `mapstructure:"trialMaxRooms"`
	MaxExtraRooms   int     `mapstructure:"maxExtraRooms"`
	RoundingUnit    int64   `mapstructure:"roundingUnit"`
	AnnualMonths    int     `mapstructure:"annualMonths"`
	AnnualDiscount  float64 `mapstructure:"annualDiscount"`
	MaxMonths       int     `mapstructure:"maxMonths"`
	MonthArithmetic string  `mapstructure:"monthArithmetic"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		ExtraRoomPrice:  10000,
		TrialDays:       14,
		TrialMaxRooms:   3,
		MaxExtraRooms:   500,
		RoundingUnit:    1000,
		AnnualMonths:    12,
		AnnualDiscount:  0.9,
		MaxMonths:       36,
		MonthArithmetic: MonthArithmeticFixed30,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/petlog")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PETLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.extraRoomPrice", defaults.ExtraRoomPrice)
	v.SetDefault("billing.trialDays", defaults.TrialDays)
	v.SetDefault("billing.trialMaxRooms", defaults.TrialMaxRooms)
	v.SetDefault("billing.maxExtraRooms", defaults.MaxExtraRooms)
	v.SetDefault("billing.roundingUnit", defaults.RoundingUnit)
	v.SetDefault("billing.annualMonths", defaults.AnnualMonths)
	v.SetDefault("billing.annualDiscount", defaults.AnnualDiscount)
	v.SetDefault("billing.maxMonths", defaults.MaxMonths)
	v.SetDefault("billing.monthArithmetic", defaults.MonthArithmetic)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.billing")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.ExtraRoomPrice < 0 {
		return errors.New("billing.extraRoomPrice cannot be negative")
	}
	if cfg.TrialDays <= 0 {
		return errors.New("billing.trialDays must be positive")
	}
	if cfg.RoundingUnit <= 0 {
		return errors.New("billing.roundingUnit must be positive")
	}
	if cfg.AnnualDiscount <= 0 || cfg.AnnualDiscount > 1 {
		return errors.New("billing.annualDiscount must be in (0, 1]")
	}
	if cfg.MaxExtraRooms <= 0 {
		return errors.New("billing.maxExtraRooms must be positive")
	}
	if cfg.MaxMonths <= 0 {
		return errors.New("billing.maxMonths must be positive")
	}
	switch cfg.MonthArithmetic {
	case MonthArithmeticFixed30, MonthArithmeticCalendar:
	default:
		return errors.New("billing.monthArithmetic must be fixed30 or calendar")
	}
	return nil
}
