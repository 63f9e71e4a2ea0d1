package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoyaltyConfig holds the defaults used when a tenant has no explicit
// loyalty program row yet.
type LoyaltyConfig struct {
	CashbackPercentage    float64
	MinimumPurchaseAmount float64
	MaximumCashbackAmount float64
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		CashbackPercentage:    5,
		MinimumPurchaseAmount: 10_000,
		MaximumCashbackAmount: 5_000,
	}
}

// LoyaltyConfigHolder exposes the current loyalty defaults and hot-reloads
// them when the config file changes.
type LoyaltyConfigHolder struct {
	current atomic.Value // holds LoyaltyConfig
}

func NewLoyaltyConfigHolder() (*LoyaltyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/zenbill/config") // Volume-mounted config
	v.AddConfigPath("/etc/zenbill")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("ZENBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered before reading so a config file that omits the
	// loyalty key, or individual fields under it, falls back to them instead
	// of silently zeroing the program.
	defaults := DefaultLoyaltyConfig()
	v.SetDefault("loyalty.cashbackPercentage", defaults.CashbackPercentage)
	v.SetDefault("loyalty.minimumPurchaseAmount", defaults.MinimumPurchaseAmount)
	v.SetDefault("loyalty.maximumCashbackAmount", defaults.MaximumCashbackAmount)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := loyaltyConfigFrom(v)
	if err := validateLoyaltyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := loyaltyConfigFrom(v)
		if err := validateLoyaltyConfig(updated); err != nil {
			log.Printf("[loyalty-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[loyalty-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LoyaltyConfigHolder) Get() LoyaltyConfig {
	return h.current.Load().(LoyaltyConfig)
}

// loyaltyConfigFrom reads leaf keys individually so each field resolves
// through viper's full precedence chain down to the registered default.
func loyaltyConfigFrom(v *viper.Viper) LoyaltyConfig {
	return LoyaltyConfig{
		CashbackPercentage:    v.GetFloat64("loyalty.cashbackPercentage"),
		MinimumPurchaseAmount: v.GetFloat64("loyalty.minimumPurchaseAmount"),
		MaximumCashbackAmount: v.GetFloat64("loyalty.maximumCashbackAmount"),
	}
}

func validateLoyaltyConfig(cfg LoyaltyConfig) error {
	if cfg.CashbackPercentage < 0 || cfg.CashbackPercentage > 100 {
		return errors.New("loyalty.cashbackPercentage must be between 0 and 100")
	}
	if cfg.MinimumPurchaseAmount < 0 {
		return errors.New("loyalty.minimumPurchaseAmount cannot be negative")
	}
	if cfg.MaximumCashbackAmount < 0 {
		return errors.New("loyalty.maximumCashbackAmount cannot be negative")
	}
	return nil
}
