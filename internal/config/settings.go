package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Settings is the presentation-level store configuration persisted alongside the ledger cache.
type Settings struct {
	CompanyName       string   `mapstructure:"companyName" json:"companyName"`
	Currency          string   `mapstructure:"currency" json:"currency"`
	LowStockThreshold int      `mapstructure:"lowStockThreshold" json:"lowStockThreshold"`
	ExpenseCategories []string `mapstructure:"expenseCategories" json:"expenseCategories"`
	Locale            string   `mapstructure:"locale" json:"locale"`
	Direction         string   `mapstructure:"direction" json:"direction"`
}

func DefaultSettings() Settings {
	return Settings{
		CompanyName:       "My Store",
		Currency:          "EGP",
		LowStockThreshold: 5,
		ExpenseCategories: []string{"rent", "salaries", "utilities", "supplies", "other"},
		Locale:            "ar",
		Direction:         "rtl",
	}
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewStaticSettingsHolder wraps fixed settings, used by tests and by imports of backups.
func NewStaticSettingsHolder(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(s)
	return holder
}

func NewSettingsHolder(cfg Config) (*SettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("settings")
	v.SetConfigType("yml")
	if cfg.SettingsPath != "" {
		v.AddConfigPath(cfg.SettingsPath)
	}
	v.AddConfigPath("/etc/storeledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STORELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("store.companyName", defaults.CompanyName)
	v.SetDefault("store.currency", defaults.Currency)
	v.SetDefault("store.lowStockThreshold", defaults.LowStockThreshold)
	v.SetDefault("store.expenseCategories", defaults.ExpenseCategories)
	v.SetDefault("store.locale", defaults.Locale)
	v.SetDefault("store.direction", defaults.Direction)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var settings Settings
	if err := v.UnmarshalKey("store", &settings); err != nil {
		return nil, err
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	holder := NewStaticSettingsHolder(settings)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated Settings
			if err := v.UnmarshalKey("store", &updated); err != nil {
				log.Printf("[settings] reload failed: %v", err)
				return
			}
			if err := validateSettings(updated); err != nil {
				log.Printf("[settings] invalid settings ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[settings] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	return h.current.Load().(Settings)
}

// Set replaces the live settings, e.g. after a backup import.
func (h *SettingsHolder) Set(s Settings) error {
	if err := validateSettings(s); err != nil {
		return err
	}
	h.current.Store(s)
	return nil
}

func validateSettings(s Settings) error {
	if strings.TrimSpace(s.Currency) == "" {
		return errors.New("store.currency cannot be empty")
	}
	if s.LowStockThreshold < 0 {
		return errors.New("store.lowStockThreshold cannot be negative")
	}
	return nil
}
