package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlantConfig holds floor settings that operators may change without a
// restart.
type PlantConfig struct {
	ShiftsPerDay    int    `mapstructure:"shiftsPerDay"`
	Plant           string `mapstructure:"plant"`
	StorageLocation string `mapstructure:"storageLocation"`
	Timezone        string `mapstructure:"timezone"`
	SequenceRetries int    `mapstructure:"sequenceRetries"`

	// Machines are upserted by name at startup.
	Machines []MachineSeed `mapstructure:"machines"`
}

type MachineSeed struct {
	Name      string `mapstructure:"name"`
	Label     string `mapstructure:"label"`
	SectionID int64  `mapstructure:"sectionId"`
}

func DefaultPlantConfig() PlantConfig {
	return PlantConfig{
		ShiftsPerDay:    2,
		Plant:           "A710",
		StorageLocation: "DW01",
		Timezone:        "Asia/Jakarta",
		SequenceRetries: 3,
	}
}

// Location resolves the plant timezone, falling back to UTC.
func (c PlantConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

type PlantConfigHolder struct {
	current atomic.Value // holds PlantConfig
}

// NewStaticPlantConfigHolder returns a holder that never reloads.
func NewStaticPlantConfigHolder(cfg PlantConfig) *PlantConfigHolder {
	holder := &PlantConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewPlantConfigHolder loads plant.yml and watches it for changes. Reload
// messages go to the global logger.
func NewPlantConfigHolder() (*PlantConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plant")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/millroll/config")
	v.AddConfigPath("/etc/millroll")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MILLROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlantConfig()
	v.SetDefault("plant.shiftsPerDay", defaults.ShiftsPerDay)
	v.SetDefault("plant.plant", defaults.Plant)
	v.SetDefault("plant.storageLocation", defaults.StorageLocation)
	v.SetDefault("plant.timezone", defaults.Timezone)
	v.SetDefault("plant.sequenceRetries", defaults.SequenceRetries)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PlantConfig
	if err := v.UnmarshalKey("plant", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlantConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlantConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config")
		var updated PlantConfig
		if err := v.UnmarshalKey("plant", &updated); err != nil {
			log.Warn("plant config reload failed", zap.Error(err))
			return
		}
		if err := validatePlantConfig(updated); err != nil {
			log.Warn("invalid plant config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plant config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlantConfigHolder) Get() PlantConfig {
	return h.current.Load().(PlantConfig)
}

func validatePlantConfig(cfg PlantConfig) error {
	if cfg.ShiftsPerDay < 1 {
		return errors.New("plant.shiftsPerDay must be at least 1")
	}
	if strings.TrimSpace(cfg.Plant) == "" {
		return errors.New("plant.plant cannot be empty")
	}
	if strings.TrimSpace(cfg.StorageLocation) == "" {
		return errors.New("plant.storageLocation cannot be empty")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("plant.timezone: %w", err)
	}
	if cfg.SequenceRetries < 1 {
		return errors.New("plant.sequenceRetries must be at least 1")
	}
	for i, m := range cfg.Machines {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Label) == "" {
			return fmt.Errorf("plant.machines[%d]: name and label are required", i)
		}
	}
	return nil
}
