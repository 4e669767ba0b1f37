// Package config provides configuration loading for the factory simulation:
// runtime settings, unit tuning, the item catalog and the recipe set.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/worldctx"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Energy    EnergyConfig    `yaml:"energy"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Machines  machines.Config `yaml:"machines"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Recipes   RecipesConfig   `yaml:"recipes"`

	// Layout is placed when a fresh world starts.
	Layout []PlacementConfig `yaml:"layout" validate:"dive"`
}

// WorldConfig holds the world-context parameters.
type WorldConfig struct {
	Seed       int64          `yaml:"seed"`
	RainChance float64        `yaml:"rain_chance" validate:"gte=0,lte=1"` // fraction of time it rains
	Covered    []worldctx.Pos `yaml:"covered"`                            // columns with no sky access
	Speed      float64        `yaml:"speed" validate:"gte=0"`             // 1.0 = real time
}

// EnergyConfig holds the built-in grid provider settings.
type EnergyConfig struct {
	Grid    bool `yaml:"grid"`
	PerTick int  `yaml:"per_tick" validate:"gte=0"` // EU the grid supplies each tick
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port       int      `yaml:"port" validate:"gte=0,lte=65535"` // 0 disables the API
	AdminKey   string   `yaml:"admin_key"`
	SyncBuffer int      `yaml:"sync_buffer" validate:"gt=0"` // frames queued per observer
	RateLimit  int      `yaml:"rate_limit" validate:"gte=0"` // requests per minute per IP
	CORS       []string `yaml:"cors_origins"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path         string `yaml:"path" validate:"required"`
	AutoSaveDays int    `yaml:"auto_save_days" validate:"gte=0"` // 0 saves only on shutdown
}

// TelemetryConfig holds tick statistics output settings.
type TelemetryConfig struct {
	CSVPath string `yaml:"csv_path"` // empty disables CSV output
}

// CatalogConfig declares every item, fluid, ore name and container.
type CatalogConfig struct {
	Items      []items.ItemDef           `yaml:"items" validate:"dive"`
	Fluids     []items.FluidID           `yaml:"fluids" validate:"dive,required"`
	Ores       map[string][]items.ItemID `yaml:"ores"`
	Containers []items.ContainerData     `yaml:"containers"`
}

// PlacementConfig places one unit. LinkTo names the index of another
// placement this unit's energy output feeds.
type PlacementConfig struct {
	Kind   machines.Kind `yaml:"kind" validate:"required,oneof=bottler raintank engine_electric worktable fabricator"`
	Pos    worldctx.Pos  `yaml:"pos"`
	LinkTo *int          `yaml:"link_to" validate:"omitempty,gte=0"`
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployment override the settings that differ per host.
func (c *Config) applyEnv() {
	if v := os.Getenv("FACTORY_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("FACTORY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("FACTORY_ADMIN_KEY"); v != "" {
		c.Server.AdminKey = v
	}
}

// Validate checks field constraints and cross references.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for i, p := range c.Layout {
		if p.LinkTo != nil && (*p.LinkTo >= len(c.Layout) || *p.LinkTo == i) {
			return fmt.Errorf("invalid config: layout[%d] links to %d", i, *p.LinkTo)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
