package machines

// Config holds the tunables of every unit kind.
type Config struct {
	Bottler    BottlerConfig    `yaml:"bottler"`
	Raintank   RaintankConfig   `yaml:"raintank"`
	Engine     EngineConfig     `yaml:"engine_electric"`
	Fabricator FabricatorConfig `yaml:"fabricator"`
}

// PoweredConfig sizes a unit's internal energy buffer and work cost.
type PoweredConfig struct {
	EnergyCapacity int `yaml:"energy_capacity" validate:"gt=0"`
	MaxTransfer    int `yaml:"max_transfer" validate:"gt=0"`
	EnergyPerCycle int `yaml:"energy_per_cycle" validate:"gte=0"`
	TicksPerCycle  int `yaml:"ticks_per_cycle" validate:"gt=0"`
}

type BottlerConfig struct {
	Powered       PoweredConfig `yaml:"powered"`
	TankCapacity  int           `yaml:"tank_capacity" validate:"gt=0"`
	CheckInterval int           `yaml:"check_interval" validate:"gt=0"`
}

type RaintankConfig struct {
	TankCapacity    int `yaml:"tank_capacity" validate:"gt=0"`
	AmountPerUpdate int `yaml:"amount_per_update" validate:"gt=0"`
	FillingTime     int `yaml:"filling_time" validate:"gt=0"`
	CheckInterval   int `yaml:"check_interval" validate:"gt=0"`
}

type EngineConfig struct {
	MaxHeat        int `yaml:"max_heat" validate:"gt=0"`
	EnergyCapacity int `yaml:"energy_capacity" validate:"gt=0"`
	MaxTransfer    int `yaml:"max_transfer" validate:"gt=0"`
	EUForCycle     int `yaml:"eu_for_cycle" validate:"gt=0"`
	RFPerCycle     int `yaml:"rf_per_cycle" validate:"gt=0"`
	EUStorage      int `yaml:"eu_storage" validate:"gt=0"`
	StatusInterval int `yaml:"status_interval" validate:"gt=0"`
	BatteryFactor  int `yaml:"battery_factor" validate:"gt=0"`
}

type FabricatorConfig struct {
	Powered       PoweredConfig `yaml:"powered"`
	TankCapacity  int           `yaml:"tank_capacity" validate:"gt=0"`
	MaxHeat       int           `yaml:"max_heat" validate:"gt=0"`
	HeatPerCycle  int           `yaml:"heat_per_cycle" validate:"gt=0"`
	SolidifyLoss  int           `yaml:"solidify_loss" validate:"gt=0"`
	CheckInterval int           `yaml:"check_interval" validate:"gt=0"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Bottler: BottlerConfig{
			Powered:       PoweredConfig{EnergyCapacity: 4000, MaxTransfer: 1100, EnergyPerCycle: 200, TicksPerCycle: 4},
			TankCapacity:  10000,
			CheckInterval: 20,
		},
		Raintank: RaintankConfig{
			TankCapacity:    30000,
			AmountPerUpdate: 10,
			FillingTime:     12,
			CheckInterval:   20,
		},
		Engine: EngineConfig{
			MaxHeat:        10000,
			EnergyCapacity: 100000,
			MaxTransfer:    200,
			EUForCycle:     6,
			RFPerCycle:     20,
			EUStorage:      32,
			StatusInterval: 80,
			BatteryFactor:  3,
		},
		Fabricator: FabricatorConfig{
			Powered:       PoweredConfig{EnergyCapacity: 8000, MaxTransfer: 1100, EnergyPerCycle: 200, TicksPerCycle: 4},
			TankCapacity:  2000,
			MaxHeat:       5000,
			HeatPerCycle:  25,
			SolidifyLoss:  5,
			CheckInterval: 20,
		},
	}
}
