package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TankConfig is the static, user-supplied description of the tank and its
// heating element. It is validated once at setup and never changes while
// the router runs.
type TankConfig struct {
	VolumeLiters      float64 `yaml:"volumeLiters" json:"volumeLiters"`
	HeaterWattage     float64 `yaml:"heaterWattage" json:"heaterWattage"`
	HeatLossRateCPerH float64 `yaml:"heatLossRateCPerH" json:"heatLossRateCPerH"`
	ColdWaterTempC    float64 `yaml:"coldWaterTempC" json:"coldWaterTempC"`
	TargetTempC       float64 `yaml:"targetTempC" json:"targetTempC"`
	MinTempC          float64 `yaml:"minTempC" json:"minTempC"`
	AmbientTempC      float64 `yaml:"ambientTempC" json:"ambientTempC"`
	ShowerDurationMin float64 `yaml:"showerDurationMin" json:"showerDurationMin"`
	ShowerFlowLPerMin float64 `yaml:"showerFlowLPerMin" json:"showerFlowLPerMin"`
	DishesDurationMin float64 `yaml:"dishesDurationMin" json:"dishesDurationMin"`
	DishesFlowLPerMin float64 `yaml:"dishesFlowLPerMin" json:"dishesFlowLPerMin"`
	HotWaterFraction  float64 `yaml:"hotWaterFraction" json:"hotWaterFraction"`
	OffpeakStart      string  `yaml:"offpeakStart" json:"offpeakStart"`
	OffpeakEnd        string  `yaml:"offpeakEnd" json:"offpeakEnd"`
}

// DefaultTankConfig returns the config for a common 200L/2.4kW tank.
func DefaultTankConfig() TankConfig {
	return TankConfig{
		VolumeLiters:      200,
		HeaterWattage:     2400,
		HeatLossRateCPerH: 0.5,
		ColdWaterTempC:    15,
		TargetTempC:       55,
		MinTempC:          40,
		AmbientTempC:      20,
		ShowerDurationMin: 10,
		ShowerFlowLPerMin: 10,
		DishesDurationMin: 10,
		DishesFlowLPerMin: 6,
		HotWaterFraction:  0.7,
		OffpeakStart:      "22:00",
		OffpeakEnd:        "06:00",
	}
}

// Validate checks the config for values that would make the thermal model
// produce garbage. These are fatal at setup, never per-tick faults.
func (c TankConfig) Validate() error {
	if c.VolumeLiters <= 0 {
		return fmt.Errorf("tank volume must be positive, got %.1f", c.VolumeLiters)
	}
	if c.HeaterWattage <= 0 {
		return fmt.Errorf("heater wattage must be positive, got %.1f", c.HeaterWattage)
	}
	if c.HeatLossRateCPerH < 0 {
		return fmt.Errorf("heat loss rate cannot be negative, got %.2f", c.HeatLossRateCPerH)
	}
	if c.TargetTempC <= c.ColdWaterTempC {
		return fmt.Errorf("target temperature (%.1f) must exceed cold water temperature (%.1f)", c.TargetTempC, c.ColdWaterTempC)
	}
	if c.MinTempC < c.ColdWaterTempC || c.MinTempC > c.TargetTempC {
		return fmt.Errorf("min temperature (%.1f) must be between cold water (%.1f) and target (%.1f)", c.MinTempC, c.ColdWaterTempC, c.TargetTempC)
	}
	if c.HotWaterFraction <= 0 || c.HotWaterFraction > 1 {
		return fmt.Errorf("hot water fraction must be in (0, 1], got %.2f", c.HotWaterFraction)
	}
	if c.ShowerDurationMin <= 0 || c.ShowerFlowLPerMin <= 0 {
		return fmt.Errorf("shower duration and flow rate must be positive")
	}
	if c.DishesDurationMin <= 0 || c.DishesFlowLPerMin <= 0 {
		return fmt.Errorf("dishes duration and flow rate must be positive")
	}
	if _, err := ParseClockTime(c.OffpeakStart); err != nil {
		return fmt.Errorf("invalid offpeak start: %w", err)
	}
	if _, err := ParseClockTime(c.OffpeakEnd); err != nil {
		return fmt.Errorf("invalid offpeak end: %w", err)
	}
	return nil
}

// LoadTankConfig reads a TankConfig from a YAML file, filling unset fields
// with defaults before validating.
func LoadTankConfig(path string) (TankConfig, error) {
	cfg := DefaultTankConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return TankConfig{}, fmt.Errorf("failed to read tank config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return TankConfig{}, fmt.Errorf("failed to parse tank config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return TankConfig{}, fmt.Errorf("invalid tank config %s: %w", path, err)
	}
	return cfg, nil
}
