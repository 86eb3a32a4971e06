package types

import "time"

// CurrentStateVersion is the current version of the persisted router state.
// Increment this value when changing the shape of persisted documents.
const CurrentStateVersion = 1

// TelemetrySnapshot is a single tick's worth of normalized sensor readings.
// A nil field means the source sensor was absent, unavailable or stale; the
// rule engine must never coerce a nil reading into a number.
type TelemetrySnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	BatterySOC    *float64  `json:"batterySOC"`    // 0-100
	SolarPowerW   *float64  `json:"solarPowerW"`   // solar generation (W)
	GridPowerW    *float64  `json:"gridPowerW"`    // + import, - export (W)
	BatteryPowerW *float64  `json:"batteryPowerW"` // + discharge, - charge (W)
	HeaterPowerW  *float64  `json:"heaterPowerW"`  // heater draw (W)
}

// TankState is the mutable physical state of the water tank. It is owned by
// tank.Model; everything else reads copies.
type TankState struct {
	EstimatedTempC       float64   `json:"estimatedTempC"`
	LastUpdate           time.Time `json:"lastUpdate"`
	LastHeatingStart     time.Time `json:"lastHeatingStart"`
	LastHeatingEnd       time.Time `json:"lastHeatingEnd"`
	DailyHeatingSeconds  float64   `json:"dailyHeatingSeconds"`
	DailyHeatingEnergyWH float64   `json:"dailyHeatingEnergyWH"`
	SessionsToday        int       `json:"sessionsToday"`
	StatsDate            string    `json:"statsDate"` // YYYY-MM-DD, local
	IsHeating            bool      `json:"isHeating"`
}

// HeatingInstruction is the tri-state output of the rule engine. None means
// no rule matched and the controller must hold the last relay state.
type HeatingInstruction int

const (
	InstructionNone HeatingInstruction = 0
	InstructionOff  HeatingInstruction = 1
	InstructionOn   HeatingInstruction = 2
)

func (i HeatingInstruction) String() string {
	switch i {
	case InstructionOn:
		return "turn_on"
	case InstructionOff:
		return "turn_off"
	default:
		return "none"
	}
}

// RuleNameNone is reported as the triggering rule when no rule matched.
const RuleNameNone = "none"

// HeatingDecision is recomputed from scratch every tick and never persisted.
type HeatingDecision struct {
	Timestamp   time.Time          `json:"timestamp"`
	Instruction HeatingInstruction `json:"instruction"`
	RuleName    string             `json:"ruleName"`
	Forced      bool               `json:"forced,omitempty"`
	Description string             `json:"description,omitempty"`
}

// ShouldHeat reports whether the decision asks for the heater to be on.
func (d HeatingDecision) ShouldHeat() bool {
	return d.Instruction == InstructionOn
}

// HeatingMode describes who is currently in charge of the heater.
type HeatingMode string

const (
	HeatingModeAuto   HeatingMode = "auto"
	HeatingModeForced HeatingMode = "forced"
	HeatingModeOff    HeatingMode = "off"
)

// Overrides are the user-toggled switches that gate the rule engine's
// output. They are not rules themselves.
type Overrides struct {
	AutoModeEnabled        bool      `json:"autoModeEnabled"`
	OffpeakFallbackEnabled bool      `json:"offpeakFallbackEnabled"`
	ForceHeatingUntil      time.Time `json:"forceHeatingUntil"` // zero = no force window
}

// DefaultOverrides returns the overrides used before any user toggles.
func DefaultOverrides() Overrides {
	return Overrides{
		AutoModeEnabled:        true,
		OffpeakFallbackEnabled: true,
	}
}

// ForceActive reports whether a force-heating window covers now.
func (o Overrides) ForceActive(now time.Time) bool {
	return !o.ForceHeatingUntil.IsZero() && now.Before(o.ForceHeatingUntil)
}

// Event names emitted on the bus.
const (
	EventHeatingStarted    = "heating_started"
	EventHeatingStopped    = "heating_stopped"
	EventRuleTriggered     = "rule_triggered"
	EventFallbackActivated = "fallback_activated"
)

// Event is a notification consumed by the automation layer.
type Event struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Rule      string    `json:"rule,omitempty"`
	Action    string    `json:"action,omitempty"`
	TankTempC float64   `json:"tankTemp,omitempty"`
}

// Thresholds are the adjustable numeric knobs exposed to the presentation
// layer. Writes rewrite the conditions of the rules they govern.
type Thresholds struct {
	MinBatterySOC          float64 `json:"minBatterySOC"`
	MinSolarPowerW         float64 `json:"minSolarPowerW"`
	MinDailyHeatingMinutes float64 `json:"minDailyHeatingMinutes"`
}

// Readings is the full read-only view consumed by the presentation layer.
type Readings struct {
	TankTempC            float64     `json:"tankTempC"`
	EstimatedShowers     float64     `json:"estimatedShowers"`
	DailyHeatingMinutes  float64     `json:"dailyHeatingMinutes"`
	DailyHeatingEnergyWH float64     `json:"dailyHeatingEnergyWH"`
	SessionsToday        int         `json:"sessionsToday"`
	EnergyContentKWH     float64     `json:"energyContentKWH"`
	TimeToTargetMinutes  float64     `json:"timeToTargetMinutes"` // -1 when unreachable
	TimeToColdHours      float64     `json:"timeToColdHours"`
	ActiveRule           string      `json:"activeRule"`
	HeatingMode          HeatingMode `json:"heatingMode"`
	IsHeating            bool        `json:"isHeating"`
	SolarSufficient      bool        `json:"solarSufficient"`
	BatterySufficient    bool        `json:"batterySufficient"`
	TankHot              bool        `json:"tankHot"`
	TankCold             bool        `json:"tankCold"`
	FallbackNeeded       bool        `json:"fallbackNeeded"`
}

// ForecastPoint is one hour of the projected tank temperature.
type ForecastPoint struct {
	Time         time.Time `json:"time"`
	TemperatureC float64   `json:"temperature"`
	Hour         int       `json:"hour"`
}
