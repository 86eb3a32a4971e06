package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ConditionType enumerates the fixed condition vocabulary. Conditions
// outside this set are rejected at the service boundary.
type ConditionType string

const (
	ConditionBatterySOCAbove   ConditionType = "battery_soc_above"
	ConditionBatterySOCBelow   ConditionType = "battery_soc_below"
	ConditionSolarPowerAbove   ConditionType = "solar_power_above"
	ConditionSolarPowerBelow   ConditionType = "solar_power_below"
	ConditionGridExportAbove   ConditionType = "grid_export_above"
	ConditionGridImportAbove   ConditionType = "grid_import_above"
	ConditionTankTempAbove     ConditionType = "tank_temp_above"
	ConditionTankTempBelow     ConditionType = "tank_temp_below"
	ConditionTimeBetween       ConditionType = "time_between"
	ConditionDailyHeatingBelow ConditionType = "daily_heating_below"
	ConditionDailyHeatingAbove ConditionType = "daily_heating_above"
	ConditionOffpeakHours      ConditionType = "offpeak_hours"
)

// ConditionTypes lists every member of the vocabulary.
var ConditionTypes = []ConditionType{
	ConditionBatterySOCAbove,
	ConditionBatterySOCBelow,
	ConditionSolarPowerAbove,
	ConditionSolarPowerBelow,
	ConditionGridExportAbove,
	ConditionGridImportAbove,
	ConditionTankTempAbove,
	ConditionTankTempBelow,
	ConditionTimeBetween,
	ConditionDailyHeatingBelow,
	ConditionDailyHeatingAbove,
	ConditionOffpeakHours,
}

func (t ConditionType) valid() bool {
	for _, known := range ConditionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// needsValue reports whether the condition type carries a numeric payload.
func (t ConditionType) needsValue() bool {
	switch t {
	case ConditionTimeBetween, ConditionOffpeakHours:
		return false
	}
	return true
}

// Condition is one predicate inside a rule. Numeric condition types use
// Value; time_between uses Start/End (HH:MM, wrap-around when Start > End);
// offpeak_hours carries no payload and uses the configured off-peak window.
type Condition struct {
	Type  ConditionType `json:"type"`
	Value *float64      `json:"value,omitempty"`
	Start string        `json:"start,omitempty"`
	End   string        `json:"end,omitempty"`
}

// Validate rejects conditions outside the vocabulary or with a missing or
// malformed payload.
func (c Condition) Validate() error {
	if !c.Type.valid() {
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if c.Type.needsValue() && c.Value == nil {
		return fmt.Errorf("condition %q requires a numeric value", c.Type)
	}
	if c.Type == ConditionTimeBetween {
		if _, err := ParseClockTime(c.Start); err != nil {
			return fmt.Errorf("condition %q start: %w", c.Type, err)
		}
		if _, err := ParseClockTime(c.End); err != nil {
			return fmt.Errorf("condition %q end: %w", c.Type, err)
		}
	}
	return nil
}

// RuleAction is what a matching rule asks of the heater.
type RuleAction string

const (
	ActionTurnOn  RuleAction = "turn_on"
	ActionTurnOff RuleAction = "turn_off"
)

// Instruction translates an action into a heating instruction.
func (a RuleAction) Instruction() HeatingInstruction {
	if a == ActionTurnOn {
		return InstructionOn
	}
	return InstructionOff
}

// Rule is one entry of the routing rule table, keyed by Name. Conditions
// are AND-ed; higher Priority wins among simultaneously matching rules.
// Seq is assigned by the engine on upsert and breaks priority ties in
// favor of the most recently defined rule.
type Rule struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Priority    int         `json:"priority"`
	Enabled     bool        `json:"enabled"`
	Conditions  []Condition `json:"conditions"`
	Action      RuleAction  `json:"action"`
	Seq         int64       `json:"seq"`
}

// ErrInvalidRule wraps every rule validation failure so callers can tell
// a bad definition from a storage fault.
var ErrInvalidRule = errors.New("invalid rule")

// Validate checks the rule definition before it may enter the table. A
// rejected rule leaves the table untouched.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidRule)
	}
	if r.Priority < 0 || r.Priority > 100 {
		return fmt.Errorf("%w: rule %q: priority must be 0-100, got %d", ErrInvalidRule, r.Name, r.Priority)
	}
	if r.Action != ActionTurnOn && r.Action != ActionTurnOff {
		return fmt.Errorf("%w: rule %q: unknown action %q", ErrInvalidRule, r.Name, r.Action)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: rule %q: at least one condition required", ErrInvalidRule, r.Name)
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: rule %q condition %d: %v", ErrInvalidRule, r.Name, i, err)
		}
	}
	return nil
}

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// InWindow reports whether the clock time t falls within [start, end],
// treating start > end as a window wrapping past midnight.
func InWindow(t, start, end ClockTime) bool {
	tm, sm, em := t.minutes(), start.minutes(), end.minutes()
	if sm <= em {
		return tm >= sm && tm <= em
	}
	// overnight window, e.g. 22:00-06:00
	return tm >= sm || tm <= em
}

// Float64Ptr returns a pointer to v, for building condition payloads.
func Float64Ptr(v float64) *float64 {
	return &v
}
