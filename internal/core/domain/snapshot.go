package domain

import (
	"reflect"
	"sort"
)

// Snapshot is the flat key/value view of the device state. Values are
// scalars (bool, number, string) or nil.
type Snapshot map[string]any

const (
	// static, fetched on connect
	KEY_SYSTEM_DERATE_PERCENT            = "system-derate-percent"
	KEY_SYSTEM_DERATE_POWER              = "system-derate-power"
	KEY_SYSTEM_ADDITIONAL_SOURCE         = "system-additional-source-available"
	KEY_SYSTEM_BATTERY_INSTALLED_CAP     = "system-battery-installed-capacity"
	KEY_SYSTEM_BATTERY_INSTALLED_PEAK    = "system-battery-installed-peak"
	KEY_SYSTEM_AC_MAXPOWER               = "system-ac-maxpower"
	KEY_SYSTEM_BATTERY_CHARGE_MAX        = "system-battery-charge-max"
	KEY_SYSTEM_BATTERY_DISCHARGE_MAX     = "system-battery-discharge-max"
	KEY_SYSTEM_MAC                       = "system-mac"
	KEY_MODEL                            = "model"
	KEY_SYSTEM_DISCHARGE_MINIMUM_DEFAULT = "system-battery-discharge-minimum-default"
	KEY_SYSTEM_SOFTWARE_VERSION          = "system-software-version"
	KEY_TIMEZONE                         = "e3dc_timezone"

	// poll
	KEY_ADDITIONAL_PRODUCTION = "additional-production"
	KEY_AUTARKY               = "autarky"
	KEY_BATTERY_CHARGE        = "battery-charge"
	KEY_BATTERY_DISCHARGE     = "battery-discharge"
	KEY_BATTERY_NETCHANGE     = "battery-netchange"
	KEY_GRID_CONSUMPTION      = "grid-consumption"
	KEY_GRID_NETCHANGE        = "grid-netchange"
	KEY_GRID_PRODUCTION       = "grid-production"
	KEY_HOUSE_CONSUMPTION     = "house-consumption"
	KEY_SELFCONSUMPTION       = "selfconsumption"
	KEY_SOC                   = "soc"
	KEY_SOLAR_PRODUCTION      = "solar-production"
	KEY_WALLBOX_CONSUMPTION   = "wallbox-consumption"

	// power settings
	KEY_PSET_LIMIT_CHARGE             = "pset-limit-charge"
	KEY_PSET_LIMIT_DISCHARGE          = "pset-limit-discharge"
	KEY_PSET_LIMIT_DISCHARGE_MINIMUM  = "pset-limit-discharge-minimum"
	KEY_PSET_LIMIT_ENABLED            = "pset-limit-enabled"
	KEY_PSET_POWERSAVING_ENABLED      = "pset-powersaving-enabled"
	KEY_PSET_WEATHERREGULATED_ENABLED = "pset-weatherregulationenabled"

	// manual charge
	KEY_MANUAL_CHARGE_ACTIVE = "manual-charge-active"
	KEY_MANUAL_CHARGE_ENERGY = "manual-charge-energy"

	// day statistics
	KEY_DB_DAY_AUTARKY           = "db-day-autarky"
	KEY_DB_DAY_BATTERY_CHARGE    = "db-day-battery-charge"
	KEY_DB_DAY_BATTERY_DISCHARGE = "db-day-battery-discharge"
	KEY_DB_DAY_GRID_CONSUMPTION  = "db-day-grid-consumption"
	KEY_DB_DAY_GRID_PRODUCTION   = "db-day-grid-production"
	KEY_DB_DAY_HOUSE_CONSUMPTION = "db-day-house-consumption"
	KEY_DB_DAY_SELFCONSUMPTION   = "db-day-selfconsumption"
	KEY_DB_DAY_SOLAR_PRODUCTION  = "db-day-solar-production"
	KEY_DB_DAY_STARTTS           = "db-day-startts"

	// power mode
	KEY_POWER_MODE     = "power-mode"
	KEY_SET_POWER_MODE = "set-power-mode"
	KEY_SET_POWER_VAL  = "set-power-value"
)

// StaticKeys are seeded on connect.
var StaticKeys = []string{
	KEY_SYSTEM_DERATE_PERCENT, KEY_SYSTEM_DERATE_POWER, KEY_SYSTEM_ADDITIONAL_SOURCE,
	KEY_SYSTEM_BATTERY_INSTALLED_CAP, KEY_SYSTEM_BATTERY_INSTALLED_PEAK, KEY_SYSTEM_AC_MAXPOWER,
	KEY_SYSTEM_BATTERY_CHARGE_MAX, KEY_SYSTEM_BATTERY_DISCHARGE_MAX, KEY_SYSTEM_MAC, KEY_MODEL,
	KEY_SYSTEM_DISCHARGE_MINIMUM_DEFAULT, KEY_SYSTEM_SOFTWARE_VERSION, KEY_TIMEZONE,
}

// DynamicKeys are refreshed by the refresh cycle and exist from connect on.
var DynamicKeys = []string{
	KEY_ADDITIONAL_PRODUCTION, KEY_AUTARKY, KEY_BATTERY_CHARGE, KEY_BATTERY_DISCHARGE,
	KEY_BATTERY_NETCHANGE, KEY_GRID_CONSUMPTION, KEY_GRID_NETCHANGE, KEY_GRID_PRODUCTION,
	KEY_HOUSE_CONSUMPTION, KEY_SELFCONSUMPTION, KEY_SOC, KEY_SOLAR_PRODUCTION, KEY_WALLBOX_CONSUMPTION,
	KEY_PSET_LIMIT_CHARGE, KEY_PSET_LIMIT_DISCHARGE, KEY_PSET_LIMIT_DISCHARGE_MINIMUM,
	KEY_PSET_LIMIT_ENABLED, KEY_PSET_POWERSAVING_ENABLED, KEY_PSET_WEATHERREGULATED_ENABLED,
	KEY_MANUAL_CHARGE_ACTIVE, KEY_MANUAL_CHARGE_ENERGY,
	KEY_DB_DAY_AUTARKY, KEY_DB_DAY_BATTERY_CHARGE, KEY_DB_DAY_BATTERY_DISCHARGE,
	KEY_DB_DAY_GRID_CONSUMPTION, KEY_DB_DAY_GRID_PRODUCTION, KEY_DB_DAY_HOUSE_CONSUMPTION,
	KEY_DB_DAY_SELFCONSUMPTION, KEY_DB_DAY_SOLAR_PRODUCTION, KEY_DB_DAY_STARTTS,
	KEY_POWER_MODE, KEY_SET_POWER_MODE, KEY_SET_POWER_VAL,
}

func (s Snapshot) Copy() Snapshot {
	res := make(Snapshot, len(s))
	for k, v := range s {
		res[k] = v
	}
	return res
}

// Merge writes every entry of values into s.
func (s Snapshot) Merge(values map[string]any) {
	for k, v := range values {
		s[k] = v
	}
}

// Seed adds keys not yet present with a nil value.
func (s Snapshot) Seed(keys ...string) {
	for _, k := range keys {
		if _, ok := s[k]; !ok {
			s[k] = nil
		}
	}
}

// Diff returns the entries of s that are new or different from prev and the
// keys of prev missing in s.
func (s Snapshot) Diff(prev Snapshot) (Snapshot, []string) {
	changed := Snapshot{}
	for k, v := range s {
		old, ok := prev[k]
		if !ok || !reflect.DeepEqual(old, v) {
			changed[k] = v
		}
	}
	var removed []string
	for k := range prev {
		if _, ok := s[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Strings(removed)
	return changed, removed
}

func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Snapshot) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	default:
		return 0, false
	}
}

func (s Snapshot) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}
