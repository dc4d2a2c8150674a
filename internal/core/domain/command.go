package domain

import "github.com/berfenger/e3dc2mqtt/pkg/e3dc"

// Command is a user initiated change, dispatched by the coordinator.
type Command interface {
	CommandKind() string
}

type SetPowerLimits struct {
	MaxCharge    *int32
	MaxDischarge *int32
}

type ClearPowerLimits struct{}

type StartManualCharge struct {
	AmountWh int64
}

type SetPowersave struct {
	Enabled bool
}

type SetWeatherRegulatedCharge struct {
	Enabled bool
}

type SetWallboxSunMode struct {
	Index   int
	Enabled bool
}

type SetWallboxSchuko struct {
	Index   int
	Enabled bool
}

type ToggleWallboxCharging struct {
	Index int
}

type ToggleWallboxPhases struct {
	Index int
}

type SetWallboxMaxChargeCurrent struct {
	Index int
	Amps  int32
}

type SetPowerMode struct {
	Mode  e3dc.PowerMode
	Value *int32
}

// SetBatteryDevices toggles the battery devices option at runtime.
type SetBatteryDevices struct {
	Enabled bool
}

func (SetPowerLimits) CommandKind() string             { return "set_power_limits" }
func (ClearPowerLimits) CommandKind() string           { return "clear_power_limits" }
func (StartManualCharge) CommandKind() string          { return "manual_charge" }
func (SetPowersave) CommandKind() string               { return "set_powersave" }
func (SetWeatherRegulatedCharge) CommandKind() string  { return "set_weather_regulated_charge" }
func (SetWallboxSunMode) CommandKind() string          { return "set_wallbox_sun_mode" }
func (SetWallboxSchuko) CommandKind() string           { return "set_wallbox_schuko" }
func (ToggleWallboxCharging) CommandKind() string      { return "toggle_wallbox_charging" }
func (ToggleWallboxPhases) CommandKind() string        { return "toggle_wallbox_phases" }
func (SetWallboxMaxChargeCurrent) CommandKind() string { return "set_wallbox_max_charge_current" }
func (SetPowerMode) CommandKind() string               { return "set_power_mode" }
func (SetBatteryDevices) CommandKind() string          { return "set_battery_devices" }

// ensure interface compliance
var _ Command = (*SetPowerLimits)(nil)
var _ Command = (*SetPowerMode)(nil)
