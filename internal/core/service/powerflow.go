package service

import (
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

// SplitSigned splits a signed net value into its positive and negative parts,
// both reported as non negative numbers.
func SplitSigned(v float64) (float64, float64) {
	if v > 0 {
		return v, 0
	}
	return 0, -v
}

// PollValues maps the instantaneous poll. Like the other mappers in this file
// it returns nil for a query the device does not support.
func PollValues(p *e3dc.PollData) map[string]any {
	if p == nil {
		return nil
	}
	charge, discharge := SplitSigned(p.Consumption.Battery)
	gridIn, gridOut := SplitSigned(p.Production.Grid)
	return map[string]any{
		domain.KEY_ADDITIONAL_PRODUCTION: p.Production.Add,
		domain.KEY_AUTARKY:               p.Autarky,
		domain.KEY_BATTERY_CHARGE:        charge,
		domain.KEY_BATTERY_DISCHARGE:     discharge,
		domain.KEY_BATTERY_NETCHANGE:     p.Consumption.Battery,
		domain.KEY_GRID_CONSUMPTION:      gridIn,
		domain.KEY_GRID_NETCHANGE:        p.Production.Grid,
		domain.KEY_GRID_PRODUCTION:       gridOut,
		domain.KEY_HOUSE_CONSUMPTION:     p.Consumption.House,
		domain.KEY_SELFCONSUMPTION:       p.SelfConsumption,
		domain.KEY_SOC:                   p.StateOfCharge,
		domain.KEY_SOLAR_PRODUCTION:      p.Production.Solar,
		domain.KEY_WALLBOX_CONSUMPTION:   p.Consumption.Wallbox,
	}
}

func PowerSettingsValues(s *e3dc.PowerSettings) map[string]any {
	if s == nil {
		return nil
	}
	return map[string]any{
		domain.KEY_PSET_LIMIT_CHARGE:             s.MaxChargePower,
		domain.KEY_PSET_LIMIT_DISCHARGE:          s.MaxDischargePower,
		domain.KEY_PSET_LIMIT_DISCHARGE_MINIMUM:  s.DischargeStartPower,
		domain.KEY_PSET_LIMIT_ENABLED:            s.PowerLimitsUsed,
		domain.KEY_PSET_POWERSAVING_ENABLED:      s.PowerSaveEnabled,
		domain.KEY_PSET_WEATHERREGULATED_ENABLED: s.WeatherRegulatedChargeEnabled,
	}
}

func ManualChargeValues(m port.ManualCharge) map[string]any {
	return map[string]any{
		domain.KEY_MANUAL_CHARGE_ACTIVE: m.Active,
		domain.KEY_MANUAL_CHARGE_ENERGY: m.Energy,
	}
}

// DBDayValues maps the day statistics. The device names grid flows from its
// own point of view, so grid_power_out is what the house consumed.
func DBDayValues(db *e3dc.DBData) map[string]any {
	if db == nil {
		return nil
	}
	return map[string]any{
		domain.KEY_DB_DAY_AUTARKY:           db.Autarky,
		domain.KEY_DB_DAY_BATTERY_CHARGE:    db.BatPowerIn,
		domain.KEY_DB_DAY_BATTERY_DISCHARGE: db.BatPowerOut,
		domain.KEY_DB_DAY_GRID_CONSUMPTION:  db.GridPowerOut,
		domain.KEY_DB_DAY_GRID_PRODUCTION:   db.GridPowerIn,
		domain.KEY_DB_DAY_HOUSE_CONSUMPTION: db.Consumption,
		domain.KEY_DB_DAY_SELFCONSUMPTION:   db.ConsumedProduction,
		domain.KEY_DB_DAY_SOLAR_PRODUCTION:  db.SolarProduction,
		domain.KEY_DB_DAY_STARTTS:           db.StartTimestamp,
	}
}

func SystemValues(info *e3dc.SystemInfo) map[string]any {
	if info == nil {
		return nil
	}
	return map[string]any{
		domain.KEY_SYSTEM_DERATE_PERCENT:            info.DeratePercent,
		domain.KEY_SYSTEM_DERATE_POWER:              info.DeratePower,
		domain.KEY_SYSTEM_ADDITIONAL_SOURCE:         info.ExternalSourceAvailable != 0,
		domain.KEY_SYSTEM_BATTERY_INSTALLED_CAP:     info.InstalledBatteryCapacity,
		domain.KEY_SYSTEM_BATTERY_INSTALLED_PEAK:    info.InstalledPeakPower,
		domain.KEY_SYSTEM_AC_MAXPOWER:               info.MaxAcPower,
		domain.KEY_SYSTEM_BATTERY_CHARGE_MAX:        info.MaxBatChargePower,
		domain.KEY_SYSTEM_BATTERY_DISCHARGE_MAX:     info.MaxBatDischargePower,
		domain.KEY_SYSTEM_MAC:                       info.MacAddress,
		domain.KEY_MODEL:                            info.Model,
		domain.KEY_SYSTEM_DISCHARGE_MINIMUM_DEFAULT: info.StartDischargeDefault,
	}
}

// PowerModeValues reports an override request. A nil value or NORMAL mode is
// the inert default.
func PowerModeValues(mode e3dc.PowerMode, value *int32) map[string]any {
	res := map[string]any{
		domain.KEY_SET_POWER_MODE: mode.String(),
		domain.KEY_SET_POWER_VAL:  nil,
	}
	if value != nil && mode != e3dc.PowerModeNormal {
		res[domain.KEY_SET_POWER_VAL] = *value
	}
	return res
}
