package port

import (
	"time"

	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

// ManualCharge is the state of the one-shot forced charge.
type ManualCharge struct {
	Active bool    `json:"active"`
	Energy float64 `json:"energy"`
}

// DeviceProxy exposes one blocking call per device operation. Errors are
// classified with the domain error kinds; a feature missing on the device
// model is reported as an empty result, never as an error.
type DeviceProxy interface {
	Connect(powermeters []e3dc.PowermeterConfig) error
	Disconnect() error

	SystemInfo() (*e3dc.SystemInfo, error)
	SoftwareRelease() (string, error)
	Poll() (*e3dc.PollData, error)
	PowerSettings() (*e3dc.PowerSettings, error)
	SetPowerLimits(enable bool, maxCharge, maxDischarge, dischargeStart *int32) error
	SetPowerSave(enabled bool) error
	SetWeatherRegulatedCharge(enabled bool) error
	ManualCharge() (ManualCharge, error)
	StartManualCharge(amountWh uint32) (bool, error)
	PowerMode() (*e3dc.PowerModeState, error)
	SetPowerMode(mode e3dc.PowerMode, valueWatt int32) error
	DBData(startTimestamp int64, spanSeconds int64) (*e3dc.DBData, error)
	Powermeters() ([]e3dc.Powermeter, error)
	PowermetersData() ([]e3dc.PowermeterData, error)
	WallboxIdentification(index int) (e3dc.RawData, error)
	WallboxData(index int) (e3dc.RawData, error)
	SetWallboxSunMode(index int, enabled bool) error
	SetWallboxSchuko(index int, enabled bool) error
	ToggleWallboxCharging(index int) error
	ToggleWallboxPhases(index int) error
	SetWallboxMaxChargeCurrent(index int, amps int32) error
	Batteries() ([]e3dc.BatteryConfig, error)
	BatteryData() ([]e3dc.RawData, error)
	TimeZone() (string, error)
	Time() (time.Time, error)
	TimeUTC() (time.Time, error)
}
