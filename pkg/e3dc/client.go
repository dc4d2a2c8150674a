package e3dc

import (
	"errors"
	"time"
)

var (
	ErrNotAvailable   = errors.New("e3dc: device not available")
	ErrSend           = errors.New("e3dc: failed to send request")
	ErrAuthentication = errors.New("e3dc: authentication failed")
	ErrRSCPKey        = errors.New("e3dc: invalid rscp key")
	ErrNotSupported   = errors.New("e3dc: request not supported by device")
	ErrNotConnected   = errors.New("e3dc: not connected")
)

// Client is a blocking session to an E3DC power station.
// Implementations are not safe for concurrent use.
type Client interface {
	Connect(cfg ConnectConfig) error
	Disconnect() error
	IsConnected() bool

	SystemInfo() (*SystemInfo, error)
	Poll() (*PollData, error)
	PowerSettings() (*PowerSettings, error)
	SetPowerLimits(enable bool, maxCharge, maxDischarge, dischargeStart *int32) (PowerLimitsResult, error)
	SetPowerSave(enabled bool) error
	SetWeatherRegulatedCharge(enabled bool) error
	ManualCharge() (*ManualChargeState, error)
	StartManualCharge(amountWh uint32) (bool, error)
	PowerMode() (*PowerModeState, error)
	SetPowerMode(mode PowerMode, valueWatt int32) error
	DBData(startTimestamp int64, spanSeconds int64) (*DBData, error)
	Powermeters() ([]Powermeter, error)
	PowermetersData() ([]PowermeterData, error)
	WallboxIdentification(index int) (RawData, error)
	WallboxData(index int) (RawData, error)
	SetWallboxSunMode(index int, enabled bool) (bool, error)
	SetWallboxSchuko(index int, enabled bool) (bool, error)
	ToggleWallboxCharging(index int) (bool, error)
	ToggleWallboxPhases(index int) (bool, error)
	SetWallboxMaxChargeCurrent(index int, amps int32) (bool, error)
	Batteries() ([]BatteryConfig, error)
	BatteryData() ([]RawData, error)
	TimeZone() (string, error)
	Time() (time.Time, error)
	TimeUTC() (time.Time, error)
	SoftwareRelease() (string, error)
}

type ConnectConfig struct {
	Host        string
	Port        uint
	Username    string
	Password    string
	Key         string
	Powermeters []PowermeterConfig
}

type PowermeterConfig struct {
	Index  int    `json:"index" yaml:"index" mapstructure:"index"`
	Key    string `json:"key" yaml:"key" mapstructure:"key"`
	Negate bool   `json:"negate_measure" yaml:"negate_measure" mapstructure:"negate_measure"`
}
