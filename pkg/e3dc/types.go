package e3dc

import (
	"fmt"
	"strings"
	"time"
)

// RawData is a dynamic tag container as returned by the device.
type RawData map[string]any

type SystemInfo struct {
	DeratePercent            float64 `json:"deratePercent"`
	DeratePower              float64 `json:"deratePower"`
	ExternalSourceAvailable  int     `json:"externalSourceAvailable"`
	InstalledBatteryCapacity float64 `json:"installedBatteryCapacity"`
	InstalledPeakPower       float64 `json:"installedPeakPower"`
	MaxAcPower               float64 `json:"maxAcPower"`
	MaxBatChargePower        int32   `json:"maxBatChargePower"`
	MaxBatDischargePower     int32   `json:"maxBatDischargePower"`
	StartDischargeDefault    int32   `json:"startDischargeDefault"`
	MacAddress               string  `json:"macAddress"`
	Model                    string  `json:"model"`
	Manufacturer             string  `json:"manufacturer"`
	SerialNumber             string  `json:"serialNumber"`
}

type PollData struct {
	Autarky         float64         `json:"autarky"`
	SelfConsumption float64         `json:"selfConsumption"`
	StateOfCharge   float64         `json:"stateOfCharge"`
	Consumption     PollConsumption `json:"consumption"`
	Production      PollProduction  `json:"production"`
	Time            time.Time       `json:"time"`
}

type PollConsumption struct {
	// positive while charging, negative while discharging
	Battery float64 `json:"battery"`
	House   float64 `json:"house"`
	Wallbox float64 `json:"wallbox"`
}

type PollProduction struct {
	Solar float64 `json:"solar"`
	Add   float64 `json:"add"`
	// positive while importing from the grid, negative while exporting
	Grid float64 `json:"grid"`
}

type PowerSettings struct {
	MaxChargePower                int32 `json:"maxChargePower"`
	MaxDischargePower             int32 `json:"maxDischargePower"`
	DischargeStartPower           int32 `json:"dischargeStartPower"`
	PowerLimitsUsed               bool  `json:"powerLimitsUsed"`
	PowerSaveEnabled              bool  `json:"powerSaveEnabled"`
	WeatherRegulatedChargeEnabled bool  `json:"weatherRegulatedChargeEnabled"`
}

type PowerLimitsResult int

const (
	PowerLimitsFailed     PowerLimitsResult = -1
	PowerLimitsOK         PowerLimitsResult = 0
	PowerLimitsNotOptimal PowerLimitsResult = 1
)

type ManualChargeState struct {
	Active bool `json:"active"`
	// charged energy counter as reported by the device, per cell
	EnergyCounter float64   `json:"energyCounter"`
	LastStart     time.Time `json:"lastStart"`
}

type PowerMode uint8

const (
	PowerModeNormal PowerMode = iota
	PowerModeIdle
	PowerModeDischarge
	PowerModeCharge
	PowerModeChargeGrid
)

var powerModeNames = []string{"NORMAL", "IDLE", "DISCHARGE", "CHARGE", "CHARGE_GRID"}

func (m PowerMode) String() string {
	if int(m) < len(powerModeNames) {
		return powerModeNames[m]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
}

func (m PowerMode) Valid() bool {
	return int(m) < len(powerModeNames)
}

// NeedsValue reports whether the mode requires a power value.
func (m PowerMode) NeedsValue() bool {
	return m == PowerModeDischarge || m == PowerModeCharge || m == PowerModeChargeGrid
}

func ParsePowerMode(s string) (PowerMode, error) {
	for i, name := range powerModeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return PowerMode(i), nil
		}
	}
	return PowerModeNormal, fmt.Errorf("e3dc: unknown power mode %q", s)
}

type PowerModeState struct {
	Mode  PowerMode `json:"mode"`
	Value int32     `json:"value"`
}

type DBData struct {
	Autarky            float64 `json:"autarky"`
	BatPowerIn         float64 `json:"bat_power_in"`
	BatPowerOut        float64 `json:"bat_power_out"`
	GridPowerIn        float64 `json:"grid_power_in"`
	GridPowerOut       float64 `json:"grid_power_out"`
	Consumption        float64 `json:"consumption"`
	ConsumedProduction float64 `json:"consumed_production"`
	SolarProduction    float64 `json:"solarProduction"`
	StartTimestamp     int64   `json:"startTimestamp"`
	Timespan           int64   `json:"timespanSeconds"`
}

type PowermeterType int

const (
	PowermeterTypeRoot                  PowermeterType = 1
	PowermeterTypeAdditional            PowermeterType = 2
	PowermeterTypeAdditionalProduction  PowermeterType = 3
	PowermeterTypeAdditionalConsumption PowermeterType = 4
	PowermeterTypeFarm                  PowermeterType = 5
	PowermeterTypeUnused                PowermeterType = 6
	PowermeterTypeWallbox               PowermeterType = 7
	PowermeterTypeFarmAdditional        PowermeterType = 8
)

type Powermeter struct {
	Index int            `json:"index"`
	Type  PowermeterType `json:"type"`
	Name  string         `json:"typeName"`
}

type PhaseValues struct {
	L1 float64 `json:"L1"`
	L2 float64 `json:"L2"`
	L3 float64 `json:"L3"`
}

func (p PhaseValues) Sum() float64 {
	return p.L1 + p.L2 + p.L3
}

type PowermeterData struct {
	Index  int            `json:"index"`
	Type   PowermeterType `json:"type"`
	Power  PhaseValues    `json:"power"`
	Energy PhaseValues    `json:"energy"`
}

type BatteryConfig struct {
	Index int `json:"index"`
	DCBs  int `json:"dcbs"`
}
