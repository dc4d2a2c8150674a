package e3dc

import (
	"sync"
	"time"
)

// TestDevice holds the state served by a TestClient.
type TestDevice struct {
	Info             SystemInfo
	Release          string
	Poll             PollData
	Settings         PowerSettings
	Manual           ManualChargeState
	ManualActivates  bool
	Mode             PowerModeState
	DB               DBData
	Meters           []Powermeter
	MetersData       []PowermeterData
	WallboxIds       []RawData
	WallboxTelemetry []RawData
	BatteryConfigs   []BatteryConfig
	BatteryPacks     []RawData
	Zone             string
	LocalTime        time.Time
	UTCTime          time.Time
	LimitsResult     PowerLimitsResult
	WallboxRefuses   bool
}

type TestCall struct {
	Op   string
	Args []any
}

// TestClient is an in-memory E3DC device. Setters mutate the device state,
// every call is recorded and any operation can be made to fail or to block.
type TestClient struct {
	mu        sync.Mutex
	dev       TestDevice
	connected bool
	failures  map[string]error
	delays    map[string]time.Duration
	calls     []TestCall
}

func NewTestClient() *TestClient {
	return &TestClient{
		dev:      DefaultTestDevice(),
		failures: map[string]error{},
		delays:   map[string]time.Duration{},
	}
}

func DefaultTestDevice() TestDevice {
	return TestDevice{
		Info: SystemInfo{
			DeratePercent:            70,
			DeratePower:              7000,
			ExternalSourceAvailable:  1,
			InstalledBatteryCapacity: 13800,
			InstalledPeakPower:       10000,
			MaxAcPower:               12000,
			MaxBatChargePower:        4500,
			MaxBatDischargePower:     4500,
			StartDischargeDefault:    65,
			MacAddress:               "00:11:22:33:44:55",
			Model:                    "S10 E AIO",
			Manufacturer:             "E3/DC",
			SerialNumber:             "S10-123456789012",
		},
		Release: "S10_2024_04",
		Poll: PollData{
			Autarky:         87.5,
			SelfConsumption: 64.2,
			StateOfCharge:   55,
			Consumption: PollConsumption{
				Battery: 1200,
				House:   850,
				Wallbox: 0,
			},
			Production: PollProduction{
				Solar: 3000,
				Add:   0,
				Grid:  -950,
			},
		},
		Settings: PowerSettings{
			MaxChargePower:                4500,
			MaxDischargePower:             4500,
			DischargeStartPower:           65,
			PowerLimitsUsed:               false,
			PowerSaveEnabled:              false,
			WeatherRegulatedChargeEnabled: true,
		},
		Manual: ManualChargeState{
			Active:        false,
			EnergyCounter: 1.5,
		},
		ManualActivates: true,
		Mode:            PowerModeState{Mode: PowerModeNormal},
		DB: DBData{
			Autarky:            80,
			BatPowerIn:         4200,
			BatPowerOut:        2100,
			GridPowerIn:        6100,
			GridPowerOut:       900,
			Consumption:        7300,
			ConsumedProduction: 45,
			SolarProduction:    15800,
		},
		Meters: []Powermeter{
			{Index: 0, Type: PowermeterTypeRoot},
			{Index: 1, Type: PowermeterTypeAdditionalProduction},
		},
		MetersData: []PowermeterData{
			{Index: 0, Type: PowermeterTypeRoot, Power: PhaseValues{L1: 100, L2: 100, L3: 100}},
			{
				Index:  1,
				Type:   PowermeterTypeAdditionalProduction,
				Power:  PhaseValues{L1: -100, L2: -200, L3: -300},
				Energy: PhaseValues{L1: -1000, L2: -2000, L3: -3000},
			},
		},
		WallboxIds: []RawData{
			{
				"index":           0,
				"macAddress":      "00:AA:BB:CC:DD:EE",
				"deviceName":      "Wallbox easy connect",
				"firmwareVersion": "1.2.3",
				"wallboxSerial":   "WB-0001",
				"maxPhases":       3,
			},
		},
		WallboxTelemetry: []RawData{
			{
				"index":             0,
				"appSoftware":       1,
				"chargingActive":    false,
				"chargingCanceled":  false,
				"consumptionNet":    0,
				"consumptionSun":    0,
				"energyAll":         1520.5,
				"energyNet":         800.25,
				"energySun":         720.25,
				"keyState":          0,
				"maxChargeCurrent":  16,
				"lowerCurrentLimit": 6,
				"upperCurrentLimit": 32,
				"phases":            3,
				"plugLocked":        false,
				"plugged":           true,
				"locked":            false,
				"schukoOn":          false,
				"soc":               0,
				"sunModeOn":         true,
			},
		},
		BatteryConfigs: []BatteryConfig{
			{Index: 0, DCBs: 2},
		},
		BatteryPacks: []RawData{
			{
				"index":                    0,
				"asoc":                     97.5,
				"chargeCycles":             412,
				"current":                  -3.2,
				"designCapacity":           50.0,
				"deviceName":               "BAT 13.8",
				"manufactureName":          "E3/DC",
				"eodVoltage":               45.0,
				"errorCode":                0,
				"fcc":                      45.0,
				"maxBatVoltage":            58.0,
				"maxChargeCurrent":         90.0,
				"maxDischargeCurrent":      90.0,
				"moduleVoltage":            52.0,
				"rc":                       30.0,
				"rsoc":                     66.7,
				"rsocReal":                 66.7,
				"status":                   0,
				"terminalVoltage":          52.1,
				"totalUseTime":             1234567,
				"totalDischargeTime":       654321,
				"usuableCapacity":          44.0,
				"usuableRemainingCapacity": 29.0,
				"dcbCount":                 2,
				"dcbs": map[int]RawData{
					0: testDCB("P-0001", 26.0),
					1: testDCB("P-0002", 26.0),
				},
			},
		},
		Zone:         "Europe/Berlin",
		LimitsResult: PowerLimitsOK,
	}
}

func testDCB(serial string, voltage float64) RawData {
	return RawData{
		"current":             -1.6,
		"currentAvg30s":       -1.5,
		"cycleCount":          412,
		"designCapacity":      50.0,
		"designVoltage":       voltage,
		"deviceName":          "DCB 6.9",
		"endOfDischarge":      22.5,
		"fullChargeCapacity":  45.0,
		"fwVersion":           "4.0.1",
		"manufactureDate":     230115,
		"manufactureName":     "E3/DC ",
		"maxChargeCurrent":    45.0,
		"maxChargeVoltage":    29.0,
		"maxDischargeCurrent": 45.0,
		"pcbVersion":          "2",
		"remainingCapacity":   15.0,
		"serialNo":            serial,
		"soc":                 66.7,
		"soh":                 nil,
		"status":              0,
		"voltage":             26.05,
		"voltageAvg30s":       26.04,
		"warning":             0,
	}
}

// Update mutates the device state under the client lock.
func (c *TestClient) Update(fn func(d *TestDevice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.dev)
}

// Device returns a copy of the current device state.
func (c *TestClient) Device() TestDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev
}

// FailWith makes op fail with err until cleared with a nil error.
func (c *TestClient) FailWith(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// DelayOp makes op block for d before answering.
func (c *TestClient) DelayOp(op string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays[op] = d
}

// Calls returns the recorded calls of op, or all calls when op is empty.
func (c *TestClient) Calls(op string) []TestCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []TestCall
	for _, call := range c.calls {
		if op == "" || call.Op == op {
			res = append(res, call)
		}
	}
	return res
}

func (c *TestClient) record(op string, args ...any) error {
	c.mu.Lock()
	c.calls = append(c.calls, TestCall{Op: op, Args: args})
	delay := c.delays[op]
	err := c.failures[op]
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (c *TestClient) Connect(cfg ConnectConfig) error {
	if err := c.record("Connect", cfg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *TestClient) Disconnect() error {
	err := c.record("Disconnect")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return err
}

func (c *TestClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *TestClient) SystemInfo() (*SystemInfo, error) {
	if err := c.record("SystemInfo"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.dev.Info
	return &info, nil
}

func (c *TestClient) Poll() (*PollData, error) {
	if err := c.record("Poll"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.dev.Poll
	p.Time = time.Now()
	return &p, nil
}

func (c *TestClient) PowerSettings() (*PowerSettings, error) {
	if err := c.record("PowerSettings"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.dev.Settings
	return &s, nil
}

func (c *TestClient) SetPowerLimits(enable bool, maxCharge, maxDischarge, dischargeStart *int32) (PowerLimitsResult, error) {
	if err := c.record("SetPowerLimits", enable, maxCharge, maxDischarge, dischargeStart); err != nil {
		return PowerLimitsFailed, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev.LimitsResult == PowerLimitsFailed {
		return PowerLimitsFailed, nil
	}
	c.dev.Settings.PowerLimitsUsed = enable
	if enable {
		if maxCharge != nil {
			c.dev.Settings.MaxChargePower = *maxCharge
		}
		if maxDischarge != nil {
			c.dev.Settings.MaxDischargePower = *maxDischarge
		}
		if dischargeStart != nil {
			c.dev.Settings.DischargeStartPower = *dischargeStart
		}
	} else {
		c.dev.Settings.MaxChargePower = c.dev.Info.MaxBatChargePower
		c.dev.Settings.MaxDischargePower = c.dev.Info.MaxBatDischargePower
		c.dev.Settings.DischargeStartPower = c.dev.Info.StartDischargeDefault
	}
	return c.dev.LimitsResult, nil
}

func (c *TestClient) SetPowerSave(enabled bool) error {
	if err := c.record("SetPowerSave", enabled); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dev.Settings.PowerSaveEnabled = enabled
	return nil
}

func (c *TestClient) SetWeatherRegulatedCharge(enabled bool) error {
	if err := c.record("SetWeatherRegulatedCharge", enabled); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dev.Settings.WeatherRegulatedChargeEnabled = enabled
	return nil
}

func (c *TestClient) ManualCharge() (*ManualChargeState, error) {
	if err := c.record("ManualCharge"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.dev.Manual
	return &m, nil
}

func (c *TestClient) StartManualCharge(amountWh uint32) (bool, error) {
	if err := c.record("StartManualCharge", amountWh); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dev.ManualActivates {
		return false, nil
	}
	c.dev.Manual.Active = amountWh > 0
	c.dev.Manual.LastStart = time.Now()
	return true, nil
}

func (c *TestClient) PowerMode() (*PowerModeState, error) {
	if err := c.record("PowerMode"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.dev.Mode
	return &m, nil
}

func (c *TestClient) SetPowerMode(mode PowerMode, valueWatt int32) error {
	if err := c.record("SetPowerMode", mode, valueWatt); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dev.Mode = PowerModeState{Mode: mode, Value: valueWatt}
	return nil
}

func (c *TestClient) DBData(startTimestamp int64, spanSeconds int64) (*DBData, error) {
	if err := c.record("DBData", startTimestamp, spanSeconds); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	db := c.dev.DB
	db.StartTimestamp = startTimestamp
	db.Timespan = spanSeconds
	return &db, nil
}

func (c *TestClient) Powermeters() ([]Powermeter, error) {
	if err := c.record("Powermeters"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Powermeter(nil), c.dev.Meters...), nil
}

func (c *TestClient) PowermetersData() ([]PowermeterData, error) {
	if err := c.record("PowermetersData"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PowermeterData(nil), c.dev.MetersData...), nil
}

func (c *TestClient) WallboxIdentification(index int) (RawData, error) {
	if err := c.record("WallboxIdentification", index); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRaw(findIndexed(c.dev.WallboxIds, index)), nil
}

func (c *TestClient) WallboxData(index int) (RawData, error) {
	if err := c.record("WallboxData", index); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRaw(findIndexed(c.dev.WallboxTelemetry, index)), nil
}

func (c *TestClient) updateWallbox(op string, index int, key string, fn func(any) any, args ...any) (bool, error) {
	if err := c.record(op, append([]any{index}, args...)...); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wb := findIndexed(c.dev.WallboxTelemetry, index)
	if wb == nil || c.dev.WallboxRefuses {
		return false, nil
	}
	wb[key] = fn(wb[key])
	return true, nil
}

func (c *TestClient) SetWallboxSunMode(index int, enabled bool) (bool, error) {
	return c.updateWallbox("SetWallboxSunMode", index, "sunModeOn", func(any) any { return enabled }, enabled)
}

func (c *TestClient) SetWallboxSchuko(index int, enabled bool) (bool, error) {
	return c.updateWallbox("SetWallboxSchuko", index, "schukoOn", func(any) any { return enabled }, enabled)
}

func (c *TestClient) ToggleWallboxCharging(index int) (bool, error) {
	return c.updateWallbox("ToggleWallboxCharging", index, "chargingCanceled", func(v any) any {
		b, _ := v.(bool)
		return !b
	})
}

func (c *TestClient) ToggleWallboxPhases(index int) (bool, error) {
	return c.updateWallbox("ToggleWallboxPhases", index, "phases", func(v any) any {
		if p, ok := v.(int); ok && p == 1 {
			return 3
		}
		return 1
	})
}

func (c *TestClient) SetWallboxMaxChargeCurrent(index int, amps int32) (bool, error) {
	return c.updateWallbox("SetWallboxMaxChargeCurrent", index, "maxChargeCurrent", func(any) any { return int(amps) }, amps)
}

func (c *TestClient) Batteries() ([]BatteryConfig, error) {
	if err := c.record("Batteries"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BatteryConfig(nil), c.dev.BatteryConfigs...), nil
}

func (c *TestClient) BatteryData() ([]RawData, error) {
	if err := c.record("BatteryData"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RawData(nil), c.dev.BatteryPacks...), nil
}

func (c *TestClient) TimeZone() (string, error) {
	if err := c.record("TimeZone"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.Zone, nil
}

func (c *TestClient) Time() (time.Time, error) {
	if err := c.record("Time"); err != nil {
		return time.Time{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.LocalTime, nil
}

func (c *TestClient) TimeUTC() (time.Time, error) {
	if err := c.record("TimeUTC"); err != nil {
		return time.Time{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.UTCTime, nil
}

func (c *TestClient) SoftwareRelease() (string, error) {
	if err := c.record("SoftwareRelease"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev.Release, nil
}

func findIndexed(items []RawData, index int) RawData {
	for _, item := range items {
		if i, ok := item["index"].(int); ok && i == index {
			return item
		}
	}
	return nil
}

func copyRaw(r RawData) RawData {
	if r == nil {
		return nil
	}
	res := make(RawData, len(r))
	for k, v := range r {
		res[k] = v
	}
	return res
}

// ensure interface compliance
var _ Client = (*TestClient)(nil)
