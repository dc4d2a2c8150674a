package entity

import (
	"testing"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentities() domain.Identities {
	return domain.Identities{
		System: domain.SystemIdentity{
			Model:           "S10 E AIO",
			Manufacturer:    "E3/DC",
			SerialNumber:    "S10-123456",
			MacAddress:      "00:11:22:33:44:55",
			SoftwareVersion: "S10_2024_02",
		},
		Wallboxes: []domain.WallboxIdentity{
			{Index: 0, Key: "wallbox-aabbccddeeff", DeviceName: "Garage", MaxPhases: 3},
		},
		BatteryPacks: []domain.BatteryPackIdentity{
			{Index: 0, Key: "battery-pack-0", Name: "Battery pack 1"},
		},
		BatteryModules: []domain.BatteryModuleIdentity{
			{PackIndex: 0, ModuleIndex: 1, Key: "battery-0-1", Name: "Battery module 1-2"},
		},
		Powermeters: []string{"pv-east"},
	}
}

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		domain.KEY_SOC:                             55.0,
		domain.KEY_PSET_POWERSAVING_ENABLED:        true,
		domain.KEY_PSET_LIMIT_ENABLED:              false,
		domain.KEY_SET_POWER_MODE:                  "CHARGE",
		domain.KEY_SET_POWER_VAL:                   int32(1200),
		domain.KEY_SYSTEM_BATTERY_CHARGE_MAX:       4500.0,
		domain.KEY_SYSTEM_BATTERY_DISCHARGE_MAX:    6000.0,
		"pv-east":                                  100.0,
		"pv-east-total":                            2000.0,
		"wallbox-aabbccddeeff-sun-mode":            true,
		"wallbox-aabbccddeeff-max-charge-current":  16,
		"wallbox-aabbccddeeff-lower-current-limit": 6,
		"wallbox-aabbccddeeff-upper-current-limit": 20,
		"wallbox-aabbccddeeff-plug":                true,
		"wallbox-aabbccddeeff-energy-all":          1520.5,
		"battery-pack-0-state-of-health":           97.5,
		"battery-0-1-soh":                          98.0,
		"battery-0-1-serial-code":                  "x",
	}
}

func TestDescribe(t *testing.T) {

	assert := assert.New(t)
	c := NewCatalog(testIdentities())

	assert.Equal(PLATFORM_SWITCH, c.Platform(domain.KEY_PSET_POWERSAVING_ENABLED))
	assert.Equal(PLATFORM_BINARY_SENSOR, c.Platform(domain.KEY_PSET_LIMIT_ENABLED))
	assert.Equal(PLATFORM_SELECT, c.Platform(domain.KEY_SET_POWER_MODE))
	assert.Equal(PLATFORM_NUMBER, c.Platform(domain.KEY_SET_POWER_VAL))
	assert.Equal(PLATFORM_SENSOR, c.Platform(domain.KEY_WALLBOX_CONSUMPTION))

	assert.Equal(PLATFORM_SWITCH, c.Platform("wallbox-aabbccddeeff-sun-mode"))
	assert.Equal(PLATFORM_NUMBER, c.Platform("wallbox-aabbccddeeff-max-charge-current"))
	assert.Equal(PLATFORM_BINARY_SENSOR, c.Platform("wallbox-aabbccddeeff-plug"))

	meter := c.Describe("pv-east")
	assert.Equal(UNIT_WATT, meter.Unit)
	total := c.Describe("pv-east-total")
	assert.Equal(UNIT_WATT_HOUR, total.Unit)
	assert.Equal(STATE_CLASS_TOTAL, total.StateClass)

	soh := c.Describe("battery-pack-0-state-of-health")
	assert.Equal(UNIT_PERCENT, soh.Unit)
	unknown := c.Describe("battery-0-1-serial-code")
	assert.Equal("Serial code", unknown.Name)
	assert.True(unknown.Disabled)

	assert.Equal("Something new", c.Describe("something-new").Name)
}

func TestBuild(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	bridge := BridgeDevice("e3dc")
	entities := Build(bridge, testIdentities(), testSnapshot())

	require.NotEmpty(entities.Sensors)
	assert.Equal(SENSOR_ID_BRIDGE_STATE, entities.Sensors[0].Id)
	assert.Equal(bridge, entities.Sensors[0].Device)

	system := SystemDevice(testIdentities().System)
	byId := map[string]domain.GenericSensor{}
	for _, s := range entities.Sensors {
		byId[s.Id] = s
	}
	assert.Equal(system.Id, byId[domain.KEY_SOC].Device.Id)
	assert.Equal(PLATFORM_BINARY_SENSOR, byId["wallbox-aabbccddeeff-plug"].SensorType)
	assert.Equal(system.Id, byId["wallbox-aabbccddeeff-plug"].Device.ViaDevice)
	assert.Equal(system.Id+"_battery-pack-0", byId["battery-pack-0-state-of-health"].Device.Id)
	assert.Equal(system.Id+"_battery-pack-0", byId["battery-0-1-soh"].Device.ViaDevice)
	require.NotNil(byId["battery-0-1-serial-code"].EnabledByDefault)
	assert.False(*byId["battery-0-1-serial-code"].EnabledByDefault)

	require.Len(entities.Switches, 2)
	require.Len(entities.Selects, 1)
	assert.Equal(PowerModeOptions(), entities.Selects[0].Options)
	require.Len(entities.Buttons, 2)
	assert.Equal("wallbox-aabbccddeeff-toggle-phases", entities.Buttons[0].Id)

	require.Len(entities.InputNumbers, 2)
	for _, n := range entities.InputNumbers {
		switch n.Id {
		case "wallbox-aabbccddeeff-max-charge-current":
			assert.Equal(6.0, n.Min)
			assert.Equal(20.0, n.Max)
			assert.Equal(16.0, n.InitialValue)
		case domain.KEY_SET_POWER_VAL:
			assert.Equal(6000.0, n.Max)
			assert.Equal(1200.0, n.InitialValue)
		default:
			t.Errorf("unexpected number %s", n.Id)
		}
	}
}

func TestSystemDeviceFallsBackToMac(t *testing.T) {

	dev := SystemDevice(domain.SystemIdentity{MacAddress: "00:11:22:33:44:55", Model: "S10"})
	assert.Equal(t, "e3dc_"+md5HashShort("00:11:22:33:44:55"), dev.Id)
	assert.Equal(t, "E3/DC S10", dev.Name)
}

func TestParseCommand(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)
	c := NewCatalog(testIdentities())
	snapshot := testSnapshot()

	cmd, err := c.ParseCommand(PLATFORM_SWITCH, domain.KEY_PSET_POWERSAVING_ENABLED, "off", snapshot)
	require.NoError(err)
	assert.Equal(domain.SetPowersave{Enabled: false}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_SWITCH, domain.KEY_PSET_WEATHERREGULATED_ENABLED, "on", snapshot)
	require.NoError(err)
	assert.Equal(domain.SetWeatherRegulatedCharge{Enabled: true}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_SWITCH, "wallbox-aabbccddeeff-schuko", "ON", snapshot)
	require.NoError(err)
	assert.Equal(domain.SetWallboxSchuko{Index: 0, Enabled: true}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_NUMBER, "wallbox-aabbccddeeff-max-charge-current", "10", snapshot)
	require.NoError(err)
	assert.Equal(domain.SetWallboxMaxChargeCurrent{Index: 0, Amps: 10}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_NUMBER, domain.KEY_SET_POWER_VAL, "2500", snapshot)
	require.NoError(err)
	value := int32(2500)
	assert.Equal(domain.SetPowerMode{Mode: e3dc.PowerModeCharge, Value: &value}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_BUTTON, "wallbox-aabbccddeeff-toggle-charging", "PRESS", snapshot)
	require.NoError(err)
	assert.Equal(domain.ToggleWallboxCharging{Index: 0}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_SELECT, domain.KEY_SET_POWER_MODE, "DISCHARGE:800", snapshot)
	require.NoError(err)
	value = 800
	assert.Equal(domain.SetPowerMode{Mode: e3dc.PowerModeDischarge, Value: &value}, cmd)

	// value falls back to the current set-power-value
	cmd, err = c.ParseCommand(PLATFORM_SELECT, domain.KEY_SET_POWER_MODE, "CHARGE_GRID", snapshot)
	require.NoError(err)
	value = 1200
	assert.Equal(domain.SetPowerMode{Mode: e3dc.PowerModeChargeGrid, Value: &value}, cmd)

	cmd, err = c.ParseCommand(PLATFORM_SELECT, domain.KEY_SET_POWER_MODE, "IDLE", snapshot)
	require.NoError(err)
	assert.Equal(domain.SetPowerMode{Mode: e3dc.PowerModeIdle}, cmd)
}

func TestParseCommandInvalid(t *testing.T) {

	assert := assert.New(t)
	c := NewCatalog(testIdentities())
	snapshot := testSnapshot()

	_, err := c.ParseCommand(PLATFORM_SWITCH, domain.KEY_PSET_POWERSAVING_ENABLED, "maybe", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = c.ParseCommand(PLATFORM_SWITCH, "unknown", "on", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = c.ParseCommand(PLATFORM_NUMBER, "wallbox-aabbccddeeff-max-charge-current", "ten", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = c.ParseCommand(PLATFORM_BUTTON, "wallbox-000000000000-toggle-phases", "PRESS", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = c.ParseCommand(PLATFORM_SELECT, domain.KEY_SET_POWER_MODE, "TURBO", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = c.ParseCommand(PLATFORM_SELECT, domain.KEY_SET_POWER_MODE, "CHARGE:lots", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = c.ParseCommand(PLATFORM_SENSOR, domain.KEY_SOC, "1", snapshot)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
}

func TestParseService(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cmd, err := ParseService(SERVICE_SET_POWER_LIMITS, []byte(`{"max_charge": 3000}`))
	require.NoError(err)
	limits := cmd.(domain.SetPowerLimits)
	require.NotNil(limits.MaxCharge)
	assert.Equal(int32(3000), *limits.MaxCharge)
	assert.Nil(limits.MaxDischarge)

	cmd, err = ParseService(SERVICE_CLEAR_POWER_LIMITS, nil)
	require.NoError(err)
	assert.Equal(domain.ClearPowerLimits{}, cmd)

	cmd, err = ParseService(SERVICE_MANUAL_CHARGE, []byte(`{"charge_amount": 5000}`))
	require.NoError(err)
	assert.Equal(domain.StartManualCharge{AmountWh: 5000}, cmd)

	cmd, err = ParseService(SERVICE_SET_WALLBOX_MAX_CHARGE_CURRENT, []byte(`{"wallbox_index": 1, "max_charge_current": 12}`))
	require.NoError(err)
	assert.Equal(domain.SetWallboxMaxChargeCurrent{Index: 1, Amps: 12}, cmd)

	cmd, err = ParseService(SERVICE_SET_POWER_MODE, []byte(`{"power_mode": "charge", "power_value": 900}`))
	require.NoError(err)
	value := int32(900)
	assert.Equal(domain.SetPowerMode{Mode: e3dc.PowerModeCharge, Value: &value}, cmd)

	cmd, err = ParseService(SERVICE_SET_BATTERY_DEVICES, []byte(`{"enabled": true}`))
	require.NoError(err)
	assert.Equal(domain.SetBatteryDevices{Enabled: true}, cmd)

	_, err = ParseService(SERVICE_MANUAL_CHARGE, []byte(`{}`))
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = ParseService(SERVICE_SET_POWER_MODE, []byte(`{"power_mode": "TURBO"}`))
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = ParseService(SERVICE_SET_POWER_LIMITS, []byte(`{"max_charge": "a lot"}`))
	assert.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = ParseService("reboot", nil)
	assert.ErrorIs(err, domain.ErrInvalidArgument)
}
