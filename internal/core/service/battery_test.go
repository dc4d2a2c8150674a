package service

import (
	"testing"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPacks() []e3dc.RawData {
	return e3dc.DefaultTestDevice().BatteryPacks
}

func TestPackValues(t *testing.T) {

	require := require.New(t)

	values := PackValues("battery-pack-0", testPacks()[0])
	require.InDelta(2.6, values["battery-pack-0-design-energy"], 1e-9)
	require.InDelta(2.34, values["battery-pack-0-full-energy"], 1e-9)
	require.InDelta(1.56, values["battery-pack-0-remaining-energy"], 1e-9)
	require.InDelta(1.508, values["battery-pack-0-usable-remaining-energy"], 1e-9)
	require.InDelta(90.0, values["battery-pack-0-state-of-health"], 1e-9)
	require.Equal(45.0, values["battery-pack-0-full-charge-capacity"])

	empty := PackValues("battery-pack-0", nil)
	require.Equal(len(values), len(empty), "missing pack keeps the same keys")
	for k, v := range empty {
		require.Nil(v, k)
	}
}

func TestModuleValues(t *testing.T) {

	require := require.New(t)

	dcb := Module(testPacks()[0], 1)
	require.NotNil(dcb)

	values := ModuleValues("battery-0-1", dcb)
	require.Equal("2023-01-15", values["battery-0-1-manufacture-date"])
	require.InDelta(90.0, values["battery-0-1-soh"], 1e-9)
	require.Nil(values["battery-0-1-soh-reported"])
	require.Equal(66.7, values["battery-0-1-soc"])

	dcb = e3dc.RawData{"remainingCapacity": 10.0, "voltage": 50.0, "soc": nil, "manufactureDate": 240145}
	values = ModuleValues("battery-0-0", dcb)
	require.InDelta(0.5, values["battery-0-0-soc"], 1e-9)
	require.Nil(values["battery-0-0-manufacture-date"])
	require.Nil(values["battery-0-0-soh"])
}

func TestIdentifyBatteries(t *testing.T) {

	require := require.New(t)

	configs := []e3dc.BatteryConfig{{Index: 0, DCBs: 2}}
	packs, modules := IdentifyBatteries(configs, testPacks())
	require.Len(packs, 1)
	require.Len(modules, 2)
	require.Equal("battery-pack-0", packs[0].Key)
	require.Equal("BAT 13.8", packs[0].Model)
	require.Equal("battery-0-1", modules[1].Key)
	require.Equal("E3/DC", modules[1].Manufacturer)
	require.Equal("P-0002", modules[1].Serial)

	keys := BatteryKeys(packs, modules)
	values := BatteryValues(configs, testPacks())
	require.Len(values, len(keys))
	for _, k := range keys {
		require.Contains(values, k)
	}
}

func TestPurgeBatteryKeys(t *testing.T) {

	s := domain.Snapshot{
		domain.KEY_BATTERY_CHARGE:        1.0,
		domain.KEY_BATTERY_DISCHARGE:     0.0,
		domain.KEY_BATTERY_NETCHANGE:     1.0,
		"battery-pack-0-state-of-health": 90.0,
		"battery-0-1-soh":                90.0,
		"battery-10-11-voltage":          nil,
		domain.KEY_SOC:                   50.0,
	}
	n := PurgeBatteryKeys(s)
	assert.Equal(t, 3, n)
	assert.Contains(t, s, domain.KEY_BATTERY_CHARGE)
	assert.Contains(t, s, domain.KEY_BATTERY_DISCHARGE)
	assert.Contains(t, s, domain.KEY_BATTERY_NETCHANGE)
	assert.Contains(t, s, domain.KEY_SOC)
}
