package service

import (
	"testing"
	"time"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateOfHealth(t *testing.T) {

	_, ok := StateOfHealthPct(0, 50)
	assert.False(t, ok, "zero design capacity must not divide")

	v, ok := StateOfHealthPct(100, 80)
	assert.True(t, ok)
	assert.InDelta(t, 80.0, v, 1e-9)

	_, ok = StateOfHealthPct(nil, 80)
	assert.False(t, ok)
}

func TestEnergy(t *testing.T) {

	require := require.New(t)

	v, ok := EnergyKWh(50.0, 26.0, 2)
	require.True(ok)
	require.InDelta(2.6, v, 1e-9)

	_, ok = EnergyKWh(50.0, 26.0, 0)
	require.False(ok)

	_, ok = EnergyKWh(50.0, nil, 2)
	require.False(ok)

	v, ok = RemainingEnergyKWh(30, "52")
	require.True(ok)
	require.InDelta(1.56, v, 1e-9)
}

func TestParseManufactureDate(t *testing.T) {

	d, ok := ParseManufactureDate(240115)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-15", d)

	d, ok = ParseManufactureDate(991231)
	assert.True(t, ok)
	assert.Equal(t, "1999-12-31", d)

	d, ok = ParseManufactureDate(50704)
	assert.True(t, ok)
	assert.Equal(t, "2005-07-04", d)

	for _, invalid := range []any{240145, 241315, 230231, -1, 1234567, "abc", nil, 2.5} {
		_, ok = ParseManufactureDate(invalid)
		assert.False(t, ok, "%v must not parse", invalid)
	}
}

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, "E3/DC", NormalizeString("E3/DC "))
	assert.Nil(t, NormalizeString("   "))
	assert.Nil(t, NormalizeString("n/a"))
	assert.Equal(t, 5, NormalizeString(5))
}

func TestCamelToKebab(t *testing.T) {
	assert.Equal(t, "max-charge-current", CamelToKebab("maxChargeCurrent"))
	assert.Equal(t, "current-avg30s", CamelToKebab("currentAvg30s"))
	assert.Equal(t, "soc", CamelToKebab("soc"))
	assert.Equal(t, "energy-all", CamelToKebab("energyAll"))
}

func TestModuleCount(t *testing.T) {
	n, ok := ModuleCount(e3dc.RawData{"dcbs": []any{e3dc.RawData{}, e3dc.RawData{}, e3dc.RawData{}}})
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = ModuleCount(e3dc.RawData{"dcbCount": 4})
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = ModuleCount(e3dc.RawData{})
	assert.False(t, ok)
}

func TestSplitSigned(t *testing.T) {
	in, out := SplitSigned(1200)
	assert.Equal(t, 1200.0, in)
	assert.Equal(t, 0.0, out)

	in, out = SplitSigned(-800)
	assert.Equal(t, 0.0, in)
	assert.Equal(t, 800.0, out)

	values := PollValues(&e3dc.PollData{
		Consumption: e3dc.PollConsumption{Battery: -500, House: 700},
		Production:  e3dc.PollProduction{Solar: 300, Grid: -100},
	})
	assert.Equal(t, 0.0, values[domain.KEY_BATTERY_CHARGE])
	assert.Equal(t, 500.0, values[domain.KEY_BATTERY_DISCHARGE])
	assert.Equal(t, -500.0, values[domain.KEY_BATTERY_NETCHANGE])
	assert.Equal(t, 0.0, values[domain.KEY_GRID_CONSUMPTION])
	assert.Equal(t, 100.0, values[domain.KEY_GRID_PRODUCTION])
}

func TestDBDayGridMapping(t *testing.T) {
	values := DBDayValues(&e3dc.DBData{GridPowerIn: 1.5, GridPowerOut: 7.25, StartTimestamp: 42})
	assert.Equal(t, 7.25, values[domain.KEY_DB_DAY_GRID_CONSUMPTION])
	assert.Equal(t, 1.5, values[domain.KEY_DB_DAY_GRID_PRODUCTION])
	assert.Equal(t, int64(42), values[domain.KEY_DB_DAY_STARTTS])
}

func TestUnsupportedQueriesMapToNothing(t *testing.T) {
	assert.Nil(t, PollValues(nil))
	assert.Nil(t, PowerSettingsValues(nil))
	assert.Nil(t, DBDayValues(nil))
	assert.Nil(t, SystemValues(nil))

	s := domain.Snapshot{domain.KEY_PSET_LIMIT_CHARGE: int32(3000)}
	s.Merge(PowerSettingsValues(nil))
	assert.Equal(t, int32(3000), s[domain.KEY_PSET_LIMIT_CHARGE])
}

func TestTimezone(t *testing.T) {

	require := require.New(t)

	utc := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(3600, OffsetFromClocks(utc.Add(3617*time.Second), utc))
	require.Equal(-1800, OffsetFromClocks(utc.Add(-1790*time.Second), utc))

	offset, err := ResolveOffset("UTC", utc)
	require.NoError(err)
	require.Equal(0, offset)

	_, err = ResolveOffset("", utc)
	require.Error(err)
	_, err = ResolveOffset("Not/AZone", utc)
	require.Error(err)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	require.Equal(day, DayStartTimestamp(utc, 7200))
	// 23:30 UTC is already the next day at +02:00
	late := time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	require.Equal(day+86400, DayStartTimestamp(late, 7200))
	require.Equal(day, DayStartTimestamp(late, 0))
}

func TestRedact(t *testing.T) {

	in := map[string]any{
		"system-mac": "00:11:22:33:44:55",
		"soc":        50,
		"wallboxes": []any{
			e3dc.RawData{"macAddress": "00:AA:BB", "wallboxSerial": "WB-0001", "mac": nil},
		},
		"info": &e3dc.SystemInfo{SerialNumber: "S10-123", Model: "S10"},
	}
	out := Redact(in).(map[string]any)

	assert.Equal(t, "00:<redacted>", out["system-mac"])
	assert.Equal(t, 50, out["soc"])
	wb := out["wallboxes"].([]any)[0].(map[string]any)
	assert.Equal(t, "00:<redacted>", wb["macAddress"])
	assert.Equal(t, "WB-<redacted>", wb["wallboxSerial"])
	assert.Nil(t, wb["mac"])
	info := out["info"].(map[string]any)
	assert.Equal(t, "S10<redacted>", info["serialNumber"])
	assert.Equal(t, "S10", info["model"])
	// input untouched
	assert.Equal(t, "00:11:22:33:44:55", in["system-mac"])
}
