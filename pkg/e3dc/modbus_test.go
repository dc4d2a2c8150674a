package e3dc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt32FromWords(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(int32(1500), int32FromWords(1500, 0))
	assert.Equal(int32(-1500), int32FromWords(0xFA24, 0xFFFF))
	assert.Equal(int32(70000), int32FromWords(0x1170, 0x0001))
}

func TestDecodePowerBlock(t *testing.T) {

	assert := assert.New(t)

	regs := make([]uint16, powerBlockSize)
	// pv 3200 W
	regs[0] = 3200
	// battery -800 W (discharging)
	regs[2], regs[3] = 0xFCE0, 0xFFFF
	// house 1100 W
	regs[4] = 1100
	// grid -1300 W (export)
	regs[6], regs[7] = 0xFAEC, 0xFFFF
	// wallbox 2300 W
	regs[10] = 2300
	// autarky 93 %, self consumption 41 %
	regs[14] = 93<<8 | 41
	regs[15] = 72

	now := time.Now()
	p := decodePowerBlock(regs, now)

	assert.Equal(3200.0, p.Production.Solar)
	assert.Equal(-800.0, p.Consumption.Battery)
	assert.Equal(1100.0, p.Consumption.House)
	assert.Equal(-1300.0, p.Production.Grid)
	assert.Equal(2300.0, p.Consumption.Wallbox)
	assert.Equal(93.0, p.Autarky)
	assert.Equal(41.0, p.SelfConsumption)
	assert.Equal(72.0, p.StateOfCharge)
	assert.Equal(now, p.Time)
}

func TestDecodePowermeters(t *testing.T) {

	assert := assert.New(t)

	regs := make([]uint16, powermeterRegs*maxModbusMeters)
	regs[0] = uint16(PowermeterTypeRoot)
	regs[4] = uint16(PowermeterTypeAdditionalProduction)
	regs[5] = 0xFF9C // -100
	regs[6] = 200
	regs[7] = 300

	data := decodePowermeters(regs)

	assert.Len(data, 2)
	assert.Equal(PowermeterTypeRoot, data[0].Type)
	assert.Equal(1, data[1].Index)
	assert.Equal(-100.0, data[1].Power.L1)
	assert.Equal(400.0, data[1].Power.Sum())
}

func TestDecodeWallboxControl(t *testing.T) {

	assert := assert.New(t)

	reg := uint16(wbAvailable | wbSunMode | wbType2Plugged | wbType2Locked | wbOnePhase)
	data := decodeWallboxControl(2, reg)

	assert.Equal(2, data["index"])
	assert.Equal(true, data["sunModeOn"])
	assert.Equal(true, data["plugged"])
	assert.Equal(true, data["locked"])
	assert.Equal(false, data["chargingActive"])
	assert.Equal(1, data["phases"])
}

func TestSetBit(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(uint16(wbAvailable|wbSunMode), setBit(wbAvailable, wbSunMode, true))
	assert.Equal(uint16(wbAvailable), setBit(wbAvailable|wbSunMode, wbSunMode, false))
}

func TestModbusClientNotConnected(t *testing.T) {

	c := NewModbusClient(time.Second, 1, nil, nil)

	_, err := c.Poll()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.PowerSettings()
	assert.ErrorIs(t, err, ErrNotSupported)

	assert.NoError(t, c.Disconnect())
}

func TestTestClientSetters(t *testing.T) {

	require := require.New(t)

	c := NewTestClient()
	require.NoError(c.Connect(ConnectConfig{Host: "localhost"}))
	require.True(c.IsConnected())

	charge := int32(2000)
	res, err := c.SetPowerLimits(true, &charge, nil, nil)
	require.NoError(err)
	require.Equal(PowerLimitsOK, res)

	s, err := c.PowerSettings()
	require.NoError(err)
	require.True(s.PowerLimitsUsed)
	require.Equal(int32(2000), s.MaxChargePower)

	ok, err := c.SetWallboxSunMode(0, false)
	require.NoError(err)
	require.True(ok)

	wb, err := c.WallboxData(0)
	require.NoError(err)
	require.Equal(false, wb["sunModeOn"])

	ok, err = c.SetWallboxSunMode(5, false)
	require.NoError(err)
	require.False(ok)

	require.Len(c.Calls("SetWallboxSunMode"), 2)
}

func TestTestClientFailures(t *testing.T) {

	c := NewTestClient()
	boom := errors.New("boom")
	c.FailWith("Poll", boom)

	_, err := c.Poll()
	assert.ErrorIs(t, err, boom)

	c.FailWith("Poll", nil)
	_, err = c.Poll()
	assert.NoError(t, err)
}
