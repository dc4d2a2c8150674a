package service

import (
	"errors"
	"testing"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i32(v int32) *int32 {
	return &v
}

func TestValidatePowerLimits(t *testing.T) {

	require := require.New(t)

	_, err := ValidatePowerLimits(domain.SetPowerLimits{}, 4500, 4500)
	require.True(errors.Is(err, domain.ErrInvalidArgument))

	_, err = ValidatePowerLimits(domain.SetPowerLimits{MaxCharge: i32(-1)}, 4500, 4500)
	require.True(errors.Is(err, domain.ErrInvalidArgument))

	res, err := ValidatePowerLimits(domain.SetPowerLimits{MaxCharge: i32(6000), MaxDischarge: i32(1000)}, 4500, 4500)
	require.NoError(err)
	require.Equal(int32(4500), *res.MaxCharge)
	require.Equal(int32(1000), *res.MaxDischarge)
	require.Equal([]string{"max_charge"}, res.Clamped)

	res, err = ValidatePowerLimits(domain.SetPowerLimits{MaxDischarge: i32(9000)}, 0, 0)
	require.NoError(err)
	require.Nil(res.MaxCharge)
	require.Equal(int32(9000), *res.MaxDischarge)
}

func TestValidatePowerMode(t *testing.T) {
	_, err := ValidatePowerMode(domain.SetPowerMode{Mode: e3dc.PowerModeCharge})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = ValidatePowerMode(domain.SetPowerMode{Mode: e3dc.PowerModeCharge, Value: i32(-5)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	v, err := ValidatePowerMode(domain.SetPowerMode{Mode: e3dc.PowerModeCharge, Value: i32(2000)})
	assert.NoError(t, err)
	assert.Equal(t, int32(2000), v)

	v, err = ValidatePowerMode(domain.SetPowerMode{Mode: e3dc.PowerModeIdle})
	assert.NoError(t, err)
	assert.Equal(t, int32(0), v)
}

func TestManualCharge(t *testing.T) {
	assert.ErrorIs(t, ValidateManualCharge(domain.StartManualCharge{AmountWh: -1}), domain.ErrInvalidArgument)
	assert.NoError(t, ValidateManualCharge(domain.StartManualCharge{AmountWh: 0}))
	assert.Equal(t, 36.5, ManualChargeEnergy(&e3dc.ManualChargeState{EnergyCounter: 10}))
	assert.Equal(t, 0.0, ManualChargeEnergy(nil))
}

func TestPowermeterValues(t *testing.T) {
	data := []e3dc.PowermeterData{
		{Index: 0, Type: e3dc.PowermeterTypeRoot, Power: e3dc.PhaseValues{L1: 1, L2: 1, L3: 1}},
		{Index: 1, Type: e3dc.PowermeterTypeAdditionalProduction, Power: e3dc.PhaseValues{L1: 100, L2: 200, L3: 300}, Energy: e3dc.PhaseValues{L1: 1, L2: 2, L3: 3}},
	}
	values := PowermeterValues(data, []e3dc.PowermeterConfig{{Index: 0, Key: "root"}, {Index: 1, Key: "pv-east", Negate: true}})
	assert.NotContains(t, values, "root")
	assert.Equal(t, -600.0, values["pv-east"])
	assert.Equal(t, -6.0, values["pv-east-total"])
}
