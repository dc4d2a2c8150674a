package service

import (
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

// PowerLimits is a validated power limits request.
type PowerLimits struct {
	MaxCharge    *int32
	MaxDischarge *int32
	// Clamped lists the bounds reduced to the system maxima.
	Clamped []string
}

// ValidatePowerLimits checks a set_power_limits request against the system
// maxima. A max of 0 means unknown and is not enforced.
func ValidatePowerLimits(cmd domain.SetPowerLimits, maxCharge, maxDischarge int32) (PowerLimits, error) {
	if cmd.MaxCharge == nil && cmd.MaxDischarge == nil {
		return PowerLimits{}, domain.InvalidArgument("one of max_charge or max_discharge is required")
	}
	res := PowerLimits{}
	clamp := func(name string, v *int32, max int32) (*int32, error) {
		if v == nil {
			return nil, nil
		}
		if *v < 0 {
			return nil, domain.InvalidArgument("%s must be >= 0, got %d", name, *v)
		}
		val := *v
		if max > 0 && val > max {
			val = max
			res.Clamped = append(res.Clamped, name)
		}
		return &val, nil
	}
	var err error
	if res.MaxCharge, err = clamp("max_charge", cmd.MaxCharge, maxCharge); err != nil {
		return PowerLimits{}, err
	}
	if res.MaxDischarge, err = clamp("max_discharge", cmd.MaxDischarge, maxDischarge); err != nil {
		return PowerLimits{}, err
	}
	return res, nil
}

func ValidateManualCharge(cmd domain.StartManualCharge) error {
	if cmd.AmountWh < 0 {
		return domain.InvalidArgument("manual charge amount must be >= 0, got %d", cmd.AmountWh)
	}
	if cmd.AmountWh > int64(^uint32(0)) {
		return domain.InvalidArgument("manual charge amount too large: %d", cmd.AmountWh)
	}
	return nil
}

// ValidatePowerMode checks the mode and returns the value to send.
func ValidatePowerMode(cmd domain.SetPowerMode) (int32, error) {
	if !cmd.Mode.Valid() {
		return 0, domain.InvalidArgument("unknown power mode %d", cmd.Mode)
	}
	if cmd.Value != nil && *cmd.Value < 0 {
		return 0, domain.InvalidArgument("power value must be >= 0, got %d", *cmd.Value)
	}
	if cmd.Mode.NeedsValue() {
		if cmd.Value == nil {
			return 0, domain.InvalidArgument("power mode %s requires a value", cmd.Mode)
		}
		return *cmd.Value, nil
	}
	return 0, nil
}

// ManualChargeEnergy converts the device charge counter to Wh.
func ManualChargeEnergy(state *e3dc.ManualChargeState) float64 {
	if state == nil {
		return 0
	}
	return Round(state.EnergyCounter*3.65, 3)
}
