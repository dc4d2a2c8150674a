package actor

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	. "github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"go.uber.org/zap"
)

func (state *CoordinatorActor) respondCommand(ctx actor.Context, req domain.CommandRequest, err error) {
	kind := ""
	if req.Command != nil {
		kind = req.Command.CommandKind()
	}
	ForRequest(req).Respond(ctx, domain.CommandResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Kind: kind,
	})
}

// dispatch validates and runs one command. The reply is sent once the device
// answered, to the sender of the request.
func (state *CoordinatorActor) dispatch(ctx actor.Context, req domain.CommandRequest) {
	replyTo := ForRequest(req).ReplyTo(ctx)
	reply := func(err error) {
		if err != nil {
			state.logger.Warn("coordinator: command failed", zap.String("command", fmt.Sprintf("%T", req.Command)), zap.Error(err))
		}
		if replyTo == nil {
			return
		}
		kind := ""
		if req.Command != nil {
			kind = req.Command.CommandKind()
		}
		ctx.Send(replyTo, domain.CommandResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Kind: kind,
		})
	}
	state.logger.Debug("coordinator: command", zap.String("type", fmt.Sprintf("%T", req.Command)))

	switch cmd := req.Command.(type) {
	case domain.SetPowerLimits:
		state.setPowerLimits(ctx, cmd, reply)
	case domain.ClearPowerLimits:
		state.clearPowerLimits(ctx, reply)
	case domain.StartManualCharge:
		state.startManualCharge(ctx, cmd, reply)
	case domain.SetPowersave:
		state.writePowerSettings(ctx, "set_powersave", func(p port.DeviceProxy) error {
			return p.SetPowerSave(cmd.Enabled)
		}, map[string]any{domain.KEY_PSET_POWERSAVING_ENABLED: cmd.Enabled}, reply)
	case domain.SetWeatherRegulatedCharge:
		state.writePowerSettings(ctx, "set_weather_regulated_charge", func(p port.DeviceProxy) error {
			return p.SetWeatherRegulatedCharge(cmd.Enabled)
		}, map[string]any{domain.KEY_PSET_WEATHERREGULATED_ENABLED: cmd.Enabled}, reply)
	case domain.SetWallboxSunMode:
		state.writeWallbox(ctx, cmd.Index, "set_wallbox_sun_mode", func(p port.DeviceProxy) error {
			return p.SetWallboxSunMode(cmd.Index, cmd.Enabled)
		}, func(key string) map[string]any {
			return map[string]any{key + "-sun-mode": cmd.Enabled}
		}, reply)
	case domain.SetWallboxSchuko:
		state.writeWallbox(ctx, cmd.Index, "set_wallbox_schuko", func(p port.DeviceProxy) error {
			return p.SetWallboxSchuko(cmd.Index, cmd.Enabled)
		}, func(key string) map[string]any {
			return map[string]any{key + "-schuko": cmd.Enabled}
		}, reply)
	case domain.ToggleWallboxCharging:
		state.writeWallbox(ctx, cmd.Index, "toggle_wallbox_charging", func(p port.DeviceProxy) error {
			return p.ToggleWallboxCharging(cmd.Index)
		}, nil, reply)
	case domain.ToggleWallboxPhases:
		state.writeWallbox(ctx, cmd.Index, "toggle_wallbox_phases", func(p port.DeviceProxy) error {
			return p.ToggleWallboxPhases(cmd.Index)
		}, nil, reply)
	case domain.SetWallboxMaxChargeCurrent:
		state.setWallboxMaxChargeCurrent(ctx, cmd, reply)
	case domain.SetPowerMode:
		state.setPowerMode(ctx, cmd, reply)
	case domain.SetBatteryDevices:
		state.setBatteryDevices(ctx, cmd, reply)
	default:
		reply(domain.InvalidArgument("unknown command %T", req.Command))
	}
}

// setterFailed ends the session when the failure requires it.
func (state *CoordinatorActor) setterFailed(ctx actor.Context, err error) {
	state.handleDeviceError(ctx, err)
}

func (state *CoordinatorActor) systemMax(key string) int32 {
	if v, ok := state.snapshot.Float(key); ok {
		return int32(v)
	}
	return 0
}

// writePowerSettings runs a power settings setter under the power settings
// write guard. The optimistic values are reverted if the device fails.
func (state *CoordinatorActor) writePowerSettings(ctx actor.Context, op string, fn func(port.DeviceProxy) error, optimistic map[string]any, reply func(error)) {
	previous := state.mergeOptimistic(optimistic)
	state.powerSettingsInFlight = true
	state.psetEpoch++
	callDevice(state, ctx, op, func(p port.DeviceProxy) (struct{}, error) {
		return struct{}{}, fn(p)
	}, func(_ struct{}, err error) {
		state.powerSettingsInFlight = false
		if err != nil {
			state.snapshot.Merge(previous)
			state.publishSnapshot()
			state.setterFailed(ctx, err)
			reply(err)
			return
		}
		reply(nil)
	})
}

// writeWallbox runs a wallbox setter under the wallbox write guard.
func (state *CoordinatorActor) writeWallbox(ctx actor.Context, index int, op string, fn func(port.DeviceProxy) error, optimistic func(key string) map[string]any, reply func(error)) {
	wb, err := state.wallbox(index)
	if err != nil {
		reply(err)
		return
	}
	var previous map[string]any
	if optimistic != nil {
		previous = state.mergeOptimistic(optimistic(wb.Key))
	}
	state.wallboxSettingsInFlight = true
	state.wallboxEpoch++
	callDevice(state, ctx, op, func(p port.DeviceProxy) (struct{}, error) {
		return struct{}{}, fn(p)
	}, func(_ struct{}, err error) {
		state.wallboxSettingsInFlight = false
		if err != nil {
			if previous != nil {
				state.snapshot.Merge(previous)
				state.publishSnapshot()
			}
			state.setterFailed(ctx, err)
			reply(err)
			return
		}
		reply(nil)
	})
}

// mergeOptimistic writes values and returns what they replaced.
func (state *CoordinatorActor) mergeOptimistic(values map[string]any) map[string]any {
	previous := make(map[string]any, len(values))
	for k, v := range values {
		previous[k] = state.snapshot[k]
		state.snapshot[k] = v
	}
	state.publishSnapshot()
	return previous
}

func (state *CoordinatorActor) wallbox(index int) (domain.WallboxIdentity, error) {
	for _, wb := range state.identities.Wallboxes {
		if wb.Index == index {
			return wb, nil
		}
	}
	return domain.WallboxIdentity{}, domain.InvalidArgument("unknown wallbox index %d", index)
}

func (state *CoordinatorActor) setPowerLimits(ctx actor.Context, cmd domain.SetPowerLimits, reply func(error)) {
	maxCharge := state.systemMax(domain.KEY_SYSTEM_BATTERY_CHARGE_MAX)
	maxDischarge := state.systemMax(domain.KEY_SYSTEM_BATTERY_DISCHARGE_MAX)
	limits, err := service.ValidatePowerLimits(cmd, maxCharge, maxDischarge)
	if err != nil {
		reply(err)
		return
	}
	for _, name := range limits.Clamped {
		state.logger.Warn("coordinator: power limit clamped to the system maximum", zap.String("limit", name))
	}
	optimistic := map[string]any{
		domain.KEY_PSET_LIMIT_ENABLED:   true,
		domain.KEY_PSET_LIMIT_CHARGE:    maxCharge,
		domain.KEY_PSET_LIMIT_DISCHARGE: maxDischarge,
	}
	if limits.MaxCharge != nil {
		optimistic[domain.KEY_PSET_LIMIT_CHARGE] = *limits.MaxCharge
	}
	if limits.MaxDischarge != nil {
		optimistic[domain.KEY_PSET_LIMIT_DISCHARGE] = *limits.MaxDischarge
	}
	state.writePowerSettings(ctx, "set_power_limits", func(p port.DeviceProxy) error {
		return p.SetPowerLimits(true, limits.MaxCharge, limits.MaxDischarge, nil)
	}, optimistic, reply)
}

func (state *CoordinatorActor) clearPowerLimits(ctx actor.Context, reply func(error)) {
	optimistic := map[string]any{
		domain.KEY_PSET_LIMIT_ENABLED:           false,
		domain.KEY_PSET_LIMIT_CHARGE:            state.systemMax(domain.KEY_SYSTEM_BATTERY_CHARGE_MAX),
		domain.KEY_PSET_LIMIT_DISCHARGE:         state.systemMax(domain.KEY_SYSTEM_BATTERY_DISCHARGE_MAX),
		domain.KEY_PSET_LIMIT_DISCHARGE_MINIMUM: state.systemMax(domain.KEY_SYSTEM_DISCHARGE_MINIMUM_DEFAULT),
	}
	state.writePowerSettings(ctx, "clear_power_limits", func(p port.DeviceProxy) error {
		return p.SetPowerLimits(false, nil, nil, nil)
	}, optimistic, reply)
}

func (state *CoordinatorActor) startManualCharge(ctx actor.Context, cmd domain.StartManualCharge, reply func(error)) {
	if err := service.ValidateManualCharge(cmd); err != nil {
		reply(err)
		return
	}
	amount := uint32(cmd.AmountWh)
	callDevice(state, ctx, "manual_charge", func(p port.DeviceProxy) (bool, error) {
		return p.StartManualCharge(amount)
	}, func(activated bool, err error) {
		if err != nil {
			state.setterFailed(ctx, err)
			reply(err)
			return
		}
		if !activated {
			state.logger.Warn("coordinator: manual charge could not be activated", zap.Uint32("amountWh", amount))
		} else {
			state.logger.Debug("coordinator: manual charge started", zap.Uint32("amountWh", amount))
		}
		reply(nil)
	})
}

func (state *CoordinatorActor) setWallboxMaxChargeCurrent(ctx actor.Context, cmd domain.SetWallboxMaxChargeCurrent, reply func(error)) {
	wb, err := state.wallbox(cmd.Index)
	if err != nil {
		reply(err)
		return
	}
	var lower, upper *float64
	if v, ok := state.snapshot.Float(wb.Key + "-lower-current-limit"); ok {
		lower = &v
	}
	if v, ok := state.snapshot.Float(wb.Key + "-upper-current-limit"); ok {
		upper = &v
	}
	if service.LimitsInverted(lower, upper) {
		state.logger.Warn("coordinator: wallbox reports a lower current limit above its upper limit, ignoring them",
			zap.Float64("lower", *lower), zap.Float64("upper", *upper))
	}
	amps, clamped := service.ClampCurrent(cmd.Amps, lower, upper)
	if clamped {
		state.logger.Warn("coordinator: wallbox max charge current clamped to the wallbox limits",
			zap.Int32("requested", cmd.Amps), zap.Int32("amps", amps))
	}
	state.writeWallbox(ctx, cmd.Index, "set_wallbox_max_charge_current", func(p port.DeviceProxy) error {
		return p.SetWallboxMaxChargeCurrent(cmd.Index, amps)
	}, func(key string) map[string]any {
		return map[string]any{key + "-max-charge-current": amps}
	}, reply)
}

func (state *CoordinatorActor) setPowerMode(ctx actor.Context, cmd domain.SetPowerMode, reply func(error)) {
	value, err := service.ValidatePowerMode(cmd)
	if err != nil {
		reply(err)
		return
	}
	req := domain.PowerModeRequest{Mode: cmd.Mode}
	if cmd.Mode.NeedsValue() {
		req.Value = &value
	}
	future := ctx.RequestFuture(state.powerMode, req, 2*state.callTimeout)
	ctx.ReenterAfter(future, func(res any, err error) {
		if err != nil {
			reply(domain.NewDeviceError(domain.ErrUnavailable, "set_power_mode", err))
			return
		}
		if resp, ok := res.(domain.PowerModeResponse); ok && resp.HasResponseError() {
			state.setterFailed(ctx, resp.GetResponseError())
			reply(resp.GetResponseError())
			return
		}
		reply(nil)
	})
}

func (state *CoordinatorActor) setBatteryDevices(ctx actor.Context, cmd domain.SetBatteryDevices, reply func(error)) {
	if !cmd.Enabled {
		state.batteriesEnabled = false
		n := state.clearBatteries()
		state.logger.Info("coordinator: battery devices disabled", zap.Int("purgedKeys", n))
		state.publishIdentities()
		state.publishSnapshot()
		reply(nil)
		return
	}
	if state.batteriesEnabled && len(state.batteryConfigs) > 0 {
		reply(nil)
		return
	}
	state.batteriesEnabled = true
	state.identifyBatteries(ctx, func(err error) {
		if err != nil {
			state.setterFailed(ctx, err)
			reply(err)
			return
		}
		state.logger.Info("coordinator: battery devices enabled", zap.Int("packs", len(state.identities.BatteryPacks)))
		state.publishIdentities()
		state.publishSnapshot()
		reply(nil)
	})
}
