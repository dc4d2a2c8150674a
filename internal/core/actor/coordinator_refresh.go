package actor

import (
	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"go.uber.org/zap"
)

const dbDaySpanSeconds = 86400

// refreshStep is one sub-poll. done must be called exactly once unless the
// session is gone.
type refreshStep struct {
	name string
	run  func(ctx actor.Context, done func(error))
}

// refresh runs the sub-polls one after the other. A failed sub-poll keeps
// its previous snapshot values.
func (state *CoordinatorActor) refresh(ctx actor.Context, finish func()) {
	steps := []refreshStep{
		{"poll", state.refreshPoll},
		{"power_settings", state.refreshPowerSettings},
		{"manual_charge", state.refreshManualCharge},
		{"powermeters", state.refreshPowermeters},
		{"wallboxes", state.refreshWallboxes},
		{"batteries", state.refreshBatteries},
		{"db_day", state.refreshDBDay},
	}
	state.runSteps(ctx, steps, 0, finish)
}

func (state *CoordinatorActor) runSteps(ctx actor.Context, steps []refreshStep, i int, finish func()) {
	if i == len(steps) {
		finish()
		return
	}
	step := steps[i]
	step.run(ctx, func(err error) {
		if err != nil {
			if !state.handleDeviceError(ctx, err) {
				return
			}
			state.logger.Warn("coordinator@refreshing: sub-poll failed", zap.String("step", step.name), zap.Error(err))
		}
		state.runSteps(ctx, steps, i+1, finish)
	})
}

func (state *CoordinatorActor) refreshPoll(ctx actor.Context, done func(error)) {
	callDevice(state, ctx, "poll", port.DeviceProxy.Poll, func(res *e3dc.PollData, err error) {
		if err == nil && res == nil {
			state.logger.Debug("coordinator@refreshing: poll not supported by the device")
		}
		if err == nil {
			state.snapshot.Merge(service.PollValues(res))
		}
		done(err)
	})
}

func (state *CoordinatorActor) refreshPowerSettings(ctx actor.Context, done func(error)) {
	if state.powerSettingsInFlight {
		state.logger.Debug("coordinator@refreshing: power settings are being updated, not polling them")
		done(nil)
		return
	}
	epoch := state.psetEpoch
	callDevice(state, ctx, "power_settings", port.DeviceProxy.PowerSettings, func(res *e3dc.PowerSettings, err error) {
		if err == nil && res == nil {
			state.logger.Debug("coordinator@refreshing: power settings not supported by the device")
		} else if err == nil {
			if state.powerSettingsInFlight || epoch != state.psetEpoch {
				state.logger.Debug("coordinator@refreshing: power settings changed meanwhile, discarded")
			} else {
				state.snapshot.Merge(service.PowerSettingsValues(res))
			}
		}
		done(err)
	})
}

func (state *CoordinatorActor) refreshManualCharge(ctx actor.Context, done func(error)) {
	callDevice(state, ctx, "manual_charge", port.DeviceProxy.ManualCharge, func(res port.ManualCharge, err error) {
		if err == nil {
			state.snapshot.Merge(service.ManualChargeValues(res))
		}
		done(err)
	})
}

func (state *CoordinatorActor) refreshPowermeters(ctx actor.Context, done func(error)) {
	configs := state.config.Coordinator.Powermeters
	if len(configs) == 0 {
		done(nil)
		return
	}
	if state.wallboxSettingsInFlight {
		state.logger.Debug("coordinator@refreshing: wallbox settings are being updated, not polling powermeters")
		done(nil)
		return
	}
	callDevice(state, ctx, "powermeters_data", port.DeviceProxy.PowermetersData, func(res []e3dc.PowermeterData, err error) {
		if err == nil {
			state.snapshot.Merge(service.PowermeterValues(res, configs))
		}
		done(err)
	})
}

func (state *CoordinatorActor) refreshWallboxes(ctx actor.Context, done func(error)) {
	wallboxes := state.identities.Wallboxes
	if len(wallboxes) == 0 {
		done(nil)
		return
	}
	if state.wallboxSettingsInFlight {
		state.logger.Debug("coordinator@refreshing: wallbox settings are being updated, not polling wallboxes")
		done(nil)
		return
	}
	epoch := state.wallboxEpoch
	callDevice(state, ctx, "wallbox_data", func(p port.DeviceProxy) (map[int]e3dc.RawData, error) {
		res := make(map[int]e3dc.RawData, len(wallboxes))
		for _, wb := range wallboxes {
			data, err := p.WallboxData(wb.Index)
			if err != nil {
				return nil, err
			}
			res[wb.Index] = data
		}
		return res, nil
	}, func(res map[int]e3dc.RawData, err error) {
		if err == nil {
			if state.wallboxSettingsInFlight || epoch != state.wallboxEpoch {
				state.logger.Debug("coordinator@refreshing: wallbox settings changed meanwhile, discarded")
			} else {
				for _, wb := range wallboxes {
					state.snapshot.Merge(wallboxSnapshotValues(wb, res[wb.Index]))
				}
			}
		}
		done(err)
	})
}

func (state *CoordinatorActor) refreshBatteries(ctx actor.Context, done func(error)) {
	if !state.batteriesEnabled {
		if n := service.PurgeBatteryKeys(state.snapshot); n > 0 {
			state.logger.Debug("coordinator@refreshing: purged battery keys", zap.Int("count", n))
		}
		done(nil)
		return
	}
	if state.identifying || len(state.batteryConfigs) == 0 {
		done(nil)
		return
	}
	configs := state.batteryConfigs
	callDevice(state, ctx, "battery_data", port.DeviceProxy.BatteryData, func(res []e3dc.RawData, err error) {
		if err == nil && state.batteriesEnabled {
			state.snapshot.Merge(service.BatteryValues(configs, res))
		}
		done(err)
	})
}

// refreshDBDay polls the day statistics at most once per stats interval. The
// device only updates them every few minutes.
func (state *CoordinatorActor) refreshDBDay(ctx actor.Context, done func(error)) {
	now := state.now()
	if now.Before(state.nextStats) {
		done(nil)
		return
	}
	start := service.DayStartTimestamp(now, state.tzOffset)
	callDevice(state, ctx, "db_data", func(p port.DeviceProxy) (*e3dc.DBData, error) {
		return p.DBData(start, dbDaySpanSeconds)
	}, func(res *e3dc.DBData, err error) {
		if err == nil {
			if res == nil {
				state.logger.Debug("coordinator@refreshing: day statistics not supported by the device")
			}
			state.snapshot.Merge(service.DBDayValues(res))
			state.nextStats = now.Add(state.config.Coordinator.StatsRefreshInterval())
		}
		done(err)
	})
}
