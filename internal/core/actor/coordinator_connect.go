package actor

import (
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"go.uber.org/zap"
)

type connectResult struct {
	info      *e3dc.SystemInfo
	release   string
	mode      *e3dc.PowerModeState
	zone      string
	offset    int
	wallboxes []wallboxProbe
}

type wallboxProbe struct {
	index int
	ident e3dc.RawData
	data  e3dc.RawData
}

type batteryProbe struct {
	configs []e3dc.BatteryConfig
	packs   []e3dc.RawData
}

// connect opens a device session and reads everything that is fetched once
// per session: system capabilities, the time zone and the wallboxes.
func (state *CoordinatorActor) connect(ctx actor.Context) {
	state.logger.Debug("coordinator@connecting: connecting to device")
	powermeters := state.config.Coordinator.Powermeters
	reconnect := state.session > 0
	now := state.now()
	logger := state.logger
	callDevice(state, ctx, "connect", func(p port.DeviceProxy) (*connectResult, error) {
		if reconnect {
			if err := p.Disconnect(); err != nil {
				logger.Debug("coordinator: disconnect before reconnect", zap.Error(err))
			}
		}
		if err := p.Connect(powermeters); err != nil {
			return nil, err
		}
		return probeDevice(p, now, logger)
	}, func(res *connectResult, err error) {
		if err != nil {
			state.connectFailed(ctx, err)
			return
		}
		state.applyConnect(res)
		if !state.batteriesEnabled {
			state.connectDone(ctx)
			return
		}
		state.identifyBatteries(ctx, func(err error) {
			if err != nil {
				if !state.handleDeviceError(ctx, err) {
					return
				}
				state.logger.Warn("coordinator: battery identification failed", zap.Error(err))
			}
			state.connectDone(ctx)
		})
	})
}

// probeDevice runs on the device actor.
func probeDevice(p port.DeviceProxy, now time.Time, logger *zap.Logger) (*connectResult, error) {
	res := &connectResult{}
	var err error
	if res.info, err = p.SystemInfo(); err != nil {
		return nil, err
	}
	if res.info == nil {
		logger.Warn("coordinator: system info not supported by the device")
		res.info = &e3dc.SystemInfo{}
	}
	if res.release, err = p.SoftwareRelease(); err != nil {
		if domain.IsAuthFailure(err) {
			return nil, err
		}
		logger.Warn("coordinator: cannot read software release", zap.Error(err))
	}
	if res.mode, err = p.PowerMode(); err != nil {
		if domain.IsAuthFailure(err) {
			return nil, err
		}
		logger.Warn("coordinator: cannot read power mode", zap.Error(err))
	}
	if res.zone, res.offset, err = resolveTimezone(p, now, logger); err != nil {
		return nil, err
	}
	for i := 0; i < service.MaxWallboxes; i++ {
		ident, err := p.WallboxIdentification(i)
		if err != nil {
			if domain.IsAuthFailure(err) {
				return nil, err
			}
			logger.Warn("coordinator: wallbox identification failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		if len(ident) == 0 {
			continue
		}
		data, err := p.WallboxData(i)
		if err != nil {
			if domain.IsAuthFailure(err) {
				return nil, err
			}
			logger.Warn("coordinator: wallbox telemetry failed", zap.Int("index", i), zap.Error(err))
		}
		res.wallboxes = append(res.wallboxes, wallboxProbe{index: i, ident: ident, data: data})
	}
	return res, nil
}

// resolveTimezone resolves the device UTC offset from its zone name, then
// from its clocks, then gives up with UTC.
func resolveTimezone(p port.DeviceProxy, now time.Time, logger *zap.Logger) (string, int, error) {
	zone, err := p.TimeZone()
	if err != nil {
		if domain.IsAuthFailure(err) {
			return "", 0, err
		}
		logger.Debug("coordinator: cannot read time zone", zap.Error(err))
	} else {
		offset, err := service.ResolveOffset(zone, now)
		if err == nil {
			return zone, offset, nil
		}
		logger.Debug("coordinator: cannot resolve time zone name", zap.String("zone", zone), zap.Error(err))
	}
	local, errLocal := p.Time()
	utc, errUTC := p.TimeUTC()
	if domain.IsAuthFailure(errLocal) {
		return "", 0, errLocal
	}
	if domain.IsAuthFailure(errUTC) {
		return "", 0, errUTC
	}
	if errLocal == nil && errUTC == nil && !local.IsZero() && !utc.IsZero() {
		return zone, service.OffsetFromClocks(local, utc), nil
	}
	logger.Warn("coordinator: cannot determine device time zone, assuming UTC")
	return zone, 0, nil
}

func (state *CoordinatorActor) connectFailed(ctx actor.Context, err error) {
	if domain.IsAuthFailure(err) {
		state.authLost(ctx, err)
		return
	}
	state.reason = reasonConnecting + ": " + err.Error()
	state.logger.Warn("coordinator@connecting: connect failed", zap.Duration("retryIn", state.backoff), zap.Error(err))
	state.cancelConnect = state.scheduler.RequestOnce(state.backoff, ctx.Self(), connectTick{})
	state.backoff *= 2
	if state.backoff > maxConnectBackoff {
		state.backoff = maxConnectBackoff
	}
}

func (state *CoordinatorActor) applyConnect(res *connectResult) {
	s := state.snapshot
	s.Merge(service.SystemValues(res.info))
	s[domain.KEY_SYSTEM_SOFTWARE_VERSION] = service.NormalizeString(res.release)
	s[domain.KEY_TIMEZONE] = service.NormalizeString(res.zone)
	if res.mode != nil {
		s[domain.KEY_POWER_MODE] = res.mode.Mode.String()
	}
	s.Merge(service.PowerModeValues(e3dc.PowerModeNormal, nil))
	state.tzOffset = res.offset
	state.nextStats = time.Time{}

	state.identities.System = domain.SystemIdentity{
		Model:           res.info.Model,
		Manufacturer:    res.info.Manufacturer,
		SerialNumber:    res.info.SerialNumber,
		MacAddress:      res.info.MacAddress,
		SoftwareVersion: res.release,
	}

	state.identities.Wallboxes = nil
	for _, wb := range res.wallboxes {
		ident := service.WallboxIdentityFrom(wb.index, wb.ident)
		state.identities.Wallboxes = append(state.identities.Wallboxes, ident)
		s.Seed(wallboxKeys(ident.Key)...)
		s.Merge(wallboxSnapshotValues(ident, wb.data))
	}

	state.identities.Powermeters = nil
	for _, m := range state.config.Coordinator.Powermeters {
		state.identities.Powermeters = append(state.identities.Powermeters, m.Key)
	}

	s.Seed(domain.StaticKeys...)
	s.Seed(domain.DynamicKeys...)
	s.Seed(service.PowermeterKeys(state.config.Coordinator.Powermeters)...)
	state.logger.Info("coordinator: connected",
		zap.String("model", res.info.Model),
		zap.String("release", res.release),
		zap.String("timezone", res.zone),
		zap.Int("wallboxes", len(state.identities.Wallboxes)))
}

func (state *CoordinatorActor) connectDone(ctx actor.Context) {
	state.connected = true
	state.reason = ""
	state.backoff = minConnectBackoff
	state.publishIdentities()
	state.publishConnectionState()
	state.publishSnapshot()
	state.Become(CIdleState{actor: state})
	ctx.Send(ctx.Self(), domain.RefreshRequest{})
}

// identifyBatteries runs one identification pass at a time; callers arriving
// while a pass is running wait for its result.
func (state *CoordinatorActor) identifyBatteries(ctx actor.Context, done func(error)) {
	state.identifyWaiters = append(state.identifyWaiters, done)
	if state.identifying {
		return
	}
	state.identifying = true
	callDevice(state, ctx, "identify_batteries", func(p port.DeviceProxy) (*batteryProbe, error) {
		configs, err := p.Batteries()
		if err != nil {
			return nil, err
		}
		packs, err := p.BatteryData()
		if err != nil {
			return nil, err
		}
		return &batteryProbe{configs: configs, packs: packs}, nil
	}, func(res *batteryProbe, err error) {
		if err == errSessionClosed {
			// waiters were released by dropSession
			return
		}
		state.identifying = false
		waiters := state.identifyWaiters
		state.identifyWaiters = nil
		if err == nil {
			if state.batteriesEnabled {
				state.applyBatteries(res)
			} else {
				state.logger.Debug("coordinator: battery devices disabled meanwhile, identification discarded")
			}
		}
		for _, w := range waiters {
			w(err)
		}
	})
}

func (state *CoordinatorActor) applyBatteries(res *batteryProbe) {
	packs, modules := service.IdentifyBatteries(res.configs, res.packs)
	state.batteryConfigs = res.configs
	state.identities.BatteryPacks = packs
	state.identities.BatteryModules = modules
	state.snapshot.Seed(service.BatteryKeys(packs, modules)...)
	state.snapshot.Merge(service.BatteryValues(res.configs, res.packs))
	state.logger.Debug("coordinator: batteries identified", zap.Int("packs", len(packs)), zap.Int("modules", len(modules)))
}

func (state *CoordinatorActor) clearBatteries() int {
	state.batteryConfigs = nil
	state.identities.BatteryPacks = nil
	state.identities.BatteryModules = nil
	return service.PurgeBatteryKeys(state.snapshot)
}

func wallboxKeys(key string) []string {
	return []string{
		key + "-index",
		key + "-max-charge-current",
		key + "-lower-current-limit",
		key + "-upper-current-limit",
	}
}

func wallboxSnapshotValues(ident domain.WallboxIdentity, data e3dc.RawData) map[string]any {
	res := service.WallboxValues(ident.Key, data)
	res[ident.Key+"-index"] = ident.Index
	return res
}
