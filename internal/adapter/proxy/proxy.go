package proxy

import (
	"errors"
	"time"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"go.uber.org/zap"
)

// E3DCProxy is the DeviceProxy over an e3dc.Client. Calls are blocking and
// must not run concurrently.
type E3DCProxy struct {
	client e3dc.Client
	config e3dc.ConnectConfig
	logger *zap.Logger
}

func NewE3DCProxy(client e3dc.Client, config e3dc.ConnectConfig, logger *zap.Logger) *E3DCProxy {
	return &E3DCProxy{
		client: client,
		config: config,
		logger: actorutil.ActorLogger("proxy", logger),
	}
}

// classify maps library errors to domain error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, e3dc.ErrAuthentication), errors.Is(err, e3dc.ErrRSCPKey):
		return domain.NewDeviceError(domain.ErrAuthFailure, op, err)
	case errors.Is(err, e3dc.ErrNotAvailable):
		return domain.NewDeviceError(domain.ErrUnavailable, op, err)
	case errors.Is(err, e3dc.ErrSend):
		return domain.NewDeviceError(domain.ErrSendFailure, op, err)
	case errors.Is(err, e3dc.ErrNotConnected):
		return domain.NewDeviceError(domain.ErrNotConnected, op, err)
	default:
		return domain.NewDeviceError(domain.ErrFatal, op, err)
	}
}

// query runs a getter, turning an unsupported query into the zero value.
func query[T any](op string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if errors.Is(err, e3dc.ErrNotSupported) {
		var zero T
		return zero, nil
	}
	if err != nil {
		var zero T
		return zero, classify(op, err)
	}
	return v, nil
}

func refused(op string, ok bool, err error) error {
	if err != nil {
		return classify(op, err)
	}
	if !ok {
		return domain.NewDeviceError(domain.ErrRefused, op, nil)
	}
	return nil
}

func (p *E3DCProxy) Connect(powermeters []e3dc.PowermeterConfig) error {
	cfg := p.config
	cfg.Powermeters = powermeters
	p.logger.Sugar().Debugf("connecting to %s:%d", cfg.Host, cfg.Port)
	return classify("connect", p.client.Connect(cfg))
}

func (p *E3DCProxy) Disconnect() error {
	return classify("disconnect", p.client.Disconnect())
}

func (p *E3DCProxy) SystemInfo() (*e3dc.SystemInfo, error) {
	return query("system_info", p.client.SystemInfo)
}

func (p *E3DCProxy) SoftwareRelease() (string, error) {
	return query("software_release", p.client.SoftwareRelease)
}

func (p *E3DCProxy) Poll() (*e3dc.PollData, error) {
	return query("poll", p.client.Poll)
}

func (p *E3DCProxy) PowerSettings() (*e3dc.PowerSettings, error) {
	return query("power_settings", p.client.PowerSettings)
}

// SetPowerLimits fails on a rejected request. A non optimal result is
// accepted and logged.
func (p *E3DCProxy) SetPowerLimits(enable bool, maxCharge, maxDischarge, dischargeStart *int32) error {
	res, err := p.client.SetPowerLimits(enable, maxCharge, maxDischarge, dischargeStart)
	if err != nil {
		return classify("set_power_limits", err)
	}
	switch res {
	case e3dc.PowerLimitsFailed:
		return domain.NewDeviceError(domain.ErrRefused, "set_power_limits", nil)
	case e3dc.PowerLimitsNotOptimal:
		p.logger.Warn("power limits accepted with non optimal values")
	}
	return nil
}

func (p *E3DCProxy) SetPowerSave(enabled bool) error {
	return classify("set_powersave", p.client.SetPowerSave(enabled))
}

func (p *E3DCProxy) SetWeatherRegulatedCharge(enabled bool) error {
	return classify("set_weather_regulated_charge", p.client.SetWeatherRegulatedCharge(enabled))
}

// ManualCharge reports an inactive charge when the device does not answer the query.
func (p *E3DCProxy) ManualCharge() (port.ManualCharge, error) {
	state, err := p.client.ManualCharge()
	if errors.Is(err, e3dc.ErrSend) || errors.Is(err, e3dc.ErrNotSupported) {
		return port.ManualCharge{}, nil
	}
	if err != nil {
		return port.ManualCharge{}, classify("manual_charge", err)
	}
	if state == nil {
		return port.ManualCharge{}, nil
	}
	return port.ManualCharge{
		Active: state.Active,
		Energy: service.ManualChargeEnergy(state),
	}, nil
}

func (p *E3DCProxy) StartManualCharge(amountWh uint32) (bool, error) {
	ok, err := p.client.StartManualCharge(amountWh)
	return ok, classify("start_manual_charge", err)
}

func (p *E3DCProxy) PowerMode() (*e3dc.PowerModeState, error) {
	return query("power_mode", p.client.PowerMode)
}

func (p *E3DCProxy) SetPowerMode(mode e3dc.PowerMode, valueWatt int32) error {
	return classify("set_power_mode", p.client.SetPowerMode(mode, valueWatt))
}

func (p *E3DCProxy) DBData(startTimestamp int64, spanSeconds int64) (*e3dc.DBData, error) {
	return query("db_data", func() (*e3dc.DBData, error) {
		return p.client.DBData(startTimestamp, spanSeconds)
	})
}

func (p *E3DCProxy) Powermeters() ([]e3dc.Powermeter, error) {
	return query("powermeters", p.client.Powermeters)
}

func (p *E3DCProxy) PowermetersData() ([]e3dc.PowermeterData, error) {
	return query("powermeters_data", p.client.PowermetersData)
}

func (p *E3DCProxy) WallboxIdentification(index int) (e3dc.RawData, error) {
	return query("wallbox_identification", func() (e3dc.RawData, error) {
		return p.client.WallboxIdentification(index)
	})
}

func (p *E3DCProxy) WallboxData(index int) (e3dc.RawData, error) {
	return query("wallbox_data", func() (e3dc.RawData, error) {
		return p.client.WallboxData(index)
	})
}

func (p *E3DCProxy) SetWallboxSunMode(index int, enabled bool) error {
	ok, err := p.client.SetWallboxSunMode(index, enabled)
	return refused("set_wallbox_sun_mode", ok, err)
}

func (p *E3DCProxy) SetWallboxSchuko(index int, enabled bool) error {
	ok, err := p.client.SetWallboxSchuko(index, enabled)
	return refused("set_wallbox_schuko", ok, err)
}

func (p *E3DCProxy) ToggleWallboxCharging(index int) error {
	ok, err := p.client.ToggleWallboxCharging(index)
	return refused("toggle_wallbox_charging", ok, err)
}

func (p *E3DCProxy) ToggleWallboxPhases(index int) error {
	ok, err := p.client.ToggleWallboxPhases(index)
	return refused("toggle_wallbox_phases", ok, err)
}

func (p *E3DCProxy) SetWallboxMaxChargeCurrent(index int, amps int32) error {
	if amps > service.MaxWallboxCurrent {
		p.logger.Warn("wallbox current above hard limit, clamping",
			zap.Int32("requested", amps), zap.Int32("limit", service.MaxWallboxCurrent))
		amps = service.MaxWallboxCurrent
	}
	ok, err := p.client.SetWallboxMaxChargeCurrent(index, amps)
	return refused("set_wallbox_max_charge_current", ok, err)
}

func (p *E3DCProxy) Batteries() ([]e3dc.BatteryConfig, error) {
	return query("batteries", p.client.Batteries)
}

func (p *E3DCProxy) BatteryData() ([]e3dc.RawData, error) {
	return query("battery_data", p.client.BatteryData)
}

func (p *E3DCProxy) TimeZone() (string, error) {
	return query("timezone", p.client.TimeZone)
}

func (p *E3DCProxy) Time() (time.Time, error) {
	return query("time", p.client.Time)
}

func (p *E3DCProxy) TimeUTC() (time.Time, error) {
	return query("time_utc", p.client.TimeUTC)
}

// ensure interface compliance
var _ port.DeviceProxy = (*E3DCProxy)(nil)
