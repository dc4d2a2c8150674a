package actor

import (
	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	. "github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
)

// diagnostics dumps the snapshot together with fresh raw device queries.
// Failed queries are reported inline, identifying values are redacted.
func (state *CoordinatorActor) diagnostics(ctx actor.Context, req domain.DiagnosticsRequest) {
	replyTo := ForRequest(req).ReplyTo(ctx)
	respond := func(report map[string]any, err error) {
		if replyTo == nil {
			return
		}
		ctx.Send(replyTo, domain.DiagnosticsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Report: report,
		})
	}

	report := map[string]any{
		"snapshot":       state.snapshot.Copy(),
		"identities":     state.identities.Copy(),
		"connected":      state.connected,
		"state_reason":   state.reason,
		"actor_state":    state.StateName(),
		"connect_config": state.connectConfigDump(),
	}
	if !state.connected {
		respond(service.Redact(report).(map[string]any), nil)
		return
	}

	wallboxes := state.identities.Wallboxes
	callDevice(state, ctx, "diagnostics", func(p port.DeviceProxy) (map[string]any, error) {
		res := map[string]any{}
		res["poll"] = diagnosticsEntry(p.Poll())
		res["power_settings"] = diagnosticsEntry(p.PowerSettings())
		res["powermeters"] = diagnosticsEntry(p.Powermeters())
		res["powermeters_data"] = diagnosticsEntry(p.PowermetersData())
		res["batteries"] = diagnosticsEntry(p.Batteries())
		res["battery_data"] = diagnosticsEntry(p.BatteryData())
		wbs := map[string]any{}
		for _, wb := range wallboxes {
			wbs[wb.Key] = diagnosticsEntry(p.WallboxData(wb.Index))
		}
		res["wallboxes"] = wbs
		return res, nil
	}, func(res map[string]any, err error) {
		if err != nil {
			report["device"] = map[string]any{"exception": err.Error()}
		} else {
			for k, v := range res {
				report[k] = v
			}
		}
		respond(service.Redact(report).(map[string]any), nil)
	})
}

func diagnosticsEntry[T any](v T, err error) any {
	if err != nil {
		return map[string]any{"exception": err.Error()}
	}
	return v
}

// connectConfigDump is the connect configuration without credentials.
func (state *CoordinatorActor) connectConfigDump() map[string]any {
	dev := state.config.Device
	return map[string]any{
		"host":                   dev.Host,
		"port":                   dev.Port,
		"username":               dev.Username,
		"unit_id":                dev.UnitId,
		"timeout_millis":         dev.TimeoutMillis,
		"powermeters":            state.config.Coordinator.Powermeters,
		"create_battery_devices": state.batteriesEnabled,
	}
}
