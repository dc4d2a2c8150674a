package entity

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

const (
	SERVICE_SET_POWER_LIMITS               = "set_power_limits"
	SERVICE_CLEAR_POWER_LIMITS             = "clear_power_limits"
	SERVICE_MANUAL_CHARGE                  = "manual_charge"
	SERVICE_SET_WALLBOX_MAX_CHARGE_CURRENT = "set_wallbox_max_charge_current"
	SERVICE_SET_POWER_MODE                 = "set_power_mode"
	SERVICE_SET_BATTERY_DEVICES            = "set_battery_devices"
	MQTT_PAYLOAD_ON                        = "on"
	MQTT_PAYLOAD_OFF                       = "off"
)

// ServiceCall is the JSON body of a service invocation.
type ServiceCall struct {
	MaxCharge        *int32 `json:"max_charge"`
	MaxDischarge     *int32 `json:"max_discharge"`
	ChargeAmount     *int64 `json:"charge_amount"`
	WallboxIndex     *int   `json:"wallbox_index"`
	MaxChargeCurrent *int32 `json:"max_charge_current"`
	PowerMode        string `json:"power_mode"`
	PowerValue       *int32 `json:"power_value"`
	Enabled          *bool  `json:"enabled"`
}

// ParseService maps a service name and its JSON body to a command.
func ParseService(name string, body []byte) (domain.Command, error) {
	var call ServiceCall
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &call); err != nil {
			return nil, domain.InvalidArgument("%s: malformed body: %s", name, err)
		}
	}
	return call.Command(name)
}

func (call ServiceCall) Command(name string) (domain.Command, error) {
	switch name {
	case SERVICE_SET_POWER_LIMITS:
		return domain.SetPowerLimits{MaxCharge: call.MaxCharge, MaxDischarge: call.MaxDischarge}, nil
	case SERVICE_CLEAR_POWER_LIMITS:
		return domain.ClearPowerLimits{}, nil
	case SERVICE_MANUAL_CHARGE:
		if call.ChargeAmount == nil {
			return nil, domain.InvalidArgument("%s: charge_amount is required", name)
		}
		return domain.StartManualCharge{AmountWh: *call.ChargeAmount}, nil
	case SERVICE_SET_WALLBOX_MAX_CHARGE_CURRENT:
		if call.MaxChargeCurrent == nil {
			return nil, domain.InvalidArgument("%s: max_charge_current is required", name)
		}
		index := 0
		if call.WallboxIndex != nil {
			index = *call.WallboxIndex
		}
		return domain.SetWallboxMaxChargeCurrent{Index: index, Amps: *call.MaxChargeCurrent}, nil
	case SERVICE_SET_POWER_MODE:
		mode, err := e3dc.ParsePowerMode(call.PowerMode)
		if err != nil {
			return nil, domain.InvalidArgument("%s: %s", name, err)
		}
		return domain.SetPowerMode{Mode: mode, Value: call.PowerValue}, nil
	case SERVICE_SET_BATTERY_DEVICES:
		if call.Enabled == nil {
			return nil, domain.InvalidArgument("%s: enabled is required", name)
		}
		return domain.SetBatteryDevices{Enabled: *call.Enabled}, nil
	default:
		return nil, domain.InvalidArgument("unknown service %s", name)
	}
}

// ParseCommand maps an entity command to a domain command. snapshot is used
// to complete partial power mode changes.
func (c Catalog) ParseCommand(platform, id, payload string, snapshot domain.Snapshot) (domain.Command, error) {
	payload = strings.TrimSpace(payload)
	switch platform {
	case PLATFORM_SWITCH:
		enabled, err := parseSwitchPayload(payload)
		if err != nil {
			return nil, err
		}
		return c.switchCommand(id, enabled)
	case PLATFORM_NUMBER:
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return nil, domain.InvalidArgument("number %s: %q is not a number", id, payload)
		}
		return c.numberCommand(id, value, snapshot)
	case PLATFORM_BUTTON:
		if payload != "" && !strings.EqualFold(payload, MQTT_PAYLOAD_PRESS) {
			return nil, domain.InvalidArgument("button %s: unexpected payload %q", id, payload)
		}
		return c.buttonCommand(id)
	case PLATFORM_SELECT:
		if id != domain.KEY_SET_POWER_MODE {
			return nil, domain.InvalidArgument("unknown select %s", id)
		}
		return parsePowerModeSelect(payload, snapshot)
	default:
		return nil, domain.InvalidArgument("platform %s takes no commands", platform)
	}
}

func (c Catalog) switchCommand(id string, enabled bool) (domain.Command, error) {
	switch id {
	case domain.KEY_PSET_POWERSAVING_ENABLED:
		return domain.SetPowersave{Enabled: enabled}, nil
	case domain.KEY_PSET_WEATHERREGULATED_ENABLED:
		return domain.SetWeatherRegulatedCharge{Enabled: enabled}, nil
	}
	if wb, field, ok := c.Wallbox(id); ok {
		switch field {
		case "sun-mode":
			return domain.SetWallboxSunMode{Index: wb.Index, Enabled: enabled}, nil
		case "schuko":
			return domain.SetWallboxSchuko{Index: wb.Index, Enabled: enabled}, nil
		}
	}
	return nil, domain.InvalidArgument("unknown switch %s", id)
}

func (c Catalog) numberCommand(id string, value float64, snapshot domain.Snapshot) (domain.Command, error) {
	if id == domain.KEY_SET_POWER_VAL {
		mode := e3dc.PowerModeNormal
		if name, ok := snapshot[domain.KEY_SET_POWER_MODE].(string); ok {
			if m, err := e3dc.ParsePowerMode(name); err == nil {
				mode = m
			}
		}
		v := int32(value)
		return domain.SetPowerMode{Mode: mode, Value: &v}, nil
	}
	if wb, field, ok := c.Wallbox(id); ok && field == "max-charge-current" {
		return domain.SetWallboxMaxChargeCurrent{Index: wb.Index, Amps: int32(value)}, nil
	}
	return nil, domain.InvalidArgument("unknown number %s", id)
}

func (c Catalog) buttonCommand(id string) (domain.Command, error) {
	for _, wb := range c.wallboxes {
		switch id {
		case wb.Key + "-" + BUTTON_SUFFIX_TOGGLE_PHASES:
			return domain.ToggleWallboxPhases{Index: wb.Index}, nil
		case wb.Key + "-" + BUTTON_SUFFIX_TOGGLE_CHARGING:
			return domain.ToggleWallboxCharging{Index: wb.Index}, nil
		}
	}
	return nil, domain.InvalidArgument("unknown button %s", id)
}

func parseSwitchPayload(payload string) (bool, error) {
	switch strings.ToLower(payload) {
	case MQTT_PAYLOAD_ON, "true", "1":
		return true, nil
	case MQTT_PAYLOAD_OFF, "false", "0":
		return false, nil
	default:
		return false, domain.InvalidArgument("invalid switch payload %q", payload)
	}
}

// parsePowerModeSelect accepts "MODE" or "MODE:VALUE". Without a value the
// current set-power-value is kept.
func parsePowerModeSelect(payload string, snapshot domain.Snapshot) (domain.Command, error) {
	name, rawValue, hasValue := strings.Cut(payload, ":")
	mode, err := e3dc.ParsePowerMode(name)
	if err != nil {
		return nil, domain.InvalidArgument("%s", err)
	}
	cmd := domain.SetPowerMode{Mode: mode}
	if hasValue {
		v, err := strconv.ParseInt(strings.TrimSpace(rawValue), 10, 32)
		if err != nil {
			return nil, domain.InvalidArgument("power mode value %q is not a number", rawValue)
		}
		value := int32(v)
		cmd.Value = &value
	} else if mode.NeedsValue() {
		if v, ok := snapshot.Float(domain.KEY_SET_POWER_VAL); ok {
			value := int32(v)
			cmd.Value = &value
		}
	}
	return cmd, nil
}
