package service

import (
	"fmt"
	"strings"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

// MaxWallboxes is the number of wallbox slots probed on connect.
const MaxWallboxes = 8

// MaxWallboxCurrent is the hard upper bound for any wallbox current setting.
const MaxWallboxCurrent = 32

var wallboxRenames = map[string]string{
	"plugged":        "plug",
	"schukoOn":       "schuko",
	"sunModeOn":      "sun-mode",
	"chargingActive": "charging",
	"locked":         "lock",
}

// WallboxKey is the snapshot prefix of a wallbox, derived from its mac address.
func WallboxKey(index int, ident e3dc.RawData) string {
	if mac, ok := NormalizeString(ident["macAddress"]).(string); ok {
		return "wallbox-" + strings.ToLower(strings.ReplaceAll(mac, ":", ""))
	}
	return fmt.Sprintf("wallbox-%d", index+1)
}

func WallboxIdentityFrom(index int, ident e3dc.RawData) domain.WallboxIdentity {
	res := domain.WallboxIdentity{
		Index:      index,
		Key:        WallboxKey(index, ident),
		MacAddress: stringField(ident, "macAddress"),
		DeviceName: stringField(ident, "deviceName"),
		Firmware:   stringField(ident, "firmwareVersion"),
		Serial:     stringField(ident, "wallboxSerial"),
	}
	if n, ok := toInt(ident["maxPhases"]); ok {
		res.MaxPhases = int(n)
	}
	if res.DeviceName == "" {
		res.DeviceName = fmt.Sprintf("Wallbox %d", index+1)
	}
	return res
}

// WallboxFieldKey is the snapshot key of one wallbox telemetry field.
func WallboxFieldKey(key, field string) string {
	if slug, ok := wallboxRenames[field]; ok {
		return key + "-" + slug
	}
	return key + "-" + CamelToKebab(field)
}

// WallboxValues maps wallbox telemetry to snapshot entries. The device reports
// the lock as "unlocked", so it is inverted.
func WallboxValues(key string, data e3dc.RawData) map[string]any {
	res := map[string]any{}
	for field, v := range data {
		if !isScalar(v) {
			continue
		}
		if field == "locked" {
			if b, ok := v.(bool); ok {
				v = !b
			}
		}
		res[WallboxFieldKey(key, field)] = NormalizeString(v)
	}
	return res
}

// LimitsInverted reports wallbox limits that cannot both hold.
func LimitsInverted(lower, upper *float64) bool {
	return lower != nil && upper != nil && *lower > *upper
}

// ClampCurrent limits amps to the wallbox limits when known and to
// MaxWallboxCurrent. Inverted wallbox limits are ignored. The second result
// reports whether amps was changed.
func ClampCurrent(amps int32, lower, upper *float64) (int32, bool) {
	if LimitsInverted(lower, upper) {
		lower, upper = nil, nil
	}
	res := amps
	if lower != nil && float64(res) < *lower {
		res = int32(*lower)
	}
	if upper != nil && float64(res) > *upper {
		res = int32(*upper)
	}
	if res > MaxWallboxCurrent {
		res = MaxWallboxCurrent
	}
	if res < 0 {
		res = 0
	}
	return res, res != amps
}
