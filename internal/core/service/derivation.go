package service

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

var (
	camelWordRegexp  = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	camelUpperRegexp = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	placeholders     = map[string]struct{}{"-": {}, "n/a": {}, "none": {}, "null": {}, "unknown": {}}
)

// EnergyKWh returns capacity * voltage * moduleCount / 1000.
func EnergyKWh(capacityAh, voltage any, moduleCount int) (float64, bool) {
	if moduleCount <= 0 {
		return 0, false
	}
	c, ok := toFloat(capacityAh)
	if !ok {
		return 0, false
	}
	v, ok := toFloat(voltage)
	if !ok {
		return 0, false
	}
	return c * (float64(moduleCount) * v) / 1000, true
}

// RemainingEnergyKWh returns remaining * voltage / 1000. Remaining readings
// are already pack scoped.
func RemainingEnergyKWh(remainingAh, voltage any) (float64, bool) {
	r, ok := toFloat(remainingAh)
	if !ok {
		return 0, false
	}
	v, ok := toFloat(voltage)
	if !ok {
		return 0, false
	}
	return r * v / 1000, true
}

func StateOfHealthPct(designCapacity, fullChargeCapacity any) (float64, bool) {
	d, ok := toFloat(designCapacity)
	if !ok || d <= 0 {
		return 0, false
	}
	f, ok := toFloat(fullChargeCapacity)
	if !ok {
		return 0, false
	}
	return f / d * 100, true
}

// SocFromCapacity estimates a module charge level when the device does not report one.
func SocFromCapacity(remainingAh, voltage any) (float64, bool) {
	return RemainingEnergyKWh(remainingAh, voltage)
}

// ParseManufactureDate decodes a YYMMDD packed date into an ISO date.
func ParseManufactureDate(value any) (string, bool) {
	n, ok := toInt(value)
	if !ok || n < 0 || n > 999999 {
		return "", false
	}
	s := fmt.Sprintf("%06d", n)
	yy, _ := strconv.Atoi(s[0:2])
	month, _ := strconv.Atoi(s[2:4])
	day, _ := strconv.Atoi(s[4:6])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	year := 1900 + yy
	if yy < 90 {
		year = 2000 + yy
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		// e.g. 31st of February
		return "", false
	}
	return d.Format(time.DateOnly), true
}

func NormalizeString(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, ok := placeholders[strings.ToLower(s)]; ok {
		return nil
	}
	return s
}

// ModuleCount counts the modules of a pack from its module container, falling
// back to the dcbCount field.
func ModuleCount(pack e3dc.RawData) (int, bool) {
	if n := len(modules(pack)); n > 0 {
		return n, true
	}
	n, ok := toInt(pack["dcbCount"])
	if !ok || n <= 0 {
		return 0, false
	}
	return int(n), true
}

// DesignVoltage is the rated voltage of the first module of the pack, used for
// the whole pack.
func DesignVoltage(pack e3dc.RawData) any {
	mods := modules(pack)
	if len(mods) == 0 {
		return nil
	}
	return mods[0]["designVoltage"]
}

// Module returns the telemetry of one module of a pack, or nil.
func Module(pack e3dc.RawData, index int) e3dc.RawData {
	switch dcbs := pack["dcbs"].(type) {
	case map[int]e3dc.RawData:
		return dcbs[index]
	case map[int]any:
		return asRaw(dcbs[index])
	case map[string]any:
		return asRaw(dcbs[strconv.Itoa(index)])
	case []e3dc.RawData:
		if index >= 0 && index < len(dcbs) {
			return dcbs[index]
		}
	case []any:
		if index >= 0 && index < len(dcbs) {
			return asRaw(dcbs[index])
		}
	}
	return nil
}

// modules returns the module entries of a pack ordered by index.
func modules(pack e3dc.RawData) []e3dc.RawData {
	var res []e3dc.RawData
	switch dcbs := pack["dcbs"].(type) {
	case map[int]e3dc.RawData:
		keys := make([]int, 0, len(dcbs))
		for k := range dcbs {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			res = append(res, dcbs[k])
		}
	case map[int]any:
		keys := make([]int, 0, len(dcbs))
		for k := range dcbs {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			res = append(res, asRaw(dcbs[k]))
		}
	case map[string]any:
		keys := make([]string, 0, len(dcbs))
		for k := range dcbs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			res = append(res, asRaw(dcbs[k]))
		}
	case []e3dc.RawData:
		res = append(res, dcbs...)
	case []any:
		for _, d := range dcbs {
			res = append(res, asRaw(d))
		}
	}
	return res
}

// CamelToKebab converts device field names, e.g. sunModeOn => sun-mode-on.
func CamelToKebab(s string) string {
	s = camelWordRegexp.ReplaceAllString(s, "${1}-${2}")
	s = camelUpperRegexp.ReplaceAllString(s, "${1}-${2}")
	return strings.ToLower(s)
}

// Round rounds v to the given decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func orNil(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func asRaw(v any) e3dc.RawData {
	switch m := v.(type) {
	case e3dc.RawData:
		return m
	case map[string]any:
		return m
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
