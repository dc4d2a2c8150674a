package service

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

var batteryDeviceKeyRegexp = regexp.MustCompile(`^battery-(pack-\d+|\d+-\d+)-`)

type rawField struct {
	field string
	slug  string
}

var packFields = []rawField{
	{"asoc", "asoc"},
	{"chargeCycles", "charge-cycles"},
	{"current", "current"},
	{"designCapacity", "design-capacity"},
	{"deviceName", "device-name"},
	{"eodVoltage", "eod-voltage"},
	{"fcc", "full-charge-capacity"},
	{"maxChargeCurrent", "max-charge-current"},
	{"maxChargeTemperature", "max-charge-temperature"},
	{"maxChargeVoltage", "max-charge-voltage"},
	{"maxDischargeCurrent", "max-discharge-current"},
	{"minChargeTemperature", "min-charge-temperature"},
	{"moduleVoltage", "module-voltage"},
	{"rc", "remaining-capacity"},
	{"rsoc", "rsoc"},
	{"rsocReal", "rsoc-real"},
	{"terminalVoltage", "terminal-voltage"},
	{"totalUseTime", "total-use-time"},
	{"totalDischargeTime", "total-discharge-time"},
	{"usuableCapacity", "usable-capacity"},
	{"usuableRemainingCapacity", "usable-remaining-capacity"},
}

var packCalculated = []string{"design-energy", "full-energy", "remaining-energy", "usable-remaining-energy", "state-of-health"}

var moduleFields = []rawField{
	{"current", "current"},
	{"currentAvg30s", "current-avg30s"},
	{"cycleCount", "cycle-count"},
	{"designCapacity", "design-capacity"},
	{"designVoltage", "design-voltage"},
	{"endOfDischarge", "end-of-discharge"},
	{"fullChargeCapacity", "full-charge-capacity"},
	{"manufactureDate", "manufacture-date"},
	{"maxChargeCurrent", "max-charge-current"},
	{"maxChargeTemperature", "max-charge-temperature"},
	{"maxChargeVoltage", "max-charge-voltage"},
	{"maxDischargeCurrent", "max-discharge-current"},
	{"minChargeTemperature", "min-charge-temperature"},
	{"power", "power"},
	{"remainingCapacity", "remaining-capacity"},
	{"soc", "soc"},
	{"soh", "soh-reported"},
	{"status", "status"},
	{"voltage", "voltage"},
	{"voltageAvg30s", "voltage-avg30s"},
	{"warning", "warning"},
}

var moduleCalculated = []string{"soh"}

func PackKey(index int) string {
	return fmt.Sprintf("battery-pack-%d", index)
}

func ModuleKey(pack, module int) string {
	return fmt.Sprintf("battery-%d-%d", pack, module)
}

// PackValues derives the snapshot entries of one pack. A nil pack yields the
// same keys with nil values.
func PackValues(key string, pack e3dc.RawData) map[string]any {
	res := map[string]any{}
	for _, f := range packFields {
		res[key+"-"+f.slug] = nil
		if pack != nil {
			res[key+"-"+f.slug] = NormalizeString(pack[f.field])
		}
	}
	for _, slug := range packCalculated {
		res[key+"-"+slug] = nil
	}
	if pack == nil {
		return res
	}
	count, ok := ModuleCount(pack)
	if ok {
		voltage := DesignVoltage(pack)
		res[key+"-design-energy"] = orNil(EnergyKWh(pack["designCapacity"], voltage, count))
		res[key+"-full-energy"] = orNil(EnergyKWh(pack["fcc"], voltage, count))
	}
	res[key+"-remaining-energy"] = orNil(RemainingEnergyKWh(pack["rc"], pack["moduleVoltage"]))
	res[key+"-usable-remaining-energy"] = orNil(RemainingEnergyKWh(pack["usuableRemainingCapacity"], pack["moduleVoltage"]))
	res[key+"-state-of-health"] = orNil(StateOfHealthPct(pack["designCapacity"], pack["fcc"]))
	return res
}

// ModuleValues derives the snapshot entries of one battery module.
func ModuleValues(key string, dcb e3dc.RawData) map[string]any {
	res := map[string]any{}
	for _, f := range moduleFields {
		res[key+"-"+f.slug] = nil
	}
	for _, slug := range moduleCalculated {
		res[key+"-"+slug] = nil
	}
	if dcb == nil {
		return res
	}
	for _, f := range moduleFields {
		v := NormalizeString(dcb[f.field])
		switch f.field {
		case "manufactureDate":
			if d, ok := ParseManufactureDate(v); ok {
				v = d
			} else {
				v = nil
			}
		case "soc":
			if v == nil {
				v = orNil(SocFromCapacity(dcb["remainingCapacity"], dcb["voltage"]))
			}
		}
		res[key+"-"+f.slug] = v
	}
	res[key+"-soh"] = orNil(StateOfHealthPct(dcb["designCapacity"], dcb["fullChargeCapacity"]))
	return res
}

// PackIndex indexes pack telemetry by the index field of each pack, or by
// position when absent.
func PackIndex(packs []e3dc.RawData) map[int]e3dc.RawData {
	res := make(map[int]e3dc.RawData, len(packs))
	for i, p := range packs {
		idx := i
		if n, ok := toInt(p["index"]); ok {
			idx = int(n)
		}
		res[idx] = p
	}
	return res
}

// BatteryValues derives the entries for every configured pack and module.
func BatteryValues(configs []e3dc.BatteryConfig, packs []e3dc.RawData) map[string]any {
	byIndex := PackIndex(packs)
	res := map[string]any{}
	for _, cfg := range configs {
		pack := byIndex[cfg.Index]
		for k, v := range PackValues(PackKey(cfg.Index), pack) {
			res[k] = v
		}
		for m := 0; m < cfg.DCBs; m++ {
			var dcb e3dc.RawData
			if pack != nil {
				dcb = Module(pack, m)
			}
			for k, v := range ModuleValues(ModuleKey(cfg.Index, m), dcb) {
				res[k] = v
			}
		}
	}
	return res
}

// IdentifyBatteries builds the pack and module identities from the
// configuration and a first telemetry read.
func IdentifyBatteries(configs []e3dc.BatteryConfig, packs []e3dc.RawData) ([]domain.BatteryPackIdentity, []domain.BatteryModuleIdentity) {
	byIndex := PackIndex(packs)
	var resPacks []domain.BatteryPackIdentity
	var resModules []domain.BatteryModuleIdentity
	sorted := append([]e3dc.BatteryConfig(nil), configs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for _, cfg := range sorted {
		pack := byIndex[cfg.Index]
		pi := domain.BatteryPackIdentity{
			Index:        cfg.Index,
			Key:          PackKey(cfg.Index),
			Name:         fmt.Sprintf("Battery Pack %d", cfg.Index+1),
			Manufacturer: "E3/DC",
		}
		if pack != nil {
			if name, ok := NormalizeString(pack["deviceName"]).(string); ok {
				pi.Model = name
			}
		}
		resPacks = append(resPacks, pi)
		for m := 0; m < cfg.DCBs; m++ {
			mi := domain.BatteryModuleIdentity{
				PackIndex:   cfg.Index,
				ModuleIndex: m,
				Key:         ModuleKey(cfg.Index, m),
				Name:        fmt.Sprintf("Battery Module %d-%d", cfg.Index+1, m+1),
			}
			if pack != nil {
				dcb := Module(pack, m)
				mi.Manufacturer = stringField(dcb, "manufactureName")
				mi.Model = stringField(dcb, "deviceName")
				mi.Serial = stringField(dcb, "serialNo")
				mi.Firmware = stringField(dcb, "fwVersion")
				mi.PcbVersion = stringField(dcb, "pcbVersion")
			}
			resModules = append(resModules, mi)
		}
	}
	return resPacks, resModules
}

// BatteryKeys lists every snapshot key owned by the given battery devices.
func BatteryKeys(packs []domain.BatteryPackIdentity, modules []domain.BatteryModuleIdentity) []string {
	var keys []string
	for _, p := range packs {
		for k := range PackValues(p.Key, nil) {
			keys = append(keys, k)
		}
	}
	for _, m := range modules {
		for k := range ModuleValues(m.Key, nil) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// PurgeBatteryKeys removes every battery pack and module entry from s and
// returns how many were removed.
func PurgeBatteryKeys(s domain.Snapshot) int {
	n := 0
	for k := range s {
		if batteryDeviceKeyRegexp.MatchString(k) {
			delete(s, k)
			n++
		}
	}
	return n
}

func stringField(data e3dc.RawData, field string) string {
	if data == nil {
		return ""
	}
	switch v := NormalizeString(data[field]).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
