package entity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
)

const (
	PLATFORM_SENSOR               = "sensor"
	PLATFORM_BINARY_SENSOR        = "binary_sensor"
	PLATFORM_SWITCH               = "switch"
	PLATFORM_NUMBER               = "number"
	PLATFORM_BUTTON               = "button"
	PLATFORM_SELECT               = "select"
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	BUTTON_SUFFIX_TOGGLE_PHASES   = "toggle-phases"
	BUTTON_SUFFIX_TOGGLE_CHARGING = "toggle-charging"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL             = "total"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_BATTERY          = "battery"
	DEVICE_CLASS_CURRENT          = "current"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_ENERGY_STORAGE   = "energy_storage"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_POWER_FACTOR     = "power_factor"
	DEVICE_CLASS_TEMPERATURE      = "temperature"
	DEVICE_CLASS_VOLTAGE          = "voltage"
	DEVICE_CLASS_DURATION         = "duration"
	DEVICE_CLASS_TIMESTAMP        = "timestamp"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	DEVICE_CLASS_RUNNING          = "running"
	DEVICE_CLASS_PLUG             = "plug"
	DEVICE_CLASS_LOCK             = "lock"
	DEVICE_CLASS_BATTERY_CHARGING = "battery_charging"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	ENTITY_CLASS_CONFIG           = "config"
	INPUT_NUMBER_MODE_BOX         = "box"
	INPUT_NUMBER_MODE_SLIDER      = "slider"
	UNIT_WATT                     = "W"
	UNIT_WATT_HOUR                = "Wh"
	UNIT_KILO_WATT_HOUR           = "kWh"
	UNIT_PERCENT                  = "%"
	UNIT_AMPERE                   = "A"
	UNIT_AMPERE_HOUR              = "Ah"
	UNIT_VOLT                     = "V"
	UNIT_CELSIUS                  = "°C"
	UNIT_SECONDS                  = "s"
	MQTT_PAYLOAD_PRESS            = "PRESS"
	WALLBOX_KEY_PREFIX            = "wallbox-"
	BATTERY_KEY_PREFIX            = "battery-"
	BATTERY_PACK_KEY_PREFIX       = "battery-pack-"
)

// Description is how a snapshot key is exposed as an entity.
type Description struct {
	Platform    string
	Name        string
	Unit        string
	DeviceClass string
	StateClass  string
	Category    string
	Icon        string
	Disabled    bool
}

func power(name, icon string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_WATT, DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT, Icon: icon}
}

func energy(name, icon string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_WATT_HOUR, DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING, Icon: icon}
}

func percent(name, icon string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_PERCENT, DeviceClass: DEVICE_CLASS_POWER_FACTOR, StateClass: STATE_CLASS_MEASUREMENT, Icon: icon}
}

func diagnostic(d Description) Description {
	d.Category = ENTITY_CLASS_DIAGNOSTIC
	return d
}

func disabled(d Description) Description {
	d.Disabled = true
	return d
}

func plain(name, icon string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Icon: icon}
}

func binary(name, deviceClass, icon string) Description {
	return Description{Platform: PLATFORM_BINARY_SENSOR, Name: name, DeviceClass: deviceClass, Icon: icon}
}

var systemDescriptions = map[string]Description{
	domain.KEY_SYSTEM_DERATE_PERCENT:            diagnostic(percent("Derate percent", "mdi:transmission-tower-off")),
	domain.KEY_SYSTEM_DERATE_POWER:              disabled(diagnostic(power("Derate power", "mdi:transmission-tower-off"))),
	domain.KEY_SYSTEM_ADDITIONAL_SOURCE:         diagnostic(binary("Additional source available", DEVICE_CLASS_CONNECTIVITY, "mdi:power-plug-outline")),
	domain.KEY_SYSTEM_BATTERY_INSTALLED_CAP:     diagnostic(Description{Platform: PLATFORM_SENSOR, Name: "Installed battery capacity", Unit: UNIT_WATT_HOUR, DeviceClass: DEVICE_CLASS_ENERGY_STORAGE, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:battery-high"}),
	domain.KEY_SYSTEM_BATTERY_INSTALLED_PEAK:    diagnostic(power("Installed peak power", "mdi:solar-power-variant")),
	domain.KEY_SYSTEM_AC_MAXPOWER:               disabled(diagnostic(power("Max AC power", "mdi:solar-power-variant"))),
	domain.KEY_SYSTEM_BATTERY_CHARGE_MAX:        diagnostic(power("Max battery charge", "mdi:battery-arrow-up-outline")),
	domain.KEY_SYSTEM_BATTERY_DISCHARGE_MAX:     diagnostic(power("Max battery discharge", "mdi:battery-arrow-down-outline")),
	domain.KEY_SYSTEM_MAC:                       disabled(diagnostic(plain("MAC address", "mdi:ethernet"))),
	domain.KEY_MODEL:                            disabled(diagnostic(plain("Model", "mdi:information-outline"))),
	domain.KEY_SYSTEM_DISCHARGE_MINIMUM_DEFAULT: disabled(diagnostic(power("Default discharge minimum", "mdi:battery-arrow-down-outline"))),
	domain.KEY_SYSTEM_SOFTWARE_VERSION:          disabled(diagnostic(plain("Software version", "mdi:information-outline"))),
	domain.KEY_TIMEZONE:                         disabled(diagnostic(plain("Timezone", "mdi:map-clock"))),

	domain.KEY_ADDITIONAL_PRODUCTION: disabled(power("Additional production", "mdi:power-plug")),
	domain.KEY_AUTARKY:               percent("Autarky", "mdi:home-percent-outline"),
	domain.KEY_BATTERY_CHARGE:        power("Battery charge", "mdi:battery-charging-outline"),
	domain.KEY_BATTERY_DISCHARGE:     power("Battery discharge", "mdi:battery-arrow-down-outline"),
	domain.KEY_BATTERY_NETCHANGE:     disabled(power("Battery net change", "mdi:battery-charging")),
	domain.KEY_GRID_CONSUMPTION:      power("Grid consumption", "mdi:transmission-tower-export"),
	domain.KEY_GRID_NETCHANGE:        disabled(power("Grid net change", "mdi:transmission-tower")),
	domain.KEY_GRID_PRODUCTION:       power("Grid production", "mdi:transmission-tower-import"),
	domain.KEY_HOUSE_CONSUMPTION:     power("House consumption", "mdi:home-import-outline"),
	domain.KEY_SELFCONSUMPTION:       percent("Self consumption", "mdi:cloud-percent-outline"),
	domain.KEY_SOC:                   {Platform: PLATFORM_SENSOR, Name: "State of charge", Unit: UNIT_PERCENT, DeviceClass: DEVICE_CLASS_BATTERY, StateClass: STATE_CLASS_MEASUREMENT},
	domain.KEY_SOLAR_PRODUCTION:      power("Solar production", "mdi:solar-power"),
	domain.KEY_WALLBOX_CONSUMPTION:   power("Wallbox consumption", "mdi:ev-station"),

	domain.KEY_PSET_LIMIT_CHARGE:             power("Charge limit", "mdi:battery-arrow-up-outline"),
	domain.KEY_PSET_LIMIT_DISCHARGE:          power("Discharge limit", "mdi:battery-arrow-down-outline"),
	domain.KEY_PSET_LIMIT_DISCHARGE_MINIMUM:  disabled(diagnostic(power("Discharge minimum", "mdi:battery-arrow-down-outline"))),
	domain.KEY_PSET_LIMIT_ENABLED:            diagnostic(binary("Power limits enabled", DEVICE_CLASS_RUNNING, "mdi:signal")),
	domain.KEY_PSET_POWERSAVING_ENABLED:      {Platform: PLATFORM_SWITCH, Name: "Powersave", Category: ENTITY_CLASS_CONFIG, Icon: "mdi:leaf"},
	domain.KEY_PSET_WEATHERREGULATED_ENABLED: {Platform: PLATFORM_SWITCH, Name: "Weather regulated charge", Category: ENTITY_CLASS_CONFIG, Icon: "mdi:weather-sunny"},

	domain.KEY_MANUAL_CHARGE_ACTIVE: binary("Manual charge active", DEVICE_CLASS_RUNNING, "mdi:transmission-tower"),
	domain.KEY_MANUAL_CHARGE_ENERGY: {Platform: PLATFORM_SENSOR, Name: "Manual charge energy", Unit: UNIT_KILO_WATT_HOUR, DeviceClass: DEVICE_CLASS_ENERGY, StateClass: STATE_CLASS_TOTAL_INCREASING, Icon: "mdi:transmission-tower"},

	domain.KEY_DB_DAY_AUTARKY:           percent("Autarky today", "mdi:cloud-percent-outline"),
	domain.KEY_DB_DAY_BATTERY_CHARGE:    energy("Battery charge today", "mdi:battery-charging-outline"),
	domain.KEY_DB_DAY_BATTERY_DISCHARGE: energy("Battery discharge today", "mdi:battery-arrow-down-outline"),
	domain.KEY_DB_DAY_GRID_CONSUMPTION:  energy("Grid consumption today", "mdi:transmission-tower-export"),
	domain.KEY_DB_DAY_GRID_PRODUCTION:   energy("Grid production today", "mdi:transmission-tower-import"),
	domain.KEY_DB_DAY_HOUSE_CONSUMPTION: energy("House consumption today", "mdi:home-import-outline"),
	domain.KEY_DB_DAY_SELFCONSUMPTION:   percent("Self consumption today", "mdi:cloud-percent-outline"),
	domain.KEY_DB_DAY_SOLAR_PRODUCTION:  energy("Solar production today", "mdi:solar-power"),
	domain.KEY_DB_DAY_STARTTS:           disabled(diagnostic(plain("Day statistics start", "mdi:clock-start"))),

	domain.KEY_POWER_MODE:     plain("Power mode", "mdi:battery-unknown"),
	domain.KEY_SET_POWER_MODE: {Platform: PLATFORM_SELECT, Name: "Set power mode", Icon: "mdi:flash"},
	domain.KEY_SET_POWER_VAL:  {Platform: PLATFORM_NUMBER, Name: "Set power value", Unit: UNIT_WATT, Icon: "mdi:meter-electric"},
}

var wallboxDescriptions = map[string]Description{
	"app-software":        disabled(diagnostic(plain("App software", "mdi:information-outline"))),
	"consumption-net":     power("Grid consumption", "mdi:transmission-tower-import"),
	"consumption-sun":     power("Solar consumption", "mdi:solar-power"),
	"energy-all":          energy("Energy total", "mdi:counter"),
	"energy-net":          energy("Energy from grid", "mdi:counter"),
	"energy-sun":          energy("Energy from solar", "mdi:counter"),
	"index":               disabled(diagnostic(plain("Index", "mdi:numeric"))),
	"key-state":           disabled(diagnostic(plain("Key state", "mdi:key"))),
	"max-charge-current":  {Platform: PLATFORM_NUMBER, Name: "Max charge current", Unit: UNIT_AMPERE, DeviceClass: DEVICE_CLASS_CURRENT, Category: ENTITY_CLASS_CONFIG, Icon: "mdi:current-ac"},
	"lower-current-limit": disabled(diagnostic(Description{Platform: PLATFORM_SENSOR, Name: "Lower current limit", Unit: UNIT_AMPERE, DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:current-ac"})),
	"upper-current-limit": disabled(diagnostic(Description{Platform: PLATFORM_SENSOR, Name: "Upper current limit", Unit: UNIT_AMPERE, DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:current-ac"})),
	"phases":              plain("Phases", "mdi:sine-wave"),
	"soc":                 disabled(Description{Platform: PLATFORM_SENSOR, Name: "Vehicle state of charge", Unit: UNIT_PERCENT, DeviceClass: DEVICE_CLASS_BATTERY, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:battery-charging"}),
	"plug":                binary("Plugged", DEVICE_CLASS_PLUG, "mdi:power-plug"),
	"plug-locked":         binary("Plug locked", DEVICE_CLASS_LOCK, "mdi:lock"),
	"lock":                binary("Locked", DEVICE_CLASS_LOCK, "mdi:lock"),
	"charging":            binary("Charging", DEVICE_CLASS_BATTERY_CHARGING, "mdi:car-electric"),
	"charging-canceled":   binary("Charging canceled", "", "mdi:cancel"),
	"sun-mode":            {Platform: PLATFORM_SWITCH, Name: "Sun mode", Category: ENTITY_CLASS_CONFIG, Icon: "mdi:weather-sunny"},
	"schuko":              {Platform: PLATFORM_SWITCH, Name: "Schuko", Category: ENTITY_CLASS_CONFIG, Icon: "mdi:power-plug"},
}

func ampHours(name string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_AMPERE_HOUR, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:battery"}
}

func volts(name string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_VOLT, DeviceClass: DEVICE_CLASS_VOLTAGE, StateClass: STATE_CLASS_MEASUREMENT}
}

func amps(name string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_AMPERE, DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT}
}

func celsius(name string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_CELSIUS, DeviceClass: DEVICE_CLASS_TEMPERATURE, StateClass: STATE_CLASS_MEASUREMENT}
}

func kwh(name string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_KILO_WATT_HOUR, DeviceClass: DEVICE_CLASS_ENERGY_STORAGE, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:battery"}
}

func soh(name string) Description {
	return Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_PERCENT, StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:battery-heart-variant"}
}

func seconds(name string) Description {
	return diagnostic(Description{Platform: PLATFORM_SENSOR, Name: name, Unit: UNIT_SECONDS, DeviceClass: DEVICE_CLASS_DURATION, StateClass: STATE_CLASS_TOTAL_INCREASING})
}

// battery slugs shared by packs and modules
var batteryDescriptions = map[string]Description{
	"asoc":                      soh("Absolute state of charge"),
	"charge-cycles":             diagnostic(plain("Charge cycles", "mdi:battery-sync")),
	"cycle-count":               diagnostic(plain("Cycle count", "mdi:battery-sync")),
	"current":                   amps("Current"),
	"current-avg30s":            disabled(amps("Current (30s average)")),
	"design-capacity":           diagnostic(ampHours("Design capacity")),
	"design-voltage":            disabled(diagnostic(volts("Design voltage"))),
	"device-name":               disabled(diagnostic(plain("Device name", "mdi:information-outline"))),
	"end-of-discharge":          disabled(diagnostic(volts("End of discharge voltage"))),
	"eod-voltage":               disabled(diagnostic(volts("End of discharge voltage"))),
	"full-charge-capacity":      diagnostic(ampHours("Full charge capacity")),
	"manufacture-date":          disabled(diagnostic(plain("Manufacture date", "mdi:calendar"))),
	"max-charge-current":        disabled(diagnostic(amps("Max charge current"))),
	"max-charge-temperature":    disabled(diagnostic(celsius("Max charge temperature"))),
	"max-charge-voltage":        disabled(diagnostic(volts("Max charge voltage"))),
	"max-discharge-current":     disabled(diagnostic(amps("Max discharge current"))),
	"min-charge-temperature":    disabled(diagnostic(celsius("Min charge temperature"))),
	"module-voltage":            volts("Module voltage"),
	"power":                     power("Power", "mdi:flash"),
	"remaining-capacity":        ampHours("Remaining capacity"),
	"rsoc":                      {Platform: PLATFORM_SENSOR, Name: "Relative state of charge", Unit: UNIT_PERCENT, DeviceClass: DEVICE_CLASS_BATTERY, StateClass: STATE_CLASS_MEASUREMENT},
	"rsoc-real":                 disabled(Description{Platform: PLATFORM_SENSOR, Name: "Real relative state of charge", Unit: UNIT_PERCENT, DeviceClass: DEVICE_CLASS_BATTERY, StateClass: STATE_CLASS_MEASUREMENT}),
	"soc":                       {Platform: PLATFORM_SENSOR, Name: "State of charge", Unit: UNIT_PERCENT, DeviceClass: DEVICE_CLASS_BATTERY, StateClass: STATE_CLASS_MEASUREMENT},
	"soh":                       soh("State of health"),
	"soh-reported":              disabled(soh("Reported state of health")),
	"state-of-health":           soh("State of health"),
	"status":                    disabled(diagnostic(plain("Status", "mdi:information-outline"))),
	"terminal-voltage":          volts("Terminal voltage"),
	"total-discharge-time":      disabled(seconds("Total discharge time")),
	"total-use-time":            disabled(seconds("Total use time")),
	"usable-capacity":           diagnostic(ampHours("Usable capacity")),
	"usable-remaining-capacity": ampHours("Usable remaining capacity"),
	"voltage":                   volts("Voltage"),
	"voltage-avg30s":            disabled(volts("Voltage (30s average)")),
	"warning":                   disabled(diagnostic(plain("Warning", "mdi:alert"))),
	"design-energy":             diagnostic(kwh("Design energy")),
	"full-energy":               kwh("Full energy"),
	"remaining-energy":          kwh("Remaining energy"),
	"usable-remaining-energy":   kwh("Usable remaining energy"),
}

// Catalog resolves snapshot keys to entity descriptions for one set of
// identities.
type Catalog struct {
	wallboxes   []domain.WallboxIdentity
	packs       []domain.BatteryPackIdentity
	modules     []domain.BatteryModuleIdentity
	powermeters []string
}

func NewCatalog(ids domain.Identities) Catalog {
	return Catalog{
		wallboxes:   ids.Wallboxes,
		packs:       ids.BatteryPacks,
		modules:     ids.BatteryModules,
		powermeters: ids.Powermeters,
	}
}

// Describe returns the description of a snapshot key. Unknown keys are
// plain sensors named after the key.
func (c Catalog) Describe(key string) Description {
	if d, ok := systemDescriptions[key]; ok {
		return d
	}
	for _, meter := range c.powermeters {
		switch key {
		case meter:
			return power(titleCase(meter), "mdi:meter-electric")
		case meter + "-total":
			d := energy(titleCase(meter)+" total", "mdi:meter-electric")
			d.StateClass = STATE_CLASS_TOTAL
			return d
		}
	}
	if _, field, ok := c.Wallbox(key); ok {
		if d, ok := wallboxDescriptions[field]; ok {
			return d
		}
		return plain(titleCase(field), "")
	}
	if slug, ok := c.batterySlug(key); ok {
		if d, ok := batteryDescriptions[slug]; ok {
			return d
		}
		return disabled(diagnostic(plain(titleCase(slug), "")))
	}
	return plain(titleCase(key), "")
}

// Platform is the entity platform serving key.
func (c Catalog) Platform(key string) string {
	return c.Describe(key).Platform
}

// Wallbox resolves a wallbox field key to its wallbox and field slug.
func (c Catalog) Wallbox(key string) (*domain.WallboxIdentity, string, bool) {
	if !strings.HasPrefix(key, WALLBOX_KEY_PREFIX) {
		return nil, "", false
	}
	for i := range c.wallboxes {
		prefix := c.wallboxes[i].Key + "-"
		if strings.HasPrefix(key, prefix) {
			return &c.wallboxes[i], strings.TrimPrefix(key, prefix), true
		}
	}
	return nil, "", false
}

func (c Catalog) WallboxByKey(wallboxKey string) (*domain.WallboxIdentity, bool) {
	for i := range c.wallboxes {
		if c.wallboxes[i].Key == wallboxKey {
			return &c.wallboxes[i], true
		}
	}
	return nil, false
}

// batterySlug strips the pack or module prefix from a battery key.
func (c Catalog) batterySlug(key string) (string, bool) {
	if !strings.HasPrefix(key, BATTERY_KEY_PREFIX) {
		return "", false
	}
	for _, p := range c.packs {
		if strings.HasPrefix(key, p.Key+"-") {
			return strings.TrimPrefix(key, p.Key+"-"), true
		}
	}
	for _, m := range c.modules {
		if strings.HasPrefix(key, m.Key+"-") {
			return strings.TrimPrefix(key, m.Key+"-"), true
		}
	}
	return "", false
}

func titleCase(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return key
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
