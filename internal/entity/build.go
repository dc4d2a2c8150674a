package entity

import (
	"strings"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

const defaultPowerValueMax = 20000

// Entities is everything exposed for one device state.
type Entities struct {
	Sensors      []domain.GenericSensor
	Switches     []domain.GenericSwitch
	InputNumbers []domain.GenericInputNumber
	Buttons      []domain.GenericButton
	Selects      []domain.GenericSelect
}

func (e Entities) DiscoveryRequest() domain.PublishDiscoveryRequest {
	return domain.PublishDiscoveryRequest{
		Sensors:      e.Sensors,
		Switches:     e.Switches,
		InputNumbers: e.InputNumbers,
		Buttons:      e.Buttons,
		Selects:      e.Selects,
	}
}

// PowerModeOptions are the options of the power mode select.
func PowerModeOptions() []string {
	modes := []e3dc.PowerMode{e3dc.PowerModeNormal, e3dc.PowerModeIdle, e3dc.PowerModeDischarge, e3dc.PowerModeCharge, e3dc.PowerModeChargeGrid}
	res := make([]string, 0, len(modes))
	for _, m := range modes {
		res = append(res, m.String())
	}
	return res
}

type builder struct {
	catalog  Catalog
	ids      domain.Identities
	snapshot domain.Snapshot
	system   domain.Device
	packs    map[string]domain.Device
	modules  map[string]domain.Device
}

// Build derives the entities of every snapshot key plus the bridge state
// sensor and the wallbox buttons.
func Build(bridge domain.Device, ids domain.Identities, snapshot domain.Snapshot) Entities {
	b := builder{
		catalog:  NewCatalog(ids),
		ids:      ids,
		snapshot: snapshot,
		system:   SystemDevice(ids.System),
		packs:    map[string]domain.Device{},
		modules:  map[string]domain.Device{},
	}
	packsByIndex := map[int]domain.Device{}
	for _, p := range ids.BatteryPacks {
		dev := BatteryPackDevice(b.system, p)
		b.packs[p.Key] = dev
		packsByIndex[p.Index] = dev
	}
	for _, m := range ids.BatteryModules {
		pack, ok := packsByIndex[m.PackIndex]
		if !ok {
			pack = b.system
		}
		b.modules[m.Key] = BatteryModuleDevice(pack, m)
	}

	var res Entities
	res.Sensors = append(res.Sensors, BridgeSensors(bridge)...)
	for _, key := range snapshot.Keys() {
		dev := b.device(key)
		desc := b.catalog.Describe(key)
		switch desc.Platform {
		case PLATFORM_SWITCH:
			res.Switches = append(res.Switches, domain.GenericSwitch{
				Device:         dev,
				Id:             key,
				Name:           desc.Name,
				UniqueId:       uniqueId(dev.Id, key),
				Icon:           desc.Icon,
				EntityCategory: desc.Category,
			})
		case PLATFORM_NUMBER:
			res.InputNumbers = append(res.InputNumbers, b.inputNumber(dev, key, desc))
		case PLATFORM_SELECT:
			res.Selects = append(res.Selects, domain.GenericSelect{
				Device:   dev,
				Id:       key,
				Name:     desc.Name,
				UniqueId: uniqueId(dev.Id, key),
				Icon:     desc.Icon,
				Options:  PowerModeOptions(),
			})
		default:
			sensor := domain.GenericSensor{
				Device:            dev,
				Id:                key,
				SensorType:        desc.Platform,
				Name:              desc.Name,
				UniqueId:          uniqueId(dev.Id, key),
				UnitOfMeasurement: desc.Unit,
				StateClass:        desc.StateClass,
				DeviceClass:       desc.DeviceClass,
				EntityCategory:    desc.Category,
				Icon:              desc.Icon,
			}
			if desc.Disabled {
				sensor.EnabledByDefault = optionalBool(false)
			}
			res.Sensors = append(res.Sensors, sensor)
		}
	}
	for _, wb := range ids.Wallboxes {
		res.Buttons = append(res.Buttons, WallboxButtons(WallboxDevice(b.system, wb), wb)...)
	}
	return res
}

func (b builder) device(key string) domain.Device {
	if wb, _, ok := b.catalog.Wallbox(key); ok {
		return WallboxDevice(b.system, *wb)
	}
	if strings.HasPrefix(key, BATTERY_KEY_PREFIX) {
		for k, dev := range b.packs {
			if strings.HasPrefix(key, k+"-") {
				return dev
			}
		}
		for k, dev := range b.modules {
			if strings.HasPrefix(key, k+"-") {
				return dev
			}
		}
	}
	return b.system
}

func (b builder) inputNumber(dev domain.Device, key string, desc Description) domain.GenericInputNumber {
	number := domain.GenericInputNumber{
		Device:            dev,
		Id:                key,
		Name:              desc.Name,
		UniqueId:          uniqueId(dev.Id, key),
		Icon:              desc.Icon,
		Step:              1,
		Mode:              INPUT_NUMBER_MODE_BOX,
		UnitOfMeasurement: desc.Unit,
	}
	if wb, _, ok := b.catalog.Wallbox(key); ok {
		number.Min = 0
		number.Max = service.MaxWallboxCurrent
		if v, ok := b.snapshot.Float(service.WallboxFieldKey(wb.Key, "lowerCurrentLimit")); ok {
			number.Min = v
		}
		if v, ok := b.snapshot.Float(service.WallboxFieldKey(wb.Key, "upperCurrentLimit")); ok && v < number.Max {
			number.Max = v
		}
		number.Mode = INPUT_NUMBER_MODE_SLIDER
	} else {
		number.Max = defaultPowerValueMax
		if v, ok := b.snapshot.Float(domain.KEY_SYSTEM_BATTERY_CHARGE_MAX); ok && v > 0 {
			number.Max = v
		}
		if v, ok := b.snapshot.Float(domain.KEY_SYSTEM_BATTERY_DISCHARGE_MAX); ok && v > number.Max {
			number.Max = v
		}
	}
	if v, ok := b.snapshot.Float(key); ok {
		number.InitialValue = v
	}
	return number
}

func BridgeSensors(bridgeDevice domain.Device) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	sensors = append(sensors, domain.GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     PLATFORM_BINARY_SENSOR,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func WallboxButtons(wallboxDevice domain.Device, wallbox domain.WallboxIdentity) []domain.GenericButton {

	var buttons []domain.GenericButton

	phases := wallbox.Key + "-" + BUTTON_SUFFIX_TOGGLE_PHASES
	buttons = append(buttons, domain.GenericButton{
		Device:   wallboxDevice,
		Id:       phases,
		Name:     "Toggle phases",
		UniqueId: uniqueId(wallboxDevice.Id, phases),
		Icon:     "mdi:sine-wave",
	})
	charging := wallbox.Key + "-" + BUTTON_SUFFIX_TOGGLE_CHARGING
	buttons = append(buttons, domain.GenericButton{
		Device:   wallboxDevice,
		Id:       charging,
		Name:     "Toggle charging",
		UniqueId: uniqueId(wallboxDevice.Id, charging),
		Icon:     "mdi:car-electric",
	})

	return buttons
}
