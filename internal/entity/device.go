package entity

import (
	"fmt"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/carlmjohnson/versioninfo"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("e3dc_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "e3dc2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("E3DC bridge %s", md5HashShort(baseTopic)),
	}
}

func SystemDevice(system domain.SystemIdentity) domain.Device {
	serial := system.SerialNumber
	if serial == "" {
		serial = system.MacAddress
	}
	manufacturer := system.Manufacturer
	if manufacturer == "" {
		manufacturer = "E3/DC"
	}
	return domain.Device{
		Id:           fmt.Sprintf("e3dc_%s", md5HashShort(serial)),
		Version:      system.SoftwareVersion,
		Manufacturer: manufacturer,
		Model:        system.Model,
		Name:         fmt.Sprintf("%s %s", manufacturer, system.Model),
		SerialNumber: system.SerialNumber,
	}
}

func WallboxDevice(system domain.Device, wallbox domain.WallboxIdentity) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("%s_%s", system.Id, wallbox.Key),
		Version:      wallbox.Firmware,
		Manufacturer: system.Manufacturer,
		Model:        "Wallbox",
		Name:         wallbox.DeviceName,
		ViaDevice:    system.Id,
		SerialNumber: wallbox.Serial,
	}
}

func BatteryPackDevice(system domain.Device, pack domain.BatteryPackIdentity) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("%s_%s", system.Id, pack.Key),
		Manufacturer: orDefault(pack.Manufacturer, system.Manufacturer),
		Model:        orDefault(pack.Model, "Battery pack"),
		Name:         pack.Name,
		ViaDevice:    system.Id,
	}
}

func BatteryModuleDevice(pack domain.Device, module domain.BatteryModuleIdentity) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("%s_%d", pack.Id, module.ModuleIndex),
		Version:      module.Firmware,
		Manufacturer: orDefault(module.Manufacturer, pack.Manufacturer),
		Model:        orDefault(module.Model, "Battery module"),
		Name:         module.Name,
		ViaDevice:    pack.Id,
		SerialNumber: module.Serial,
	}
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
