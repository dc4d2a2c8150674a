package domain

// SystemIdentity describes the power station itself.
type SystemIdentity struct {
	Model           string
	Manufacturer    string
	SerialNumber    string
	MacAddress      string
	SoftwareVersion string
}

type WallboxIdentity struct {
	Index      int
	Key        string
	MacAddress string
	DeviceName string
	Firmware   string
	Serial     string
	MaxPhases  int
}

type BatteryPackIdentity struct {
	Index        int
	Key          string
	Name         string
	Manufacturer string
	Model        string
}

type BatteryModuleIdentity struct {
	PackIndex    int
	ModuleIndex  int
	Key          string
	Name         string
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
	PcbVersion   string
}

// Identities is the set of sub-devices discovered on connect.
type Identities struct {
	System         SystemIdentity
	Wallboxes      []WallboxIdentity
	BatteryPacks   []BatteryPackIdentity
	BatteryModules []BatteryModuleIdentity
	Powermeters    []string
}

func (i Identities) Copy() Identities {
	res := i
	res.Wallboxes = append([]WallboxIdentity(nil), i.Wallboxes...)
	res.BatteryPacks = append([]BatteryPackIdentity(nil), i.BatteryPacks...)
	res.BatteryModules = append([]BatteryModuleIdentity(nil), i.BatteryModules...)
	res.Powermeters = append([]string(nil), i.Powermeters...)
	return res
}
