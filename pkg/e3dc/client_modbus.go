package e3dc

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Simple mode register map, addresses are relative to holding register 40001.
const (
	regMagic           uint16 = 0
	regManufacturer    uint16 = 3
	regModel           uint16 = 19
	regSerial          uint16 = 35
	regFirmware        uint16 = 51
	regPowerBlock      uint16 = 67
	powerBlockSize     uint16 = 18
	regWallboxCtrl     uint16 = 87
	regPowermeters     uint16 = 104
	powermeterRegs     uint16 = 4
	maxModbusWallboxes        = 8
	maxModbusMeters           = 7

	magicValue uint16 = 0xE3DC
)

// wallbox control word bits
const (
	wbAvailable = 1 << iota
	wbSunMode
	wbChargingCanceled
	wbCharging
	wbType2Locked
	wbType2Plugged
	wbSchukoOn
	wbSchukoPlugged
	wbSchukoLocked
	wbSchukoRelay16A
	wbRelay16A
	wbRelay32A
	wbOnePhase
)

// ModbusClient talks to an E3DC power station through its Modbus TCP simple mode.
// Only a subset of queries is available over Modbus, the rest report ErrNotSupported.
type ModbusClient struct {
	modbusConn

	timeout   time.Duration
	unitId    uint8
	connected bool
	logger    *zap.Logger
	extra     *ModbusInstrument
}

func NewModbusClient(timeout time.Duration, unitId uint8, logger *zap.Logger, instrumentation *ModbusInstrument) *ModbusClient {
	return &ModbusClient{
		timeout: timeout,
		unitId:  unitId,
		logger:  logger,
		extra:   instrumentation,
	}
}

func (c *ModbusClient) Connect(cfg ConnectConfig) error {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		Timeout: c.timeout,
	})
	if err != nil {
		return errors.Join(ErrNotAvailable, err)
	}
	if err := client.Open(); err != nil {
		return errors.Join(ErrNotAvailable, err)
	}
	if c.unitId > 0 {
		if err := client.SetUnitId(c.unitId); err != nil {
			client.Close()
			return errors.Join(ErrNotAvailable, err)
		}
	}
	if err := client.SetEncoding(modbus.BIG_ENDIAN, modbus.LOW_WORD_FIRST); err != nil {
		client.Close()
		return errors.Join(ErrNotAvailable, err)
	}

	var inst []ModbusInstrument
	if logInst := debugLoggerInstrumentation(c.logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if c.extra != nil {
		inst = append(inst, *c.extra)
	}
	c.modbusConn = modbusConn{client: client, instrument: inst}

	magic, err := c.readRegister(regMagic)
	if err != nil {
		client.Close()
		return errors.Join(ErrNotAvailable, err)
	}
	if magic != magicValue {
		client.Close()
		return fmt.Errorf("%w: unexpected magic 0x%04X", ErrNotAvailable, magic)
	}
	c.connected = true
	return nil
}

func (c *ModbusClient) Disconnect() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.client.Close()
}

func (c *ModbusClient) IsConnected() bool {
	return c.connected
}

func (c *ModbusClient) SystemInfo() (*SystemInfo, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	manufacturer, err := c.readString(regManufacturer, 16)
	if err != nil {
		return nil, errors.Join(ErrSend, err)
	}
	model, err := c.readString(regModel, 16)
	if err != nil {
		return nil, errors.Join(ErrSend, err)
	}
	serial, err := c.readString(regSerial, 16)
	if err != nil {
		return nil, errors.Join(ErrSend, err)
	}
	return &SystemInfo{
		Manufacturer: manufacturer,
		Model:        model,
		SerialNumber: serial,
	}, nil
}

func (c *ModbusClient) SoftwareRelease() (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}
	fw, err := c.readString(regFirmware, 16)
	if err != nil {
		return "", errors.Join(ErrSend, err)
	}
	return fw, nil
}

func (c *ModbusClient) Poll() (*PollData, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	regs, err := c.readRegisters(regPowerBlock, powerBlockSize)
	if err != nil {
		return nil, errors.Join(ErrSend, err)
	}
	return decodePowerBlock(regs, time.Now()), nil
}

func decodePowerBlock(regs []uint16, now time.Time) *PollData {
	autarky, selfConsumption := splitBytes(regs[14])
	return &PollData{
		Autarky:         float64(autarky),
		SelfConsumption: float64(selfConsumption),
		StateOfCharge:   float64(regs[15]),
		Consumption: PollConsumption{
			Battery: float64(int32FromWords(regs[2], regs[3])),
			House:   float64(int32FromWords(regs[4], regs[5])),
			Wallbox: float64(int32FromWords(regs[10], regs[11])),
		},
		Production: PollProduction{
			Solar: float64(int32FromWords(regs[0], regs[1])),
			Grid:  float64(int32FromWords(regs[6], regs[7])),
			Add:   float64(-int32FromWords(regs[8], regs[9])),
		},
		Time: now,
	}
}

func (c *ModbusClient) Powermeters() ([]Powermeter, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	regs, err := c.readRegisters(regPowermeters, powermeterRegs*maxModbusMeters)
	if err != nil {
		return nil, errors.Join(ErrSend, err)
	}
	var meters []Powermeter
	for i := 0; i < maxModbusMeters; i++ {
		t := PowermeterType(regs[i*int(powermeterRegs)])
		if t == 0 {
			continue
		}
		meters = append(meters, Powermeter{Index: i, Type: t})
	}
	return meters, nil
}

func (c *ModbusClient) PowermetersData() ([]PowermeterData, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	regs, err := c.readRegisters(regPowermeters, powermeterRegs*maxModbusMeters)
	if err != nil {
		return nil, errors.Join(ErrSend, err)
	}
	return decodePowermeters(regs), nil
}

func decodePowermeters(regs []uint16) []PowermeterData {
	var data []PowermeterData
	for i := 0; i+int(powermeterRegs) <= len(regs); i += int(powermeterRegs) {
		t := PowermeterType(regs[i])
		if t == 0 {
			continue
		}
		data = append(data, PowermeterData{
			Index: i / int(powermeterRegs),
			Type:  t,
			Power: PhaseValues{
				L1: float64(int16(regs[i+1])),
				L2: float64(int16(regs[i+2])),
				L3: float64(int16(regs[i+3])),
			},
		})
	}
	return data
}

func (c *ModbusClient) wallboxControl(index int) (uint16, error) {
	if !c.connected {
		return 0, ErrNotConnected
	}
	if index < 0 || index >= maxModbusWallboxes {
		return 0, ErrNotSupported
	}
	reg, err := c.readRegister(regWallboxCtrl + uint16(index))
	if err != nil {
		return 0, errors.Join(ErrSend, err)
	}
	return reg, nil
}

func (c *ModbusClient) WallboxIdentification(index int) (RawData, error) {
	reg, err := c.wallboxControl(index)
	if err != nil {
		return nil, err
	}
	if reg&wbAvailable == 0 {
		return nil, nil
	}
	return RawData{
		"index":      index,
		"deviceName": fmt.Sprintf("Wallbox %d", index+1),
	}, nil
}

func (c *ModbusClient) WallboxData(index int) (RawData, error) {
	reg, err := c.wallboxControl(index)
	if err != nil {
		return nil, err
	}
	return decodeWallboxControl(index, reg), nil
}

func decodeWallboxControl(index int, reg uint16) RawData {
	phases := 3
	if reg&wbOnePhase != 0 {
		phases = 1
	}
	return RawData{
		"index":            index,
		"sunModeOn":        reg&wbSunMode != 0,
		"chargingCanceled": reg&wbChargingCanceled != 0,
		"chargingActive":   reg&wbCharging != 0,
		"locked":           reg&wbType2Locked != 0,
		"plugged":          reg&wbType2Plugged != 0,
		"schukoOn":         reg&wbSchukoOn != 0,
		"schukoPlugged":    reg&wbSchukoPlugged != 0,
		"schukoLocked":     reg&wbSchukoLocked != 0,
		"phases":           phases,
	}
}

func (c *ModbusClient) updateWallboxControl(index int, fn func(uint16) uint16) (bool, error) {
	reg, err := c.wallboxControl(index)
	if err != nil {
		return false, err
	}
	if reg&wbAvailable == 0 {
		return false, nil
	}
	if err := c.writeRegister(regWallboxCtrl+uint16(index), fn(reg)); err != nil {
		return false, errors.Join(ErrSend, err)
	}
	return true, nil
}

func setBit(reg uint16, bit uint16, on bool) uint16 {
	if on {
		return reg | bit
	}
	return reg &^ bit
}

func (c *ModbusClient) SetWallboxSunMode(index int, enabled bool) (bool, error) {
	return c.updateWallboxControl(index, func(r uint16) uint16 { return setBit(r, wbSunMode, enabled) })
}

func (c *ModbusClient) SetWallboxSchuko(index int, enabled bool) (bool, error) {
	return c.updateWallboxControl(index, func(r uint16) uint16 { return setBit(r, wbSchukoOn, enabled) })
}

func (c *ModbusClient) ToggleWallboxCharging(index int) (bool, error) {
	return c.updateWallboxControl(index, func(r uint16) uint16 { return r ^ wbChargingCanceled })
}

func (c *ModbusClient) ToggleWallboxPhases(index int) (bool, error) {
	return c.updateWallboxControl(index, func(r uint16) uint16 { return r ^ wbOnePhase })
}

func (c *ModbusClient) SetWallboxMaxChargeCurrent(index int, amps int32) (bool, error) {
	return false, ErrNotSupported
}

func (c *ModbusClient) PowerSettings() (*PowerSettings, error) {
	return nil, ErrNotSupported
}

func (c *ModbusClient) SetPowerLimits(enable bool, maxCharge, maxDischarge, dischargeStart *int32) (PowerLimitsResult, error) {
	return PowerLimitsFailed, ErrNotSupported
}

func (c *ModbusClient) SetPowerSave(enabled bool) error {
	return ErrNotSupported
}

func (c *ModbusClient) SetWeatherRegulatedCharge(enabled bool) error {
	return ErrNotSupported
}

func (c *ModbusClient) ManualCharge() (*ManualChargeState, error) {
	return nil, ErrNotSupported
}

func (c *ModbusClient) StartManualCharge(amountWh uint32) (bool, error) {
	return false, ErrNotSupported
}

func (c *ModbusClient) PowerMode() (*PowerModeState, error) {
	return nil, ErrNotSupported
}

func (c *ModbusClient) SetPowerMode(mode PowerMode, valueWatt int32) error {
	return ErrNotSupported
}

func (c *ModbusClient) DBData(startTimestamp int64, spanSeconds int64) (*DBData, error) {
	return nil, ErrNotSupported
}

func (c *ModbusClient) Batteries() ([]BatteryConfig, error) {
	return nil, ErrNotSupported
}

func (c *ModbusClient) BatteryData() ([]RawData, error) {
	return nil, ErrNotSupported
}

func (c *ModbusClient) TimeZone() (string, error) {
	return "", ErrNotSupported
}

func (c *ModbusClient) Time() (time.Time, error) {
	return time.Time{}, ErrNotSupported
}

func (c *ModbusClient) TimeUTC() (time.Time, error) {
	return time.Time{}, ErrNotSupported
}

// ensure interface compliance
var _ Client = (*ModbusClient)(nil)
