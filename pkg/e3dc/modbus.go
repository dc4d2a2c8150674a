package e3dc

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type modbusConn struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (c modbusConn) readString(address uint16, size uint16) (string, error) {
	bytes, err := c.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	if f := slices.Index(bytes, 0x00); f >= 0 {
		bytes = bytes[:f]
	}
	return strings.TrimSpace(string(bytes)), nil
}

func (c modbusConn) readRegister(addr uint16) (uint16, error) {
	defer RecordTimer("ReadRegister", c.instrument)()
	return c.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (c modbusConn) readRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", c.instrument)()
	return c.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (c modbusConn) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", c.instrument)()
	return c.client.ReadRawBytes(addr, quantity, regType)
}

func (c modbusConn) writeRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", c.instrument)()
	return c.client.WriteRegister(addr, value)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func debugLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if logger == nil {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug(fmt.Sprintf("modbus [%s]: %d millis", fnName, readTime.Milliseconds()))
		},
	}
}

// int32FromWords decodes a signed 32 bit value stored low word first.
func int32FromWords(lo, hi uint16) int32 {
	return int32(uint32(hi)<<16 | uint32(lo))
}

// splitBytes returns the high and low byte of a register.
func splitBytes(reg uint16) (uint8, uint8) {
	return uint8(reg >> 8), uint8(reg & 0xff)
}
