package onboard

import (
	"encoding/binary"
	"time"
)

const (
	// INA226 registers
	ina_REG_CONFIG  = 0x00
	ina_REG_CURRENT = 0x04
	ina_REG_CALIB   = 0x05

	// 16 averages, 1.1ms conversion, shunt+bus continuous
	ina_CONFIG = 0x4527

	// 2 mOhm shunt with a calibration giving a 1 mA/bit current register
	ina_CALIB       = 0x0A00
	ina_CURRENT_LSB = 0.001
)

// SensorSample is one timestamped current reading. Immutable once captured;
// the control loop hands it off to telemetry and never touches it again.
type SensorSample struct {
	Channel string    `json:"channel"`
	Stamp   time.Time `json:"stamp"`
	Current float64   `json:"current"` // amps, signed
}

// CurrentSensor reads one INA226 monitor on the I2C bus.
type CurrentSensor struct {
	Name string
	bus  I2CBusInterface
	addr int
}

func NewCurrentSensor(bus I2CBusInterface, addr int, name string) (s *CurrentSensor, err error) {
	s = &CurrentSensor{
		Name: name,
		bus:  bus,
		addr: addr,
	}

	buf := make([]byte, 2)

	binary.BigEndian.PutUint16(buf, ina_CONFIG)
	if err = bus.Put(addr, ina_REG_CONFIG, buf); err != nil {
		return nil, err
	}

	binary.BigEndian.PutUint16(buf, ina_CALIB)
	if err = bus.Put(addr, ina_REG_CALIB, buf); err != nil {
		return nil, err
	}

	return s, nil
}

// Read captures one sample from the current register.
func (s *CurrentSensor) Read() (sample SensorSample, err error) {
	buf := make([]byte, 2)
	if err = s.bus.Get(s.addr, ina_REG_CURRENT, buf); err != nil {
		return
	}

	raw := int16(binary.BigEndian.Uint16(buf))

	sample = SensorSample{
		Channel: s.Name,
		Stamp:   time.Now(),
		Current: float64(raw) * ina_CURRENT_LSB,
	}
	return
}
