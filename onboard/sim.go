package onboard

import (
	"encoding/binary"
	"sync"
	"time"
)

// simHardware stands in for the mbed, the GPIO pins and the I2C sensors so
// the daemon can run off the robot. Flippers integrate toward their drive,
// currents track the commanded speed.
type simHardware struct {
	lock      sync.Mutex
	speeds    [MAX_MOTORS]float64
	positions [MAX_MOTORS]float64
	lastRead  [MAX_MOTORS]time.Time
	addrID    map[int]uint8

	// CurrentDraw is amps drawn at full speed; tests crank it past the
	// supervisor limit to force faults.
	CurrentDraw float64
}

func newSimHardware() *simHardware {
	return &simHardware{
		addrID:      make(map[int]uint8),
		CurrentDraw: 5.0,
	}
}

func (s *simHardware) DriveMotor(id uint8, speed float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.speeds[id] = speed
	return nil
}

func (s *simHardware) ReadPosition(id uint8) (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := time.Now()
	if !s.lastRead[id].IsZero() {
		pos := s.positions[id] + s.speeds[id]*now.Sub(s.lastRead[id]).Seconds()
		if pos < 0 {
			pos = 0
		} else if pos > 1 {
			pos = 1
		}
		s.positions[id] = pos
	}
	s.lastRead[id] = now

	return s.positions[id], nil
}

func (s *simHardware) Get(i2cAddr int, reg uint8, buf []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if reg == ina_REG_CURRENT && len(buf) >= 2 {
		// saturate like the real register
		raw := s.speeds[s.addrID[i2cAddr]] * s.CurrentDraw / ina_CURRENT_LSB
		if raw > 32767 {
			raw = 32767
		} else if raw < -32768 {
			raw = -32768
		}
		binary.BigEndian.PutUint16(buf, uint16(int16(raw)))
	}
	return nil
}

func (s *simHardware) Put(i2cAddr int, reg uint8, buf []byte) error {
	return nil
}

// simPin is a GPIO line in memory. Fault inputs read whatever was last
// written, which is low unless a test raises them.
type simPin struct {
	lock sync.Mutex
	high bool
}

func (p *simPin) Write(high bool) error {
	p.lock.Lock()
	p.high = high
	p.lock.Unlock()
	return nil
}

func (p *simPin) Read() (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.high, nil
}

// NewSimulatedYozakura builds a robot against simulated hardware. Same
// channels, supervisor and loop as the real thing.
func NewSimulatedYozakura(config RobotConfig) (r *Yozakura, err error) {
	sim := newSimHardware()

	r = &Yozakura{
		Config:     config,
		Channels:   make(map[string]*ActuatorChannel, len(config.Motors)),
		MCU:        sim,
		supervisor: NewSupervisor(config.Supervisor.CurrentLimit, config.Supervisor.TripCycles),
	}

	for name, mConf := range config.Motors {
		sim.addrID[mConf.Sensor] = mConf.ID

		var motor *Motor
		motor, err = NewMotor(name, mConf.ID, new(simPin), new(simPin), new(simPin), mConf.StartInput, mConf.MaxSpeed)
		if err != nil {
			return nil, err
		}
		motor.EnableSerial(sim)

		var sensor *CurrentSensor
		sensor, err = NewCurrentSensor(sim, mConf.Sensor, name)
		if err != nil {
			return nil, err
		}

		r.Channels[name] = &ActuatorChannel{
			Name:      name,
			Motor:     motor,
			Sensor:    sensor,
			IsFlipper: mConf.Flipper,
		}
	}

	return r, nil
}
