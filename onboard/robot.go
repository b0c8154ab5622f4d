package onboard

import (
	"fmt"
	"log"
	"sync"
	"time"

	derrors "github.com/KyotoMechatronics/goyozakura/onboard/errors"
)

// Robot is the device as seen from the comms layer.
type Robot interface {
	SetDrive(forward, turn float64)
	SetFlipper(name string, position float64) error
	ResetFault(name string) error
	Stop()
	Status() map[string]ChannelStatus
}

// CommandSet is the complete operator intent: drive sticks in [-1, 1] and
// flipper position targets in [0, 1].
type CommandSet struct {
	Forward, Turn             float64
	LeftFlipper, RightFlipper float64
}

// commandCache holds the latest received command so the control loop can
// read it without ever blocking on network I/O.
type commandCache struct {
	lock  sync.Mutex
	cmd   CommandSet
	stamp time.Time
	valid bool
}

func (cc *commandCache) update(f func(*CommandSet)) {
	cc.lock.Lock()
	defer cc.lock.Unlock()
	f(&cc.cmd)
	cc.stamp = time.Now()
	cc.valid = true
}

func (cc *commandCache) latest() (cmd CommandSet, stamp time.Time, ok bool) {
	cc.lock.Lock()
	defer cc.lock.Unlock()
	return cc.cmd, cc.stamp, cc.valid
}

// Yozakura aggregates the buses, channels and supervisor for one robot.
type Yozakura struct {
	Config   RobotConfig
	Channels map[string]*ActuatorChannel

	MCU        MCUInterface
	supervisor *Supervisor
	commands   commandCache

	i2c  *I2CBus
	mbed *UARTMbed
}

// NewYozakura opens the real hardware described by the config. The mbed
// being absent is tolerated; motors fall back to software PWM only if local
// pins are wired, otherwise driving reports NoDriversError.
func NewYozakura(config RobotConfig) (r *Yozakura, err error) {
	if config.Version != 1 {
		return nil, fmt.Errorf("unable to work with config version %d", config.Version)
	}

	r = &Yozakura{
		Config:     config,
		Channels:   make(map[string]*ActuatorChannel, len(config.Motors)),
		supervisor: NewSupervisor(config.Supervisor.CurrentLimit, config.Supervisor.TripCycles),
	}

	r.i2c, err = OpenI2C(config.I2CDevice)
	if err != nil {
		return nil, fmt.Errorf("unable to open i2c bus: %v", err)
	}

	r.mbed, err = NewUARTMbed(config.Mbed.Device, config.Mbed.Baud)
	if err != nil {
		log.Printf("the mbed is not connected: %v", err)
	} else {
		r.MCU = r.mbed
	}

	for name, mConf := range config.Motors {
		var channel *ActuatorChannel
		channel, err = r.buildChannel(name, mConf)
		if err != nil {
			return nil, err
		}
		r.Channels[name] = channel
	}

	return r, nil
}

func (r *Yozakura) buildChannel(name string, conf MotorConfig) (c *ActuatorChannel, err error) {
	fault1, err := OpenSysfsPin(conf.Fault1, false)
	if err != nil {
		return
	}
	fault2, err := OpenSysfsPin(conf.Fault2, false)
	if err != nil {
		return
	}
	reset, err := OpenSysfsPin(conf.Reset, true)
	if err != nil {
		return
	}

	motor, err := NewMotor(name, conf.ID, fault1, fault2, reset, conf.StartInput, conf.MaxSpeed)
	if err != nil {
		return
	}
	if r.MCU != nil {
		motor.EnableSerial(r.MCU)
	}
	if conf.PWM != 0 && conf.Dir != 0 {
		var pwm, dir GPIOPin
		pwm, err = OpenSysfsPin(conf.PWM, true)
		if err != nil {
			return
		}
		dir, err = OpenSysfsPin(conf.Dir, true)
		if err != nil {
			return
		}
		motor.EnablePWM(pwm, dir, m_PWM_FREQ)
	}

	sensor, err := NewCurrentSensor(r.i2c, conf.Sensor, name)
	if err != nil {
		return
	}

	return &ActuatorChannel{
		Name:      name,
		Motor:     motor,
		Sensor:    sensor,
		IsFlipper: conf.Flipper,
	}, nil
}

// SetDrive caches a drive command. Values are clamped downstream by the
// control loop.
func (r *Yozakura) SetDrive(forward, turn float64) {
	r.commands.update(func(cmd *CommandSet) {
		cmd.Forward = forward
		cmd.Turn = turn
	})
}

// SetFlipper caches a flipper position target.
func (r *Yozakura) SetFlipper(name string, position float64) error {
	c, ok := r.Channels[name]
	if !ok || !c.IsFlipper {
		return derrors.ChannelNameError{Name: name}
	}

	r.commands.update(func(cmd *CommandSet) {
		switch name {
		case "left_flipper":
			cmd.LeftFlipper = position
		case "right_flipper":
			cmd.RightFlipper = position
		}
	})
	return nil
}

// ResetFault is the explicit operator reset; the only way a fault clears.
func (r *Yozakura) ResetFault(name string) error {
	c, ok := r.Channels[name]
	if !ok {
		return derrors.ChannelNameError{Name: name}
	}

	r.supervisor.Forget(name)
	log.Printf("operator reset on channel %s", name)
	return c.Reset()
}

// Stop zeros the cached command, which the loop turns into zero outputs on
// its next cycle.
func (r *Yozakura) Stop() {
	r.commands.update(func(cmd *CommandSet) {
		*cmd = CommandSet{
			LeftFlipper:  cmd.LeftFlipper,
			RightFlipper: cmd.RightFlipper,
		}
	})
}

func (r *Yozakura) Status() map[string]ChannelStatus {
	status := make(map[string]ChannelStatus, len(r.Channels))
	for name, c := range r.Channels {
		status[name] = c.Status()
	}
	return status
}

// Shutdown stops all motors and closes the buses.
func (r *Yozakura) Shutdown() {
	log.Print("shutting down all motors")
	for _, c := range r.Channels {
		c.Motor.Shutdown()
	}

	if r.mbed != nil {
		r.mbed.Close()
	}
	if r.i2c != nil {
		r.i2c.Close()
	}
}
