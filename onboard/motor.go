package onboard

import (
	"log"
	"sync/atomic"
	"time"

	derrors "github.com/KyotoMechatronics/goyozakura/onboard/errors"
)

const (
	// The mbed packet encodes the motor ID in two bits, so four slots is a
	// hard limit of the wire format.
	MAX_MOTORS = 4

	m_RESET_PULSE = 100 * time.Millisecond
	m_PWM_FREQ    = 28000
)

type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultUndervolt
	FaultOvertemp
	FaultShort // driver latches until a reset pulse
)

func (f FaultKind) String() string {
	switch f {
	case FaultUndervolt:
		return "undervolt"
	case FaultOvertemp:
		return "overtemp"
	case FaultShort:
		return "short_circuit"
	default:
		return "none"
	}
}

// Motor wraps one Pololu 18v15 driver channel. Speed commands prefer the
// mbed (hardware PWM); software PWM on local pins is the fallback when the
// mbed is not connected.
type Motor struct {
	Name string
	ID   uint8

	faultA, faultB GPIOPin // FF1, FF2
	reset          GPIOPin

	// StartInput is the input below which the motor does not respond; the
	// output is rescaled between it and 1. MaxSpeed caps the scaled output.
	StartInput, MaxSpeed float64

	mcu       MCUInterface
	hasSerial bool

	pwm    *SoftPWM
	dir    GPIOPin
	hasPWM bool
}

func NewMotor(name string, id uint8, faultA, faultB, reset GPIOPin, startInput, maxSpeed float64) (m *Motor, err error) {
	if id >= MAX_MOTORS {
		return nil, derrors.TooManyMotorsError{Limit: MAX_MOTORS}
	}
	if startInput < 0 || startInput > 1 {
		return nil, derrors.InvalidArgError{Msg: "start_input should be between 0 and 1"}
	}
	if maxSpeed < 0 || maxSpeed > 1 {
		return nil, derrors.InvalidArgError{Msg: "max_speed should be between 0 and 1"}
	}

	m = &Motor{
		Name:       name,
		ID:         id,
		faultA:     faultA,
		faultB:     faultB,
		reset:      reset,
		StartInput: startInput,
		MaxSpeed:   maxSpeed,
	}

	// Drivers latched from a previous run stay latched until reset.
	if err = m.ResetDriver(); err != nil {
		return nil, err
	}

	return m, nil
}

// EnableSerial routes speed commands through the mbed. Takes priority over
// software PWM when both are enabled.
func (m *Motor) EnableSerial(mcu MCUInterface) {
	m.mcu = mcu
	m.hasSerial = true
}

// EnablePWM drives the motor directly from local pins with software PWM.
func (m *Motor) EnablePWM(pwm, dir GPIOPin, frequency float64) {
	m.dir = dir
	m.pwm = NewSoftPWM(pwm, frequency)
	m.pwm.Start()
	m.hasPWM = true
}

// scaleSpeed maps [StartInput:1] onto [0:1] and caps at MaxSpeed, keeping
// sign. Motors that do not turn below 20% input still respond smoothly near
// zero this way.
func (m *Motor) scaleSpeed(speed float64) float64 {
	if speed > 0 {
		speed = speed*(1-m.StartInput) + m.StartInput
	} else if speed < 0 {
		speed = speed*(1-m.StartInput) - m.StartInput
	}

	return speed * m.MaxSpeed
}

// Drive runs the motor at a speed in [-1, 1].
func (m *Motor) Drive(speed float64) error {
	speed = m.scaleSpeed(speed)

	if m.hasSerial {
		return m.mcu.DriveMotor(m.ID, speed)
	}

	if m.hasPWM {
		if err := m.dir.Write(speed >= 0); err != nil {
			return err
		}
		if speed < 0 {
			speed = -speed
		}
		m.pwm.SetDuty(speed)
		return nil
	}

	return derrors.NoDriversError{Motor: m.Name}
}

// CheckFault samples the driver fault lines. FF1+FF2 high means undervolt,
// FF1 alone overtemp, FF2 alone a latched short circuit.
func (m *Motor) CheckFault() (kind FaultKind, err error) {
	a, err := m.faultA.Read()
	if err != nil {
		return
	}
	b, err := m.faultB.Read()
	if err != nil {
		return
	}

	switch {
	case a && b:
		kind = FaultUndervolt
	case a:
		kind = FaultOvertemp
	case b:
		kind = FaultShort
	}
	return
}

// ResetDriver pulses the reset line low to clear a latched driver.
func (m *Motor) ResetDriver() (err error) {
	if err = m.reset.Write(false); err != nil {
		return
	}
	time.Sleep(m_RESET_PULSE)
	return m.reset.Write(true)
}

// Shutdown stops the motor.
func (m *Motor) Shutdown() {
	if err := m.Drive(0); err != nil {
		log.Printf("motor %s: shutdown: %v", m.Name, err)
	}
	if m.hasPWM {
		m.pwm.Stop()
	}
}

// SoftPWM bit-bangs a PWM signal on a GPIO pin. Nominal frequency only; the
// scheduler decides what we actually get.
type SoftPWM struct {
	pin    GPIOPin
	period time.Duration
	duty   atomic.Value // float64
	done   chan struct{}
}

func NewSoftPWM(pin GPIOPin, frequency float64) *SoftPWM {
	p := &SoftPWM{
		pin:    pin,
		period: time.Duration(float64(time.Second) / frequency),
		done:   make(chan struct{}),
	}
	p.duty.Store(0.0)
	return p
}

func (p *SoftPWM) SetDuty(duty float64) {
	if duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}
	p.duty.Store(duty)
}

func (p *SoftPWM) Start() {
	go p.run()
}

func (p *SoftPWM) Stop() {
	close(p.done)
	p.pin.Write(false)
}

func (p *SoftPWM) run() {
	for {
		select {
		case <-p.done:
			return
		default:
		}

		duty := p.duty.Load().(float64)
		high := time.Duration(duty * float64(p.period))

		if high > 0 {
			p.pin.Write(true)
			time.Sleep(high)
		}
		if high < p.period {
			p.pin.Write(false)
			time.Sleep(p.period - high)
		}
	}
}
