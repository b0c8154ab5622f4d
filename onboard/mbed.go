package onboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/goburrow/serial"
)

const (
	// Acceptable firmware versions on the mbed. Anything outside this range
	// has a different packet layout and must not drive the motors.
	MBED_VERSION = "~0.2.0"

	mbed_SPEED_BITS = 5
	mbed_SPEED_MAX  = 1<<mbed_SPEED_BITS - 1 // 31
	mbed_ADC_MAX    = 1023
)

// MotorPacket is the single byte speed command understood by the mbed.
// Bits 7-6 carry the motor ID, bit 5 the sign and bits 4-0 the speed
// magnitude scaled to 0-31.
type MotorPacket struct {
	MotorID  uint8
	Negative bool
	Speed    uint8
}

func (p MotorPacket) Byte() byte {
	b := p.MotorID << 6
	if p.Negative {
		b |= 1 << 5
	}
	return b | p.Speed&mbed_SPEED_MAX
}

func ParseMotorPacket(b byte) MotorPacket {
	return MotorPacket{
		MotorID:  b >> 6,
		Negative: b&(1<<5) != 0,
		Speed:    b & mbed_SPEED_MAX,
	}
}

// MCUInterface is the microcontroller seen from the control loop: hardware
// PWM out, position ADC in.
type MCUInterface interface {
	DriveMotor(id uint8, speed float64) error
	ReadPosition(id uint8) (float64, error)
}

// UARTMbed talks to the mbed over its USB serial port. All port access goes
// through a single mutex; the mbed handles one request at a time.
type UARTMbed struct {
	port serial.Port
	lock sync.Mutex

	Version string
}

func NewUARTMbed(device string, baud int) (mcu *UARTMbed, err error) {
	mcu = new(UARTMbed)
	mcu.port, err = serial.Open(&serial.Config{
		Address:  device,
		BaudRate: baud,
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	if err = mcu.checkVersion(); err != nil {
		mcu.port.Close()
		return nil, err
	}

	return mcu, nil
}

// checkVersion refuses to work with firmware outside MBED_VERSION. A "DEV"
// build is let through so bench firmware can be iterated on.
func (mcu *UARTMbed) checkVersion() (err error) {
	resp, err := mcu.request("V\n")
	if err != nil {
		return
	}
	mcu.Version = resp

	if resp == "DEV" {
		return nil
	}

	semVer, err := semver.NewVersion(resp)
	if err != nil {
		return fmt.Errorf("mbed reported unusable version %q: %v", resp, err)
	}

	constraint, err := semver.NewConstraint(MBED_VERSION)
	if err != nil {
		return
	}

	if !constraint.Check(semVer) {
		err = fmt.Errorf("unable to use mbed: recieved version %s - require %s", resp, MBED_VERSION)
	}
	return
}

// DriveMotor sends a speed in [-1, 1] for the given motor slot as a single
// MotorPacket byte.
func (mcu *UARTMbed) DriveMotor(id uint8, speed float64) error {
	packet := MotorPacket{MotorID: id}
	if speed < 0 {
		packet.Negative = true
		speed = -speed
	}
	packet.Speed = uint8(speed * mbed_SPEED_MAX)

	mcu.lock.Lock()
	defer mcu.lock.Unlock()

	_, err := mcu.port.Write([]byte{packet.Byte()})
	return err
}

// ReadPosition requests the flipper position ADC for the given slot and
// returns it normalized to [0, 1].
func (mcu *UARTMbed) ReadPosition(id uint8) (pos float64, err error) {
	resp, err := mcu.request(fmt.Sprintf("P%d\n", id))
	if err != nil {
		return
	}

	var raw int
	if _, err = fmt.Sscanf(resp, "%d", &raw); err != nil {
		return 0, fmt.Errorf("bad position reply %q: %v", resp, err)
	}

	return float64(raw) / mbed_ADC_MAX, nil
}

// request performs a write/readline pair inside the critical section.
func (mcu *UARTMbed) request(cmd string) (resp string, err error) {
	mcu.lock.Lock()
	defer mcu.lock.Unlock()

	if _, err = mcu.port.Write([]byte(cmd)); err != nil {
		return
	}

	var line []byte
	buf := make([]byte, 1)
	for {
		if _, err = mcu.port.Read(buf); err != nil {
			return "", err
		}
		if buf[0] == '\n' {
			break
		}
		line = append(line, buf[0])
	}

	return strings.TrimSpace(string(line)), nil
}

func (mcu *UARTMbed) Close() error {
	mcu.lock.Lock()
	defer mcu.lock.Unlock()
	return mcu.port.Close()
}
