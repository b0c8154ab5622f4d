package onboard

import (
	"testing"

	derrors "github.com/KyotoMechatronics/goyozakura/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
)

const kSpeedTolerance = 0.001

type MockPin struct {
	high   bool
	writes []bool
}

func (p *MockPin) Write(high bool) error {
	p.high = high
	p.writes = append(p.writes, high)
	return nil
}

func (p *MockPin) Read() (bool, error) {
	return p.high, nil
}

type MockMCU struct {
	id        uint8
	speed     float64
	positions map[uint8]float64
}

func (m *MockMCU) DriveMotor(id uint8, speed float64) error {
	m.id = id
	m.speed = speed
	return nil
}

func (m *MockMCU) ReadPosition(id uint8) (float64, error) {
	return m.positions[id], nil
}

func createTestMotor() (*Motor, *MockPin, *MockPin, *MockPin) {
	ff1, ff2, reset := new(MockPin), new(MockPin), new(MockPin)
	m := &Motor{
		Name:       "left_motor",
		ID:         0,
		faultA:     ff1,
		faultB:     ff2,
		reset:      reset,
		StartInput: 0.2,
		MaxSpeed:   1.0,
	}
	return m, ff1, ff2, reset
}

func TestNewMotor(t *testing.T) {
	Convey("argument validation", t, func() {
		Convey("slots beyond the packet id range are rejected", func() {
			_, err := NewMotor("extra", MAX_MOTORS, new(MockPin), new(MockPin), new(MockPin), 0, 1)
			So(err, ShouldHaveSameTypeAs, derrors.TooManyMotorsError{})
		})

		Convey("start_input outside [0,1] is rejected", func() {
			_, err := NewMotor("bad", 0, new(MockPin), new(MockPin), new(MockPin), 1.5, 1)
			So(err, ShouldHaveSameTypeAs, derrors.InvalidArgError{})
		})

		Convey("max_speed outside [0,1] is rejected", func() {
			_, err := NewMotor("bad", 0, new(MockPin), new(MockPin), new(MockPin), 0, 2)
			So(err, ShouldHaveSameTypeAs, derrors.InvalidArgError{})
		})

		Convey("construction pulses the reset line to clear a latched driver", func() {
			reset := new(MockPin)
			_, err := NewMotor("ok", 0, new(MockPin), new(MockPin), reset, 0, 1)
			So(err, ShouldBeNil)
			So(reset.writes, ShouldResemble, []bool{false, true})
		})
	})
}

func TestScaleSpeed(t *testing.T) {
	m, _, _, _ := createTestMotor()

	Convey("inputs are rescaled above the deadband", t, func() {
		// 20% deadband: 10% in becomes 28% out, 50% becomes 60%
		So(m.scaleSpeed(0.1), ShouldAlmostEqual, 0.28, kSpeedTolerance)
		So(m.scaleSpeed(0.5), ShouldAlmostEqual, 0.6, kSpeedTolerance)
		So(m.scaleSpeed(-0.5), ShouldAlmostEqual, -0.6, kSpeedTolerance)

		Convey("zero stays zero", func() {
			So(m.scaleSpeed(0), ShouldEqual, 0)
		})

		Convey("max_speed caps the output", func() {
			m.MaxSpeed = 0.5
			So(m.scaleSpeed(1), ShouldAlmostEqual, 0.5, kSpeedTolerance)
		})
	})
}

func TestDrive(t *testing.T) {
	Convey("driving", t, func() {
		m, _, _, _ := createTestMotor()

		Convey("with no drivers enabled returns an error", func() {
			So(m.Drive(0.5), ShouldHaveSameTypeAs, derrors.NoDriversError{})
		})

		Convey("serial sends the scaled speed to the mbed", func() {
			mcu := &MockMCU{}
			m.EnableSerial(mcu)

			So(m.Drive(0.5), ShouldBeNil)
			So(mcu.id, ShouldEqual, 0)
			So(mcu.speed, ShouldAlmostEqual, 0.6, kSpeedTolerance)
		})

		Convey("pwm sets direction and duty", func() {
			pwm, dir := new(MockPin), new(MockPin)
			m.EnablePWM(pwm, dir, m_PWM_FREQ)
			defer m.pwm.Stop()

			So(m.Drive(-0.5), ShouldBeNil)
			So(dir.high, ShouldBeFalse)
			So(m.pwm.duty.Load().(float64), ShouldAlmostEqual, 0.6, kSpeedTolerance)
		})

		Convey("serial takes priority when both are enabled", func() {
			mcu := &MockMCU{}
			pwm, dir := new(MockPin), new(MockPin)
			m.EnableSerial(mcu)
			m.EnablePWM(pwm, dir, m_PWM_FREQ)
			defer m.pwm.Stop()

			So(m.Drive(1), ShouldBeNil)
			So(mcu.speed, ShouldAlmostEqual, 1, kSpeedTolerance)
		})
	})
}

func TestCheckFault(t *testing.T) {
	m, ff1, ff2, _ := createTestMotor()

	Convey("fault lines decode per the driver datasheet", t, func() {
		kind, err := m.CheckFault()
		So(err, ShouldBeNil)
		So(kind, ShouldEqual, FaultNone)

		ff1.high, ff2.high = true, true
		kind, _ = m.CheckFault()
		So(kind, ShouldEqual, FaultUndervolt)

		ff1.high, ff2.high = true, false
		kind, _ = m.CheckFault()
		So(kind, ShouldEqual, FaultOvertemp)

		ff1.high, ff2.high = false, true
		kind, _ = m.CheckFault()
		So(kind, ShouldEqual, FaultShort)
		So(kind.String(), ShouldEqual, "short_circuit")
	})
}
