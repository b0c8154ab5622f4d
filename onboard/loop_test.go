package onboard

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func createSimLoop() (*Yozakura, *ControlLoop, *simHardware) {
	config := DefaultConfig()
	config.Supervisor.TripCycles = 3

	robot, err := NewSimulatedYozakura(config)
	if err != nil {
		panic(err)
	}

	return robot, NewControlLoop(robot), robot.MCU.(*simHardware)
}

func collect(l *ControlLoop) RobotState {
	select {
	case state := <-l.States():
		return state
	default:
		panic("no snapshot produced")
	}
}

func TestFailSafe(t *testing.T) {
	robot, l, _ := createSimLoop()

	Convey("without any command the loop fails safe", t, func() {
		l.cycle(time.Now())
		state := collect(l)

		So(state.FailSafe, ShouldBeTrue)
		for _, ch := range state.Channels {
			So(ch.Output, ShouldEqual, 0)
		}
	})

	Convey("a fresh command resumes normal operation", t, func() {
		robot.SetDrive(0.5, 0)
		l.cycle(time.Now())
		state := collect(l)

		So(state.FailSafe, ShouldBeFalse)
		So(state.Channels["left_motor"].Output, ShouldAlmostEqual, 0.5, 0.001)
		So(state.Channels["right_motor"].Output, ShouldAlmostEqual, 0.5, 0.001)
	})

	Convey("outputs are zero within one cycle of the command going stale", t, func() {
		robot.SetDrive(0.5, 0)
		l.cycle(time.Now().Add(2 * time.Second))
		state := collect(l)

		So(state.FailSafe, ShouldBeTrue)
		So(state.Channels["left_motor"].Output, ShouldEqual, 0)
		So(state.Channels["right_motor"].Output, ShouldEqual, 0)
	})
}

func TestCommandClamping(t *testing.T) {
	robot, l, _ := createSimLoop()

	Convey("out of range commands are clamped to the nearest bound", t, func() {
		robot.SetDrive(1.5, 0)
		l.cycle(time.Now())
		state := collect(l)

		So(state.Clamped, ShouldContain, "forward")
		So(state.Channels["left_motor"].Target, ShouldEqual, 1.0)
		So(state.Channels["left_motor"].Output, ShouldEqual, 1.0)

		Convey("in range commands pass through untouched", func() {
			robot.SetDrive(0.25, 0)
			l.cycle(time.Now())
			state := collect(l)

			So(state.Clamped, ShouldBeEmpty)
			So(state.Channels["left_motor"].Target, ShouldAlmostEqual, 0.25, 0.001)
		})
	})
}

func TestDriveMixing(t *testing.T) {
	robot, l, _ := createSimLoop()

	Convey("turn biases the tracks and overflow normalizes", t, func() {
		robot.SetDrive(1, 0.5)
		l.cycle(time.Now())
		state := collect(l)

		So(state.Channels["left_motor"].Target, ShouldAlmostEqual, 1.0, 0.001)
		So(state.Channels["right_motor"].Target, ShouldAlmostEqual, 1.0/3, 0.001)

		Convey("pure rotation counter-rotates the tracks", func() {
			robot.SetDrive(0, 1)
			l.cycle(time.Now())
			state := collect(l)

			So(state.Channels["left_motor"].Target, ShouldAlmostEqual, 1.0, 0.001)
			So(state.Channels["right_motor"].Target, ShouldAlmostEqual, -1.0, 0.001)
		})
	})
}

func TestOvercurrentFault(t *testing.T) {
	robot, l, sim := createSimLoop()
	sim.CurrentDraw = 50 // every driven motor is over the 15A limit

	Convey("sustained overcurrent faults the channel and zeroes it", t, func() {
		for i := 0; i < 3; i++ {
			robot.SetDrive(1, 0)
			l.cycle(time.Now())
		}
		state := collect(l)

		So(state.Channels["left_motor"].State, ShouldEqual, "faulted")
		So(state.Channels["left_motor"].Output, ShouldEqual, 0)

		Convey("unaffected channels continue operating normally", func() {
			So(state.Channels["left_flipper"].State, ShouldEqual, "normal")
		})

		Convey("the fault holds even after the current drops", func() {
			sim.CurrentDraw = 1
			robot.SetDrive(1, 0)
			l.cycle(time.Now())
			state := collect(l)

			So(state.Channels["left_motor"].State, ShouldEqual, "faulted")
			So(state.Channels["left_motor"].Output, ShouldEqual, 0)
		})

		Convey("an operator reset restores the channel", func() {
			sim.CurrentDraw = 1
			So(robot.ResetFault("left_motor"), ShouldBeNil)

			robot.SetDrive(1, 0)
			l.cycle(time.Now())
			state := collect(l)

			So(state.Channels["left_motor"].State, ShouldEqual, "normal")
			So(state.Channels["left_motor"].Output, ShouldAlmostEqual, 1.0, 0.001)
		})
	})
}

func TestFlipperPositionLoop(t *testing.T) {
	robot, l, _ := createSimLoop()

	Convey("flippers close their position loop against the ADC", t, func() {
		robot.SetDrive(0, 0)
		So(robot.SetFlipper("left_flipper", 1.0), ShouldBeNil)

		l.cycle(time.Now())
		state := collect(l)

		// far from target: full output toward it
		So(state.Channels["left_flipper"].Output, ShouldAlmostEqual, 1.0, 0.001)

		Convey("the position converges over cycles", func() {
			var pos float64
			for i := 0; i < 100; i++ {
				robot.SetFlipper("left_flipper", 1.0)
				time.Sleep(10 * time.Millisecond)
				l.cycle(time.Now())
				pos = collect(l).Channels["left_flipper"].Position
			}
			So(pos, ShouldBeGreaterThan, 0.5)
		})

		Convey("unknown flipper names are rejected", func() {
			So(robot.SetFlipper("left_motor", 1), ShouldNotBeNil)
			So(robot.SetFlipper("nope", 1), ShouldNotBeNil)
		})
	})
}

func TestStatusDuringCycles(t *testing.T) {
	robot, l, _ := createSimLoop()

	Convey("status reads from another goroutine stay consistent with the loop", t, func() {
		done := make(chan struct{})
		go func() {
			for i := 0; i < 500; i++ {
				robot.Status()
			}
			close(done)
		}()

		for i := 0; i < 500; i++ {
			robot.SetDrive(0.5, 0)
			l.cycle(time.Now())
			collect(l)
		}
		<-done

		status := robot.Status()
		So(status["left_motor"].Output, ShouldAlmostEqual, 0.5, 0.001)
		So(status["left_motor"].State, ShouldEqual, "normal")
	})
}

func TestSnapshotHandoff(t *testing.T) {
	robot, l, _ := createSimLoop()

	Convey("the loop never blocks on a slow consumer", t, func() {
		robot.SetDrive(0.1, 0)
		l.cycle(time.Now())
		l.cycle(time.Now())
		l.cycle(time.Now())

		// only the freshest snapshot is retained
		state := collect(l)
		So(state.Channels["left_motor"].Target, ShouldAlmostEqual, 0.1, 0.001)
		select {
		case <-l.States():
			t.Fatal("more than one snapshot buffered")
		default:
		}
	})
}
