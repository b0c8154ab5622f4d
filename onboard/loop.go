package onboard

import (
	"log"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// RobotState is one telemetry snapshot produced per control cycle.
type RobotState struct {
	Stamp    time.Time                `json:"stamp"`
	FailSafe bool                     `json:"failsafe"`
	Channels map[string]ChannelStatus `json:"channels"`
	Clamped  []string                 `json:"clamped,omitempty"`
}

// ControlLoop runs the fixed-period actuator cycle: read cached command,
// apply outputs, sample feedback, feed the supervisor. It never blocks on
// the network; command staleness beyond the timeout fails safe to zero.
type ControlLoop struct {
	robot *Yozakura

	period  time.Duration
	timeout time.Duration
	gain    float64 // proportional gain closing flipper position

	states chan RobotState
	done   chan struct{}

	failsafe bool
}

func NewControlLoop(robot *Yozakura) *ControlLoop {
	conf := robot.Config.Loop
	return &ControlLoop{
		robot:   robot,
		period:  time.Second / time.Duration(conf.Rate),
		timeout: time.Duration(conf.CommandTimeout),
		gain:    conf.FlipperGain,
		states:  make(chan RobotState, 1),
		done:    make(chan struct{}),
	}
}

// States delivers one snapshot per cycle. The loop drops the oldest
// snapshot when the consumer lags; it never waits for it.
func (l *ControlLoop) States() <-chan RobotState {
	return l.states
}

func (l *ControlLoop) Run() {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.cycle(time.Now())
		}
	}
}

func (l *ControlLoop) Stop() {
	close(l.done)
}

func (l *ControlLoop) cycle(now time.Time) {
	cmd, stamp, ok := l.robot.commands.latest()

	stale := !ok || now.Sub(stamp) > l.timeout
	if stale && !l.failsafe {
		log.Printf("no fresh command in %v, failing safe", l.timeout)
	}
	if !stale && l.failsafe {
		log.Print("command link restored")
	}
	l.failsafe = stale

	var clamped []string
	targets := l.targets(cmd, &clamped)

	state := RobotState{
		Stamp:    now,
		FailSafe: l.failsafe,
		Channels: make(map[string]ChannelStatus, len(l.robot.Channels)),
		Clamped:  clamped,
	}

	for name, c := range l.robot.Channels {
		l.drive(c, targets[name])
		l.sample(c, now)
		state.Channels[name] = c.Status()
	}

	// Hand off without blocking; replace the stale snapshot if nobody
	// collected it.
	select {
	case l.states <- state:
	default:
		select {
		case <-l.states:
		default:
		}
		l.states <- state
	}
}

// targets turns the operator CommandSet into one target per channel,
// clamping out-of-range values to the nearest bound. Drive mixing keeps the
// turn authority by normalizing, not truncating, when the mix overflows.
func (l *ControlLoop) targets(cmd CommandSet, clamped *[]string) map[string]float64 {
	forward := l.clamp(cmd.Forward, -1, 1, "forward", clamped)
	turn := l.clamp(cmd.Turn, -1, 1, "turn", clamped)

	mix := mgl64.Vec2{forward + turn, forward - turn}
	if m := math.Max(math.Abs(mix[0]), math.Abs(mix[1])); m > 1 {
		mix = mix.Mul(1 / m)
	}

	return map[string]float64{
		"left_motor":    mix[0],
		"right_motor":   mix[1],
		"left_flipper":  l.clamp(cmd.LeftFlipper, 0, 1, "left_flipper", clamped),
		"right_flipper": l.clamp(cmd.RightFlipper, 0, 1, "right_flipper", clamped),
	}
}

func (l *ControlLoop) clamp(v, min, max float64, name string, clamped *[]string) float64 {
	c := mgl64.Clamp(v, min, max)
	if c != v {
		log.Printf("command %s=%v out of range, clamped to %v", name, v, c)
		*clamped = append(*clamped, name)
	}
	return c
}

// drive applies one channel's output for this cycle. Faulted channels and
// fail-safe cycles force zero; flippers close their position loop against
// the mbed ADC.
func (l *ControlLoop) drive(c *ActuatorChannel, target float64) {
	c.setTarget(target)

	output := target
	if c.IsFlipper {
		output = l.flipperOutput(c, target)
	}

	if l.failsafe || c.State() == StateFaulted {
		output = 0
	}
	c.setOutput(output)

	if err := c.Motor.Drive(output); err != nil {
		log.Printf("channel %s: drive: %v", c.Name, err)
	}

	if kind, err := c.Motor.CheckFault(); err == nil && kind != FaultNone {
		log.Printf("channel %s: driver fault: %s", c.Name, kind)
	}
}

func (l *ControlLoop) flipperOutput(c *ActuatorChannel, target float64) float64 {
	if l.robot.MCU == nil {
		return 0
	}

	pos, err := l.robot.MCU.ReadPosition(c.Motor.ID)
	if err != nil {
		log.Printf("channel %s: position read: %v", c.Name, err)
		return 0
	}
	c.setPosition(pos)

	return mgl64.Clamp(l.gain*(target-pos), -1, 1)
}

// sample captures the channel's current and feeds the supervisor. A channel
// faulted on this cycle gets its output cut immediately instead of waiting
// a period.
func (l *ControlLoop) sample(c *ActuatorChannel, now time.Time) {
	sample, err := c.Sensor.Read()
	if err != nil {
		log.Printf("channel %s: current read: %v", c.Name, err)
		return
	}
	c.setSample(sample)

	if l.robot.supervisor.Observe(c, sample) {
		c.setOutput(0)
		if err := c.Motor.Drive(0); err != nil {
			log.Printf("channel %s: fault stop: %v", c.Name, err)
		}
	}
}
