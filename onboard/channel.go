package onboard

import (
	"sync"
)

type ChannelState int

const (
	StateNormal ChannelState = iota
	StateFaulted
)

func (s ChannelState) String() string {
	if s == StateFaulted {
		return "faulted"
	}
	return "normal"
}

// ActuatorChannel is one drivable output with its feedback: a track motor or
// a flipper. Created at init, updated every control cycle, never destroyed
// during a session.
type ActuatorChannel struct {
	Name   string
	Motor  *Motor
	Sensor *CurrentSensor

	// Flipper channels are position controlled; their Target is a position
	// in [0, 1] closed against the mbed ADC instead of a raw speed.
	IsFlipper bool

	// The loop writes these every cycle while Status reads them from the
	// shell and websocket goroutines, so they live behind the lock.
	lock        sync.Mutex
	target      float64
	output      float64 // what was actually applied this cycle, post clamp/fault
	position    float64 // last flipper ADC position
	sample      SensorSample
	state       ChannelState
	faultReason string
}

func (c *ActuatorChannel) setTarget(v float64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.target = v
}

func (c *ActuatorChannel) setOutput(v float64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.output = v
}

func (c *ActuatorChannel) setPosition(v float64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.position = v
}

func (c *ActuatorChannel) setSample(s SensorSample) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sample = s
}

// Fault latches the channel. Only the supervisor calls this; the channel
// stays faulted until an explicit operator reset.
func (c *ActuatorChannel) Fault(reason string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.state = StateFaulted
	c.faultReason = reason
}

// Reset returns a faulted channel to normal and clears the latched driver.
func (c *ActuatorChannel) Reset() error {
	c.lock.Lock()
	c.state = StateNormal
	c.faultReason = ""
	c.lock.Unlock()

	return c.Motor.ResetDriver()
}

func (c *ActuatorChannel) State() ChannelState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

func (c *ActuatorChannel) FaultReason() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.faultReason
}

// ChannelStatus is the per-channel slice of a telemetry snapshot.
type ChannelStatus struct {
	Target   float64 `json:"target"`
	Output   float64 `json:"output"`
	Current  float64 `json:"current"`
	Position float64 `json:"position,omitempty"`
	State    string  `json:"state"`
	Fault    string  `json:"fault,omitempty"`
}

func (c *ActuatorChannel) Status() ChannelStatus {
	c.lock.Lock()
	defer c.lock.Unlock()

	return ChannelStatus{
		Target:   c.target,
		Output:   c.output,
		Current:  c.sample.Current,
		Position: c.position,
		State:    c.state.String(),
		Fault:    c.faultReason,
	}
}
