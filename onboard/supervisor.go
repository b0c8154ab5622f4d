package onboard

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// Supervisor watches measured currents and faults a channel on sustained
// over-limit. A single spike (stall inrush, tracks biting in) is expected;
// TripCycles consecutive over-limit samples are not.
type Supervisor struct {
	Limit      float64 // amps
	TripCycles int

	// counts is hit from the loop goroutine every cycle and from operator
	// resets via Forget, so it stays behind the lock.
	lock   sync.Mutex
	counts map[string]int
}

func NewSupervisor(limit float64, tripCycles int) *Supervisor {
	return &Supervisor{
		Limit:      limit,
		TripCycles: tripCycles,
		counts:     make(map[string]int),
	}
}

// Observe feeds one fresh sample for a channel. Returns true if the channel
// was faulted on this cycle. Already faulted channels are left alone; the
// fault only clears through an explicit reset.
func (s *Supervisor) Observe(c *ActuatorChannel, sample SensorSample) bool {
	if c.State() == StateFaulted {
		return false
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if math.Abs(sample.Current) <= s.Limit {
		s.counts[c.Name] = 0
		return false
	}

	s.counts[c.Name]++
	if s.counts[c.Name] < s.TripCycles {
		return false
	}

	c.Fault(fmt.Sprintf("overcurrent: %.2fA > %.2fA for %d cycles",
		math.Abs(sample.Current), s.Limit, s.TripCycles))
	log.Printf("supervisor: channel %s faulted (%s)", c.Name, c.FaultReason())
	s.counts[c.Name] = 0
	return true
}

// Forget drops the running count for a channel, used on operator reset so a
// stale count cannot trip the freshly cleared channel early.
func (s *Supervisor) Forget(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.counts, name)
}
