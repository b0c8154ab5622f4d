package comms

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the operator will ask about after a run: how often
// the link dropped, which channels faulted, how many commands were out of
// range.
type Metrics struct {
	CommandsReceived    prometheus.Counter
	ClampEvents         prometheus.Counter
	FailSafeActivations prometheus.Counter
	ChannelFaults       *prometheus.CounterVec
	Clients             prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		CommandsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yozakura_commands_received_total",
			Help: "Operator commands received over the teleop link.",
		}),
		ClampEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yozakura_command_clamped_total",
			Help: "Command values clamped to the safe range before applying.",
		}),
		FailSafeActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yozakura_failsafe_activations_total",
			Help: "Times the control loop zeroed outputs after command timeout.",
		}),
		ChannelFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yozakura_channel_faults_total",
			Help: "Channels latched by the safety supervisor.",
		}, []string{"channel"}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yozakura_teleop_clients",
			Help: "Currently connected operator websockets.",
		}),
	}

	prometheus.MustRegister(m.CommandsReceived, m.ClampEvents,
		m.FailSafeActivations, m.ChannelFaults, m.Clients)

	return m
}
