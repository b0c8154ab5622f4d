package comms

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/KyotoMechatronics/goyozakura/onboard"
	"github.com/gorilla/websocket"
)

// Conductor bridges the operator station and the device. Commands coming in
// over websockets land in the device's command cache; telemetry snapshots
// from the control loop fan out to every connected client, the MQTT uplink
// and the metrics. Slow consumers are dropped, never waited on.
type Conductor struct {
	Device  onboard.Robot
	Cameras map[string]string
	Uplink  *Uplink
	Metrics *Metrics

	lock    sync.Mutex
	clients map[*websocket.Conn]*client

	prevFaults   map[string]bool
	prevFailSafe bool
}

// client wraps one websocket with a write lock. The reader goroutine and the
// broadcast both write to the conn; gorilla allows only one writer at a time.
type client struct {
	conn *websocket.Conn
	lock sync.Mutex
}

func (cl *client) send(msg []byte) error {
	cl.lock.Lock()
	defer cl.lock.Unlock()
	return cl.conn.WriteMessage(websocket.TextMessage, msg)
}

func NewConductor(device onboard.Robot) *Conductor {
	return &Conductor{
		Device:     device,
		clients:    make(map[*websocket.Conn]*client),
		prevFaults: make(map[string]bool),
	}
}

// ProcessCommand routes one operator command to the device.
func (c *Conductor) ProcessCommand(cmd Cmd) {
	if c.Metrics != nil {
		c.Metrics.CommandsReceived.Inc()
	}

	switch cmd.Cmd {
	case "drive":
		c.Device.SetDrive(cmd.Value, cmd.Value2)

	case "flipper":
		if err := c.Device.SetFlipper(cmd.Name, cmd.Value); err != nil {
			log.Printf("flipper command: %v", err)
		}

	case "reset_fault":
		if err := c.Device.ResetFault(cmd.Name); err != nil {
			log.Printf("reset command: %v", err)
		}

	case "stop":
		c.Device.Stop()

	default:
		log.Printf("unable to process command %+v", cmd)
	}
}

// AddClient registers a websocket for telemetry and consumes its incoming
// command stream until the connection dies.
func (c *Conductor) AddClient(conn *websocket.Conn) {
	cl := &client{conn: conn}

	c.lock.Lock()
	c.clients[conn] = cl
	n := len(c.clients)
	c.lock.Unlock()

	if c.Metrics != nil {
		c.Metrics.Clients.Set(float64(n))
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			break
		}

		var cmd Cmd
		if err := json.Unmarshal(msg, &cmd); err != nil {
			cl.send([]byte(`{"error": "invalid json"}`))
			continue
		}

		c.ProcessCommand(cmd)
	}

	c.removeClient(conn)
}

func (c *Conductor) removeClient(conn *websocket.Conn) {
	c.lock.Lock()
	delete(c.clients, conn)
	n := len(c.clients)
	c.lock.Unlock()

	conn.Close()
	if c.Metrics != nil {
		c.Metrics.Clients.Set(float64(n))
	}
}

// UpdateClients pumps loop snapshots to everything downstream. Runs until
// the states channel closes.
func (c *Conductor) UpdateClients(states <-chan onboard.RobotState) {
	for state := range states {
		c.observe(state)

		payload := StatePayload{RobotState: state, Cameras: c.Cameras}
		msg, err := json.Marshal(payload)
		if err != nil {
			log.Println("marshal state:", err)
			continue
		}

		c.broadcast(msg)

		if c.Uplink != nil {
			c.Uplink.Publish(msg)
		}
	}
}

func (c *Conductor) broadcast(msg []byte) {
	c.lock.Lock()
	clients := make([]*client, 0, len(c.clients))
	for _, cl := range c.clients {
		clients = append(clients, cl)
	}
	c.lock.Unlock()

	for _, cl := range clients {
		if err := cl.send(msg); err != nil {
			log.Println("write:", err)
			c.removeClient(cl.conn)
		}
	}
}

// observe derives metric events from snapshot edges: a channel entering the
// faulted state and fail-safe engaging each count once.
func (c *Conductor) observe(state onboard.RobotState) {
	if c.Metrics == nil {
		return
	}

	c.Metrics.ClampEvents.Add(float64(len(state.Clamped)))

	if state.FailSafe && !c.prevFailSafe {
		c.Metrics.FailSafeActivations.Inc()
	}
	c.prevFailSafe = state.FailSafe

	for name, ch := range state.Channels {
		faulted := ch.State == "faulted"
		if faulted && !c.prevFaults[name] {
			c.Metrics.ChannelFaults.WithLabelValues(name).Inc()
		}
		c.prevFaults[name] = faulted
	}
}
