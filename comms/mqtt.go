package comms

import (
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	TelemetryTopic = "yozakura/telemetry"

	mqtt_QOS = 0 // lossy by design; the websocket stream is the live view
)

// Uplink publishes telemetry frames to the base-station broker for
// recording. The broker being unreachable never affects the control loop;
// paho buffers and reconnects on its own.
type Uplink struct {
	client mqtt.Client
	topic  string
}

func NewUplink(broker string) (*Uplink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("yozakura_robot")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Println("connected to telemetry broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("telemetry broker connection lost: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &Uplink{client: client, topic: TelemetryTopic}, nil
}

// Publish fires one frame and does not wait for the token.
func (u *Uplink) Publish(msg []byte) {
	u.client.Publish(u.topic, mqtt_QOS, false, msg)
}

func (u *Uplink) Close() {
	u.client.Disconnect(250)
}
