package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// DefaultTopic is where router events are published.
const DefaultTopic = "solarrouter/events"

const publishTimeout = 5 * time.Second

// MQTTBus publishes events to an MQTT broker as JSON payloads.
type MQTTBus struct {
	client paho.Client
	topic  string
}

// Configured sets up the event bus based on flags. With no broker
// configured it falls back to an in-memory recorder so the rest of the
// router never has to care.
func Configured() Bus {
	broker := lflag.String("events-mqtt-broker", "", "MQTT broker for router events (e.g. tcp://localhost:1883), empty disables publishing")
	topic := lflag.String("events-mqtt-topic", DefaultTopic, "MQTT topic for router events")

	var b struct{ Bus }

	lflag.Do(func() {
		if *broker == "" {
			slog.Warn("no events broker configured, events will not be published")
			b.Bus = NewRecorder()
			return
		}
		mb, err := NewMQTTBus(*broker, *topic)
		if err != nil {
			panic(fmt.Sprintf("events broker connect failed: %v", err))
		}
		b.Bus = mb
	})

	return &b
}

// NewMQTTBus connects to the broker and returns a publishing bus.
func NewMQTTBus(broker, topic string) (*MQTTBus, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("solarrouter-events").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTBus{client: client, topic: topic}, nil
}

// Publish sends the event as JSON. QoS 0, not retained; a missed event is
// preferable to a stalled tick.
func (b *MQTTBus) Publish(_ context.Context, ev types.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	token := b.client.Publish(b.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(1000)
	return nil
}
