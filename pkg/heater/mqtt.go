package heater

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
)

// Default topics for the heater relay. The command topic carries ON/OFF
// writes; the state topic carries the relay's own retained reports.
const (
	DefaultCommandTopic = "solarrouter/heater/set"
	DefaultStateTopic   = "solarrouter/heater/state"
)

const relayTimeout = 5 * time.Second

// MQTTRelay drives a smart switch over MQTT. Commands are published with
// QoS 1 so a switch that briefly drops off the broker still ends up in
// the commanded state.
type MQTTRelay struct {
	client       paho.Client
	commandTopic string
	stateTopic   string

	mu       sync.Mutex
	on       bool
	reported bool
}

// Configured sets up the heater relay based on flags. With no broker
// configured it falls back to an in-memory mock so the router can run
// against simulated hardware.
func Configured() Relay {
	broker := lflag.String("heater-mqtt-broker", "", "MQTT broker for the heater relay (e.g. tcp://localhost:1883), empty uses a mock relay")
	commandTopic := lflag.String("heater-command-topic", DefaultCommandTopic, "MQTT topic for relay commands")
	stateTopic := lflag.String("heater-state-topic", DefaultStateTopic, "MQTT topic for relay state reports")

	var r struct{ Relay }

	lflag.Do(func() {
		if *broker == "" {
			slog.Warn("no heater broker configured, using mock relay")
			r.Relay = NewMockRelay(false)
			return
		}
		mr, err := NewMQTTRelay(*broker, *commandTopic, *stateTopic)
		if err != nil {
			panic(fmt.Sprintf("heater broker connect failed: %v", err))
		}
		r.Relay = mr
	})

	return &r
}

// NewMQTTRelay connects to the broker and subscribes to the relay's state
// reports.
func NewMQTTRelay(broker, commandTopic, stateTopic string) (*MQTTRelay, error) {
	r := &MQTTRelay{
		commandTopic: commandTopic,
		stateTopic:   stateTopic,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("solarrouter-heater").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	r.client = paho.NewClient(opts)
	token := r.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	sub := r.client.Subscribe(stateTopic, 1, r.onStateReport)
	if !sub.WaitTimeout(relayTimeout) {
		return nil, fmt.Errorf("subscribe timeout")
	}
	if err := sub.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", stateTopic, err)
	}

	return r, nil
}

func (r *MQTTRelay) onStateReport(_ paho.Client, msg paho.Message) {
	on, ok := parseOnOff(string(msg.Payload()))
	if !ok {
		slog.Warn("unrecognized relay state report",
			slog.String("topic", msg.Topic()),
			slog.String("payload", string(msg.Payload())),
		)
		return
	}
	r.mu.Lock()
	r.on = on
	r.reported = true
	r.mu.Unlock()
}

// SetState publishes the command and optimistically records it. The state
// topic report, when it arrives, overwrites the optimistic value.
func (r *MQTTRelay) SetState(_ context.Context, on bool) error {
	payload := "OFF"
	if on {
		payload = "ON"
	}
	token := r.client.Publish(r.commandTopic, 1, false, payload)
	if !token.WaitTimeout(relayTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()
	return nil
}

// State returns the last reported relay position, falling back to the
// last commanded one before any report has arrived.
func (r *MQTTRelay) State(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on, nil
}

// Close disconnects from the broker.
func (r *MQTTRelay) Close() error {
	r.client.Disconnect(1000)
	return nil
}

func parseOnOff(s string) (bool, bool) {
	switch s {
	case "ON", "on", "1", "true":
		return true, true
	case "OFF", "off", "0", "false":
		return false, true
	}
	return false, false
}
