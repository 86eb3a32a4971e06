package telemetry

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// DefaultTopicPrefix is the root under which the sensor topics live.
const DefaultTopicPrefix = "solarrouter/telemetry"

// Sensor topic suffixes under the prefix.
const (
	topicBatterySOC   = "battery_soc"
	topicSolarPower   = "solar_power"
	topicGridPower    = "grid_power"
	topicBatteryPower = "battery_power"
	topicHeaterPower  = "heater_power"
)

type reading struct {
	value float64
	at    time.Time
}

// MQTTSource subscribes to one topic per sensor and keeps the latest
// reading with its arrival time. Snapshot drops anything older than the
// staleness window.
type MQTTSource struct {
	client    paho.Client
	prefix    string
	staleness time.Duration

	mu       sync.Mutex
	readings map[string]reading
}

// Configured sets up the telemetry source based on flags. With no broker
// configured it falls back to a static source with every sensor missing,
// which keeps the rule engine in its conservative no-data behavior.
func Configured() Source {
	broker := lflag.String("telemetry-mqtt-broker", "", "MQTT broker for sensor readings (e.g. tcp://localhost:1883), empty disables telemetry")
	prefix := lflag.String("telemetry-topic-prefix", DefaultTopicPrefix, "MQTT topic prefix for sensor readings")
	staleness := lflag.Duration("telemetry-staleness", DefaultStaleness, "Drop sensor readings older than this")

	var s struct{ Source }

	lflag.Do(func() {
		if *broker == "" {
			slog.Warn("no telemetry broker configured, all sensors will read as missing")
			s.Source = NewStatic()
			return
		}
		ms, err := NewMQTTSource(*broker, *prefix, *staleness)
		if err != nil {
			panic(fmt.Sprintf("telemetry broker connect failed: %v", err))
		}
		s.Source = ms
	})

	return &s
}

// NewMQTTSource connects to the broker and subscribes to every sensor
// topic under prefix.
func NewMQTTSource(broker, prefix string, staleness time.Duration) (*MQTTSource, error) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	s := &MQTTSource{
		prefix:    strings.TrimSuffix(prefix, "/"),
		staleness: staleness,
		readings:  make(map[string]reading),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("solarrouter-telemetry").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	sub := s.client.Subscribe(s.prefix+"/#", 0, s.onMessage)
	if !sub.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("subscribe timeout")
	}
	if err := sub.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %s/#: %w", s.prefix, err)
	}

	return s, nil
}

func (s *MQTTSource) onMessage(_ paho.Client, msg paho.Message) {
	suffix := strings.TrimPrefix(msg.Topic(), s.prefix+"/")
	payload := strings.TrimSpace(string(msg.Payload()))

	// sensors publish "unavailable"/"unknown" when they drop out
	v, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		s.mu.Lock()
		delete(s.readings, suffix)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.readings[suffix] = reading{value: v, at: time.Now()}
	s.mu.Unlock()
}

// Snapshot returns the current readings, dropping anything stale.
func (s *MQTTSource) Snapshot(now time.Time) types.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := func(suffix string) *float64 {
		r, ok := s.readings[suffix]
		if !ok || now.Sub(r.at) > s.staleness {
			return nil
		}
		v := r.value
		return &v
	}

	return types.TelemetrySnapshot{
		Timestamp:     now,
		BatterySOC:    fresh(topicBatterySOC),
		SolarPowerW:   fresh(topicSolarPower),
		GridPowerW:    fresh(topicGridPower),
		BatteryPowerW: fresh(topicBatteryPower),
		HeaterPowerW:  fresh(topicHeaterPower),
	}
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	s.client.Disconnect(1000)
	return nil
}
