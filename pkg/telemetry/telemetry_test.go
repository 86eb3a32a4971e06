package telemetry

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/solarrouter/solarrouter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func newTestSource() *MQTTSource {
	return &MQTTSource{
		prefix:    DefaultTopicPrefix,
		staleness: DefaultStaleness,
		readings:  make(map[string]reading),
	}
}

func (s *MQTTSource) deliver(suffix, payload string) {
	s.onMessage(nil, fakeMessage{
		topic:   s.prefix + "/" + suffix,
		payload: []byte(payload),
	})
}

func TestSnapshotFreshReadings(t *testing.T) {
	s := newTestSource()
	s.deliver(topicBatterySOC, "82.5")
	s.deliver(topicSolarPower, "3100")
	s.deliver(topicGridPower, "-1200")

	snap := s.Snapshot(time.Now())

	require.NotNil(t, snap.BatterySOC)
	assert.Equal(t, 82.5, *snap.BatterySOC)
	require.NotNil(t, snap.SolarPowerW)
	assert.Equal(t, 3100.0, *snap.SolarPowerW)
	require.NotNil(t, snap.GridPowerW)
	assert.Equal(t, -1200.0, *snap.GridPowerW)
	assert.Nil(t, snap.BatteryPowerW)
	assert.Nil(t, snap.HeaterPowerW)
}

func TestSnapshotDropsStaleReadings(t *testing.T) {
	s := newTestSource()
	s.deliver(topicBatterySOC, "82.5")
	s.readings[topicBatterySOC] = reading{
		value: 82.5,
		at:    time.Now().Add(-3 * time.Minute),
	}

	snap := s.Snapshot(time.Now())
	assert.Nil(t, snap.BatterySOC)
}

func TestUnavailablePayloadClearsReading(t *testing.T) {
	s := newTestSource()
	s.deliver(topicSolarPower, "2500")
	require.NotNil(t, s.Snapshot(time.Now()).SolarPowerW)

	s.deliver(topicSolarPower, "unavailable")
	assert.Nil(t, s.Snapshot(time.Now()).SolarPowerW)
}

func TestStaticSource(t *testing.T) {
	s := NewStatic()
	now := time.Now()

	snap := s.Snapshot(now)
	assert.Nil(t, snap.BatterySOC)
	assert.Equal(t, now, snap.Timestamp)

	s.Set(types.TelemetrySnapshot{BatterySOC: types.Float64Ptr(50)})
	snap = s.Snapshot(now)
	require.NotNil(t, snap.BatterySOC)
	assert.Equal(t, 50.0, *snap.BatterySOC)
}
