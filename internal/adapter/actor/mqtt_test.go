package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/entity"
	"github.com/berfenger/e3dc2mqtt/internal/util"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drainSink(sink <-chan domain.PublishMessageRequest, wait time.Duration) map[string]domain.PublishMessageRequest {
	res := make(map[string]domain.PublishMessageRequest)
	timeout := time.After(wait)
	for {
		select {
		case m := <-sink:
			res[m.Topic] = m
		case <-timeout:
			return res
		}
	}
}

func TestMQTTActor(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	context := as.Root

	es := &eventstream.EventStream{}
	sink := make(chan domain.PublishMessageRequest, 64)

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, es, logger, sink) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp, ok := result.(domain.ActorHealthResponse)
	require.True(ok)
	assert.True(resp.Healthy)

	ids := domain.Identities{
		Wallboxes: []domain.WallboxIdentity{{Index: 0, Key: "wallbox-aabbccddeeff"}},
	}
	es.Publish(domain.SnapshotUpdatedEvent{
		Identities: ids,
		Snapshot: domain.Snapshot{
			domain.KEY_SOLAR_PRODUCTION:         3000.0,
			domain.KEY_PSET_POWERSAVING_ENABLED: true,
			"wallbox-aabbccddeeff-plug":         false,
		},
	})

	published := drainSink(sink, 500*time.Millisecond)
	require.Len(published, 3)

	solar := published["e3dc/sensor/"+domain.KEY_SOLAR_PRODUCTION+"/state"]
	assert.Equal("3000", solar.Payload)
	assert.False(solar.Retain)

	powersave := published["e3dc/switch/"+domain.KEY_PSET_POWERSAVING_ENABLED+"/state"]
	assert.Equal("on", powersave.Payload)
	assert.True(powersave.Retain)

	plug := published["e3dc/binary_sensor/wallbox-aabbccddeeff-plug/state"]
	assert.Equal("off", plug.Payload)

	// only changed keys are republished, removed keys are cleared
	es.Publish(domain.SnapshotUpdatedEvent{
		Identities: ids,
		Snapshot: domain.Snapshot{
			domain.KEY_SOLAR_PRODUCTION:         3100.0,
			domain.KEY_PSET_POWERSAVING_ENABLED: true,
		},
	})

	published = drainSink(sink, 500*time.Millisecond)
	require.Len(published, 2)
	assert.Equal("3100", published["e3dc/sensor/"+domain.KEY_SOLAR_PRODUCTION+"/state"].Payload)
	cleared, ok := published["e3dc/binary_sensor/wallbox-aabbccddeeff-plug/state"]
	require.True(ok)
	assert.Empty(cleared.Payload)
	assert.True(cleared.Retain)

	context.Stop(pid)
}

func TestMQTTActorDiscovery(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	sink := make(chan domain.PublishMessageRequest, 256)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTestMQTTActor(&cfg, &eventstream.EventStream{}, logger, sink)
	}))

	ids := domain.Identities{
		System:    domain.SystemIdentity{Model: "S10", SerialNumber: "S10-1"},
		Wallboxes: []domain.WallboxIdentity{{Index: 0, Key: "wallbox-aabbccddeeff"}},
	}
	snapshot := domain.Snapshot{
		domain.KEY_SOLAR_PRODUCTION: 3000.0,
		domain.KEY_SET_POWER_MODE:   "NORMAL",
	}
	req := entity.Build(entity.BridgeDevice(cfg.MQTT.BaseTopic), ids, snapshot).DiscoveryRequest()

	res, err := as.Root.RequestFuture(pid, req, 2*time.Second).Result()
	require.NoError(err)
	resp, ok := res.(domain.PublishDiscoveryResponse)
	require.True(ok)
	assert.False(resp.HasResponseError())

	published := drainSink(sink, 200*time.Millisecond)
	expected := len(req.Sensors) + len(req.Switches) + len(req.InputNumbers) + len(req.Buttons) + len(req.Selects)
	assert.Len(published, expected)
	for topic, m := range published {
		assert.Contains(topic, "homeassistant/")
		assert.True(m.Retain)
		assert.Contains(m.Payload, `"unique_id"`)
	}
}
