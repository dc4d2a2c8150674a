package actor

import (
	"strings"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	adactor "github.com/berfenger/e3dc2mqtt/internal/adapter/actor"
	"github.com/berfenger/e3dc2mqtt/internal/adapter/proxy"
	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/entity"
	"github.com/berfenger/e3dc2mqtt/internal/mqtt"
	"github.com/berfenger/e3dc2mqtt/internal/util"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testMaster struct {
	t      *testing.T
	as     *actor.ActorSystem
	client *e3dc.TestClient
	pid    *actor.PID
	sink   chan domain.PublishMessageRequest
}

func startTestMaster(t *testing.T, cfgFn func(*config.Config), clientFn func(*e3dc.TestClient)) *testMaster {
	cfg := util.LoadTestConfig()
	if cfgFn != nil {
		cfgFn(&cfg)
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	client := e3dc.NewTestClient()
	if clientFn != nil {
		clientFn(client)
	}
	sink := make(chan domain.PublishMessageRequest, 4096)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, nil, func() *adactor.DeviceActor {
			return adactor.NewDeviceActor(proxy.NewE3DCProxy(client, cfg.Device.ConnectConfig(), logger), cfg.Device.CallTimeout(), logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger, sink)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(as.Shutdown)
	return &testMaster{t: t, as: as, client: client, pid: pid, sink: sink}
}

func (tm *testMaster) health() domain.ActorHealthResponse {
	res, err := tm.as.Root.RequestFuture(tm.pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(tm.t, err)
	resp, ok := res.(domain.ActorHealthResponse)
	require.True(tm.t, ok)
	return resp
}

func (tm *testMaster) snapshot() domain.Snapshot {
	res, err := tm.as.Root.RequestFuture(tm.pid, domain.GetSnapshotRequest{}, 2*time.Second).Result()
	require.NoError(tm.t, err)
	return res.(domain.GetSnapshotResponse).Snapshot
}

func (tm *testMaster) waitRefreshed() {
	require.Eventually(tm.t, func() bool {
		return tm.snapshot()[domain.KEY_DB_DAY_STARTTS] != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMasterActor(t *testing.T) {

	assert := assert.New(t)

	tm := startTestMaster(t, nil, nil)

	require.Eventually(t, func() bool {
		return tm.health().Healthy
	}, 5*time.Second, 100*time.Millisecond)

	healthResp := tm.health()
	assert.Equal(domain.ACTOR_ID_MASTER, healthResp.Id)
	assert.Empty(healthResp.Reason)
}

func TestMasterReportsUnhealthyChildren(t *testing.T) {

	tm := startTestMaster(t, nil, func(client *e3dc.TestClient) {
		client.FailWith("Connect", e3dc.ErrAuthentication)
	})

	// the coordinator never connects with rejected credentials
	time.Sleep(500 * time.Millisecond)
	resp := tm.health()
	assert.False(t, resp.Healthy)
	assert.Contains(t, resp.Reason, domain.ACTOR_ID_COORDINATOR)
}

func TestMasterForwardsRequests(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	tm := startTestMaster(t, nil, nil)
	tm.waitRefreshed()

	res, err := tm.as.Root.RequestFuture(tm.pid, domain.GetIdentitiesRequest{}, 2*time.Second).Result()
	require.NoError(err)
	ids, ok := res.(domain.GetIdentitiesResponse)
	require.True(ok)
	assert.True(ids.Connected)
	assert.Len(ids.Identities.Wallboxes, 1)

	res, err = tm.as.Root.RequestFuture(tm.pid, domain.CommandRequest{Command: domain.SetPowersave{Enabled: true}}, 5*time.Second).Result()
	require.NoError(err)
	cmdResp, ok := res.(domain.CommandResponse)
	require.True(ok)
	assert.NoError(cmdResp.GetResponseError())
	assert.Equal(true, tm.snapshot()[domain.KEY_PSET_POWERSAVING_ENABLED])

	res, err = tm.as.Root.RequestFuture(tm.pid, domain.DiagnosticsRequest{}, 5*time.Second).Result()
	require.NoError(err)
	diag, ok := res.(domain.DiagnosticsResponse)
	require.True(ok)
	assert.NotEmpty(diag.Report)
}

func TestMasterParsedCommands(t *testing.T) {

	assert := assert.New(t)

	tm := startTestMaster(t, nil, nil)
	tm.waitRefreshed()

	tm.as.Root.Send(tm.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Platform: entity.PLATFORM_SWITCH,
		Id:       wallboxKey + "-sun-mode",
		Payload:  "off",
	}})
	assert.Eventually(func() bool {
		return tm.snapshot()[wallboxKey+"-sun-mode"] == false
	}, 5*time.Second, 20*time.Millisecond)

	tm.as.Root.Send(tm.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Platform: mqtt.PLATFORM_SERVICE,
		Id:       entity.SERVICE_MANUAL_CHARGE,
		Payload:  `{"charge_amount": 500}`,
	}})
	assert.Eventually(func() bool {
		return len(tm.client.Calls("StartManualCharge")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// invalid commands never reach the device
	calls := len(tm.client.Calls("SetPowerSave"))
	tm.as.Root.Send(tm.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Platform: entity.PLATFORM_SWITCH,
		Id:       domain.KEY_PSET_POWERSAVING_ENABLED,
		Payload:  "maybe",
	}})
	time.Sleep(200 * time.Millisecond)
	assert.Len(tm.client.Calls("SetPowerSave"), calls)
}

func TestMasterPublishesDiscovery(t *testing.T) {

	tm := startTestMaster(t, func(cfg *config.Config) {
		cfg.MQTT.HADiscoveryEnable = true
	}, nil)
	tm.waitRefreshed()

	found := false
	timeout := time.After(5 * time.Second)
	for !found {
		select {
		case m := <-tm.sink:
			found = strings.HasPrefix(m.Topic, "homeassistant/") && strings.Contains(m.Topic, wallboxKey+"-sun-mode")
		case <-timeout:
			t.Fatal("no discovery message published")
		}
	}
}
