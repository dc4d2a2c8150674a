package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	adactor "github.com/berfenger/e3dc2mqtt/internal/adapter/actor"
	"github.com/berfenger/e3dc2mqtt/internal/adapter/proxy"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// spawnTestPowerMode spawns the power mode actor under a parent that collects
// its state changes.
func spawnTestPowerMode(t *testing.T, client *e3dc.TestClient, interval time.Duration) (*actor.ActorSystem, *actor.PID, chan domain.PowerModeStateChanged) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	p := proxy.NewE3DCProxy(client, e3dc.ConnectConfig{Host: "test"}, logger)
	device := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewDeviceActor(p, 2*time.Second, logger)
	}))

	changes := make(chan domain.PowerModeStateChanged, 64)
	pids := make(chan *actor.PID, 1)
	as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			pids <- ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
				return NewPowerModeActor(device, interval, 2*time.Second, logger)
			}))
		case domain.PowerModeStateChanged:
			changes <- msg
		}
	}))
	t.Cleanup(as.Shutdown)
	return as, <-pids, changes
}

func requestPowerMode(t *testing.T, as *actor.ActorSystem, pid *actor.PID, mode e3dc.PowerMode, value *int32) error {
	res, err := as.Root.RequestFuture(pid, domain.PowerModeRequest{Mode: mode, Value: value}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.PowerModeResponse)
	require.True(t, ok)
	return resp.GetResponseError()
}

func waitPowerModeChange(t *testing.T, changes chan domain.PowerModeStateChanged, mode e3dc.PowerMode) domain.PowerModeStateChanged {
	timeout := time.After(3 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Mode == mode {
				return c
			}
		case <-timeout:
			t.Fatalf("no change to %s", mode)
			return domain.PowerModeStateChanged{}
		}
	}
}

func powerModeState(t *testing.T, as *actor.ActorSystem, pid *actor.PID) string {
	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.ActorHealthResponse).State
}

func TestPowerModeOverrideIsReasserted(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := e3dc.NewTestClient()
	as, pid, changes := spawnTestPowerMode(t, client, 100*time.Millisecond)

	value := int32(2000)
	require.NoError(requestPowerMode(t, as, pid, e3dc.PowerModeCharge, &value))
	change := waitPowerModeChange(t, changes, e3dc.PowerModeCharge)
	require.NotNil(change.Value)
	assert.Equal(int32(2000), *change.Value)
	require.NotNil(change.Reported)
	assert.Equal(e3dc.PowerModeState{Mode: e3dc.PowerModeCharge, Value: 2000}, *change.Reported)

	require.Eventually(func() bool {
		return len(client.Calls("SetPowerMode")) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	for _, call := range client.Calls("SetPowerMode") {
		assert.Equal(e3dc.PowerModeCharge, call.Args[0])
		assert.Equal(int32(2000), call.Args[1])
	}
	assert.Contains([]string{"overridden", "awaitDevice"}, powerModeState(t, as, pid))
}

func TestPowerModeNormalStopsReassertion(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := e3dc.NewTestClient()
	as, pid, changes := spawnTestPowerMode(t, client, 100*time.Millisecond)

	value := int32(800)
	require.NoError(requestPowerMode(t, as, pid, e3dc.PowerModeDischarge, &value))
	waitPowerModeChange(t, changes, e3dc.PowerModeDischarge)

	require.NoError(requestPowerMode(t, as, pid, e3dc.PowerModeNormal, nil))
	change := waitPowerModeChange(t, changes, e3dc.PowerModeNormal)
	assert.Nil(change.Value)

	require.Eventually(func() bool {
		calls := client.Calls("SetPowerMode")
		return calls[len(calls)-1].Args[0] == e3dc.PowerModeNormal
	}, 2*time.Second, 10*time.Millisecond)
	n := len(client.Calls("SetPowerMode"))
	time.Sleep(400 * time.Millisecond)
	assert.Len(client.Calls("SetPowerMode"), n)
	assert.Equal("normal", powerModeState(t, as, pid))
}

func TestPowerModeNormalWhileNormal(t *testing.T) {

	client := e3dc.NewTestClient()
	as, pid, changes := spawnTestPowerMode(t, client, 100*time.Millisecond)

	require.NoError(t, requestPowerMode(t, as, pid, e3dc.PowerModeNormal, nil))
	waitPowerModeChange(t, changes, e3dc.PowerModeNormal)
	assert.Empty(t, client.Calls("SetPowerMode"))
}

func TestPowerModeFailureFallsBackToNormal(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := e3dc.NewTestClient()
	client.FailWith("SetPowerMode", e3dc.ErrSend)
	as, pid, changes := spawnTestPowerMode(t, client, 100*time.Millisecond)

	value := int32(1500)
	err := requestPowerMode(t, as, pid, e3dc.PowerModeCharge, &value)
	assert.ErrorIs(err, domain.ErrSendFailure)
	waitPowerModeChange(t, changes, e3dc.PowerModeNormal)
	require.Eventually(func() bool {
		return powerModeState(t, as, pid) == "normal"
	}, time.Second, 10*time.Millisecond)
}

func TestPowerModeReassertionFailureFallsBackToNormal(t *testing.T) {

	require := require.New(t)

	client := e3dc.NewTestClient()
	as, pid, changes := spawnTestPowerMode(t, client, 100*time.Millisecond)

	require.NoError(requestPowerMode(t, as, pid, e3dc.PowerModeIdle, nil))
	change := waitPowerModeChange(t, changes, e3dc.PowerModeIdle)
	require.Nil(change.Value)

	client.FailWith("SetPowerMode", e3dc.ErrNotAvailable)
	waitPowerModeChange(t, changes, e3dc.PowerModeNormal)
	require.Eventually(func() bool {
		return powerModeState(t, as, pid) == "normal"
	}, time.Second, 10*time.Millisecond)
}

func TestPowerModeReset(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := e3dc.NewTestClient()
	as, pid, changes := spawnTestPowerMode(t, client, 200*time.Millisecond)

	value := int32(3000)
	require.NoError(requestPowerMode(t, as, pid, e3dc.PowerModeChargeGrid, &value))
	waitPowerModeChange(t, changes, e3dc.PowerModeChargeGrid)

	as.Root.Send(pid, domain.PowerModeResetRequest{})
	waitPowerModeChange(t, changes, e3dc.PowerModeNormal)

	// reset does not talk to the device
	n := len(client.Calls("SetPowerMode"))
	time.Sleep(500 * time.Millisecond)
	calls := client.Calls("SetPowerMode")
	assert.Len(calls, n)
	assert.Equal(e3dc.PowerModeChargeGrid, calls[len(calls)-1].Args[0])
}

func TestPowerModeRequestsAreSerialized(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := e3dc.NewTestClient()
	client.DelayOp("SetPowerMode", 200*time.Millisecond)
	as, pid, changes := spawnTestPowerMode(t, client, time.Minute)

	charge := int32(1000)
	first := as.Root.RequestFuture(pid, domain.PowerModeRequest{Mode: e3dc.PowerModeCharge, Value: &charge}, 5*time.Second)
	time.Sleep(50 * time.Millisecond)
	discharge := int32(500)
	require.NoError(requestPowerMode(t, as, pid, e3dc.PowerModeDischarge, &discharge))

	res, err := first.Result()
	require.NoError(err)
	assert.NoError(res.(domain.PowerModeResponse).GetResponseError())

	change := waitPowerModeChange(t, changes, e3dc.PowerModeDischarge)
	require.NotNil(change.Reported)
	assert.Equal(e3dc.PowerModeDischarge, change.Reported.Mode)

	calls := client.Calls("SetPowerMode")
	require.Len(calls, 2)
	assert.Equal(e3dc.PowerModeCharge, calls[0].Args[0])
	assert.Equal(e3dc.PowerModeDischarge, calls[1].Args[0])
}
