package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/adapter/proxy"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestDevice(t *testing.T, client *e3dc.TestClient, timeout time.Duration) (*actor.ActorSystem, *actor.PID) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	p := proxy.NewE3DCProxy(client, e3dc.ConnectConfig{Host: "test"}, logger)
	props := actor.PropsFromProducer(func() actor.Actor { return NewDeviceActor(p, timeout, logger) })
	return as, as.Root.Spawn(props)
}

func TestDeviceActorCall(t *testing.T) {

	require := require.New(t)

	client := e3dc.NewTestClient()
	as, pid := spawnTestDevice(t, client, 2*time.Second)
	defer as.Shutdown()

	res, err := as.Root.RequestFuture(pid, domain.DeviceCallRequest{
		Op: "poll",
		Call: func(p port.DeviceProxy) (any, error) {
			return p.Poll()
		},
	}, 5*time.Second).Result()
	require.NoError(err)

	resp, ok := res.(domain.DeviceCallResponse)
	require.True(ok)
	require.False(resp.HasResponseError())
	poll, ok := resp.Result.(*e3dc.PollData)
	require.True(ok)
	require.Equal(3000.0, poll.Production.Solar)
}

func TestDeviceActorClassifiesErrors(t *testing.T) {

	client := e3dc.NewTestClient()
	client.FailWith("Poll", e3dc.ErrSend)
	as, pid := spawnTestDevice(t, client, 2*time.Second)
	defer as.Shutdown()

	res, err := as.Root.RequestFuture(pid, domain.DeviceCallRequest{
		Op: "poll",
		Call: func(p port.DeviceProxy) (any, error) {
			return p.Poll()
		},
	}, 5*time.Second).Result()
	assert.NoError(t, err)

	resp := res.(domain.DeviceCallResponse)
	assert.True(t, errors.Is(resp.GetResponseError(), domain.ErrSendFailure))
}

func TestDeviceActorTimeoutAndQueue(t *testing.T) {

	require := require.New(t)

	client := e3dc.NewTestClient()
	client.DelayOp("Poll", 1*time.Second)
	as, pid := spawnTestDevice(t, client, 200*time.Millisecond)
	defer as.Shutdown()

	slow := as.Root.RequestFuture(pid, domain.DeviceCallRequest{
		Op:   "poll",
		Call: func(p port.DeviceProxy) (any, error) { return p.Poll() },
	}, 5*time.Second)
	// queued behind the slow call
	fast := as.Root.RequestFuture(pid, domain.DeviceCallRequest{
		Op:   "timezone",
		Call: func(p port.DeviceProxy) (any, error) { return p.TimeZone() },
	}, 5*time.Second)

	res, err := slow.Result()
	require.NoError(err)
	require.True(errors.Is(res.(domain.DeviceCallResponse).GetResponseError(), domain.ErrUnavailable))

	res, err = fast.Result()
	require.NoError(err)
	require.Equal("Europe/Berlin", res.(domain.DeviceCallResponse).Result)

	health, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(err)
	require.True(health.(domain.ActorHealthResponse).Healthy)
}

func TestDeviceActorRecoversPanickingCall(t *testing.T) {

	require := require.New(t)

	client := e3dc.NewTestClient()
	as, pid := spawnTestDevice(t, client, 2*time.Second)
	defer as.Shutdown()

	res, err := as.Root.RequestFuture(pid, domain.DeviceCallRequest{
		Op: "broken",
		Call: func(p port.DeviceProxy) (any, error) {
			panic("decoder bug")
		},
	}, 5*time.Second).Result()
	require.NoError(err)
	require.True(errors.Is(res.(domain.DeviceCallResponse).GetResponseError(), domain.ErrUnavailable))

	// the actor keeps serving calls
	res, err = as.Root.RequestFuture(pid, domain.DeviceCallRequest{
		Op:   "timezone",
		Call: func(p port.DeviceProxy) (any, error) { return p.TimeZone() },
	}, 5*time.Second).Result()
	require.NoError(err)
	require.Equal("Europe/Berlin", res.(domain.DeviceCallResponse).Result)
}
