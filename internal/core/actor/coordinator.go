package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/core/service"
	. "github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"go.uber.org/zap"
)

const (
	reasonConnecting     = "connecting"
	reasonReauthRequired = "reauth_required"

	minConnectBackoff = time.Second
	maxConnectBackoff = 60 * time.Second
)

// errSessionClosed is returned to continuations of device calls issued
// before the device session was lost.
var errSessionClosed = fmt.Errorf("%w: device session closed", domain.ErrNotConnected)

// CoordinatorActor owns the snapshot. Every device call goes through the
// device actor; continuations run on this actor, so the snapshot, the write
// guards and the identities have a single writer.
type CoordinatorActor struct {
	ActorWithStates
	config      config.Config
	device      *actor.PID
	powerMode   *actor.PID
	scheduler   *scheduler.TimerScheduler
	eventStream *eventstream.EventStream
	callTimeout time.Duration
	now         func() time.Time

	snapshot   domain.Snapshot
	identities domain.Identities
	session    uint64
	connected  bool
	reason     string

	powerSettingsInFlight   bool
	wallboxSettingsInFlight bool
	psetEpoch               uint64
	wallboxEpoch            uint64

	batteriesEnabled bool
	batteryConfigs   []e3dc.BatteryConfig
	identifying      bool
	identifyWaiters  []func(error)

	tzOffset      int
	nextStats     time.Time
	backoff       time.Duration
	cancelConnect scheduler.CancelFunc

	logger *zap.Logger
}

type connectTick struct {
}

func NewCoordinatorActor(config config.Config, device *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		config:           config,
		device:           device,
		eventStream:      eventStream,
		callTimeout:      3 * config.Device.CallTimeout(),
		now:              time.Now,
		snapshot:         domain.Snapshot{},
		batteriesEnabled: config.Coordinator.CreateBatteryDevices,
		backoff:          minConnectBackoff,
		reason:           reasonConnecting,
		logger:           ActorLogger(domain.ACTOR_ID_COORDINATOR, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CStartingState{
		actor: act,
	})
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type CStartingState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CStartingState) Name() string {
	return "starting"
}

func (state CStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("coordinator@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		pid, err := state.actor.startPowerModeActor(ctx)
		if err != nil {
			panic(err)
		}
		state.actor.powerMode = pid
		next := CConnectingState{actor: state.actor}
		state.actor.Become(next)
		next.OnEnterAction(ctx)
	default:
		state.actor.logger.Debug("coordinator@starting: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Connecting state

type CConnectingState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CConnectingState) Name() string {
	return "connecting"
}

func (state CConnectingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case connectTick:
		state.actor.logger.Debug("coordinator@connecting connectTick")
		state.actor.connect(ctx)
	case domain.CommandRequest:
		state.actor.respondCommand(ctx, msg, domain.ErrNotConnected)
	case domain.RefreshRequest:
		state.actor.logger.Debug("coordinator@connecting: not connected, ignoring refresh")
	default:
		if !state.actor.receiveCommon(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@connecting: recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

func (state CConnectingState) OnEnterAction(ctx actor.Context) CConnectingState {
	state.actor.connect(ctx)
	return state
}

// Idle state

type CIdleState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CIdleState) Name() string {
	return "idle"
}

func (state CIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RefreshRequest:
		state.actor.logger.Debug("coordinator@idle RefreshRequest")
		next := CRefreshingState{actor: state.actor}
		state.actor.Become(next)
		next.OnEnterAction(ctx)
	case domain.CommandRequest:
		state.actor.dispatch(ctx, msg)
	default:
		if !state.actor.receiveCommon(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Refreshing state

type CRefreshingState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CRefreshingState) Name() string {
	return "refreshing"
}

func (state CRefreshingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RefreshRequest:
		state.actor.logger.Debug("coordinator@refreshing: refresh already running, dropped")
	case domain.CommandRequest:
		state.actor.dispatch(ctx, msg)
	default:
		if !state.actor.receiveCommon(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@refreshing: recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

func (state CRefreshingState) OnEnterAction(ctx actor.Context) CRefreshingState {
	state.actor.refresh(ctx, func() {
		state.actor.publishSnapshot()
		state.actor.Become(CIdleState{actor: state.actor})
	})
	return state
}

// Disconnected state. Only new credentials, that is a restart, leave it.

type CDisconnectedState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CDisconnectedState) Name() string {
	return "disconnected"
}

func (state CDisconnectedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.CommandRequest:
		state.actor.respondCommand(ctx, msg, domain.ErrAuthFailure)
	case domain.RefreshRequest, connectTick:
	default:
		if !state.actor.receiveCommon(ctx, state.Name()) {
			state.actor.logger.Debug("coordinator@disconnected: recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Other actor function helpers

// receiveCommon handles the messages served the same way in every state.
func (state *CoordinatorActor) receiveCommon(ctx actor.Context, stateName string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_COORDINATOR,
			Healthy: state.connected,
			State:   stateName,
			Reason:  state.reason,
		})
	case domain.GetSnapshotRequest:
		ForRequest(msg).Respond(ctx, domain.GetSnapshotResponse{
			Snapshot:  state.snapshot.Copy(),
			Connected: state.connected,
		})
	case domain.GetIdentitiesRequest:
		ForRequest(msg).Respond(ctx, domain.GetIdentitiesResponse{
			Identities: state.identities.Copy(),
			Connected:   state.connected,
		})
	case domain.DiagnosticsRequest:
		state.diagnostics(ctx, msg)
	case domain.PowerModeStateChanged:
		state.logger.Sugar().Debugf("coordinator@%s: power mode %s", stateName, msg.Mode)
		state.snapshot.Merge(service.PowerModeValues(msg.Mode, msg.Value))
		if msg.Reported != nil {
			state.snapshot[domain.KEY_POWER_MODE] = msg.Reported.Mode.String()
		}
		state.publishSnapshot()
	case *actor.Stopping:
		state.logger.Debug("coordinator stopping")
		if state.cancelConnect != nil {
			state.cancelConnect()
		}
	case *actor.Terminated:
		state.logger.Debug("coordinator: child terminated", zap.String("pid", msg.Who.Id))
	default:
		return false
	}
	return true
}

func (state *CoordinatorActor) startPowerModeActor(ctx actor.Context) (*actor.PID, error) {
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPowerModeActor(state.device, state.config.Coordinator.PowerModeInterval(), state.callTimeout, state.logger)
	})
	return ctx.SpawnNamed(props, domain.ACTOR_ID_POWER_MODE)
}

// callDevice runs fn on the device actor and continues with cont on this
// actor. Results of a previous session are replaced by errSessionClosed.
func callDevice[T any](state *CoordinatorActor, ctx actor.Context, op string, fn func(port.DeviceProxy) (T, error), cont func(T, error)) {
	session := state.session
	future := ctx.RequestFuture(state.device, domain.DeviceCallRequest{
		Op: op,
		Call: func(p port.DeviceProxy) (any, error) {
			v, err := fn(p)
			return v, err
		},
	}, state.callTimeout)
	ctx.ReenterAfter(future, func(res any, err error) {
		var zero T
		if session != state.session {
			cont(zero, errSessionClosed)
			return
		}
		if err != nil {
			cont(zero, domain.NewDeviceError(domain.ErrUnavailable, op, err))
			return
		}
		resp, ok := res.(domain.DeviceCallResponse)
		if !ok {
			cont(zero, domain.NewDeviceError(domain.ErrFatal, op, fmt.Errorf("unexpected response %T", res)))
			return
		}
		if resp.HasResponseError() {
			cont(zero, resp.GetResponseError())
			return
		}
		v, _ := resp.Result.(T)
		cont(v, nil)
	})
}

func (state *CoordinatorActor) publishSnapshot() {
	state.eventStream.Publish(domain.SnapshotUpdatedEvent{
		Snapshot:   state.snapshot.Copy(),
		Identities: state.identities.Copy(),
	})
}

func (state *CoordinatorActor) publishIdentities() {
	state.eventStream.Publish(domain.IdentitiesChangedEvent{
		Identities: state.identities.Copy(),
	})
}

func (state *CoordinatorActor) publishConnectionState() {
	state.eventStream.Publish(domain.ConnectionStateEvent{
		Connected: state.connected,
		Reason:    state.reason,
	})
}

// authLost parks the coordinator until it gets new credentials.
func (state *CoordinatorActor) authLost(ctx actor.Context, err error) {
	state.logger.Error("coordinator: device rejected the credentials, re-authentication required", zap.Error(err))
	state.dropSession(ctx, reasonReauthRequired)
	if state.cancelConnect != nil {
		state.cancelConnect()
	}
	state.Become(CDisconnectedState{actor: state})
}

// connectionLost starts a new connect sequence.
func (state *CoordinatorActor) connectionLost(ctx actor.Context, err error) {
	state.logger.Warn("coordinator: device connection lost", zap.Error(err))
	state.dropSession(ctx, fmt.Sprintf("%s: %s", reasonConnecting, err))
	next := CConnectingState{actor: state}
	state.Become(next)
	next.OnEnterAction(ctx)
}

func (state *CoordinatorActor) dropSession(ctx actor.Context, reason string) {
	state.session++
	state.connected = false
	state.reason = reason
	state.powerSettingsInFlight = false
	state.wallboxSettingsInFlight = false
	state.identifying = false
	waiters := state.identifyWaiters
	state.identifyWaiters = nil
	for _, w := range waiters {
		w(errSessionClosed)
	}
	ctx.Send(state.powerMode, domain.PowerModeResetRequest{})
	state.publishConnectionState()
}

// handleDeviceError decides what a failed device call means for the
// session. It returns false when the caller must stop.
func (state *CoordinatorActor) handleDeviceError(ctx actor.Context, err error) bool {
	switch {
	case errors.Is(err, errSessionClosed):
		return false
	case domain.IsAuthFailure(err):
		state.authLost(ctx, err)
		return false
	case errors.Is(err, domain.ErrNotConnected):
		state.connectionLost(ctx, err)
		return false
	}
	return true
}
