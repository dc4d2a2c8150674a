package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	. "github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"go.uber.org/zap"
)

// PowerModeActor holds a power mode override by re-sending it to the device
// on a fixed interval. It reports every state change to its parent, which
// owns the snapshot.
type PowerModeActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	device      *actor.PID
	interval    time.Duration
	callTimeout time.Duration

	logger *zap.Logger
}

type powerModeTick struct {
}

type powerModeResult struct {
	reported *e3dc.PowerModeState
	err      error
}

func NewPowerModeActor(device *actor.PID, interval, callTimeout time.Duration, logger *zap.Logger) *PowerModeActor {
	act := &PowerModeActor{
		device:      device,
		interval:    interval,
		callTimeout: callTimeout,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POWER_MODE, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PMNormalState{
		actor: act,
	})
	return act
}

func (state *PowerModeActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Normal state

type PMNormalState struct {
	ActorState
	actor *PowerModeActor
}

func (state PMNormalState) Name() string {
	return "normal"
}

func (state PMNormalState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("powermode@normal started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(state.actor.health(state.Name()))
	case domain.PowerModeRequest:
		state.actor.logger.Sugar().Debugf("powermode@normal: request %s", msg.Mode)
		if msg.Mode == e3dc.PowerModeNormal {
			state.actor.report(ctx, e3dc.PowerModeNormal, nil, nil)
			ctx.Respond(domain.PowerModeResponse{})
			return
		}
		next := PMOverriddenState{
			actor:   state.actor,
			mode:    msg.Mode,
			value:   msg.Value,
			pending: ctx.Sender(),
		}
		state.actor.Become(next)
		next.OnEnterAction(ctx)
	case domain.PowerModeResetRequest, powerModeTick:
	case powerModeResult:
		// late answer of a NORMAL request
		if msg.err != nil {
			state.actor.logger.Warn("powermode@normal: reset to NORMAL failed", zap.Error(msg.err))
		}
	case *actor.Stopping:
	default:
		state.actor.logger.Debug("powermode@normal: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Overridden state

type PMOverriddenState struct {
	ActorState
	actor      *PowerModeActor
	mode       e3dc.PowerMode
	value      *int32
	pending    *actor.PID
	cancelTick scheduler.CancelFunc
}

func (state PMOverriddenState) Name() string {
	return "overridden"
}

func (state PMOverriddenState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(state.actor.health(state.Name()))
	case powerModeTick:
		state.actor.logger.Debug("powermode@overridden powerModeTick")
		state.OnEnterAction(ctx)
	case powerModeResult:
		if msg.err != nil {
			state.actor.logger.Warn("powermode@overridden: re-assertion failed, back to NORMAL", zap.Error(msg.err))
			state.respondPending(ctx, msg.err)
			state.toNormal(ctx)
			return
		}
		state.actor.report(ctx, state.mode, state.value, msg.reported)
		state.respondPending(ctx, nil)
		state.pending = nil
		state.cancelTick = state.actor.scheduler.RequestOnce(state.actor.interval, ctx.Self(), powerModeTick{})
		state.actor.Become(state)
	case domain.PowerModeRequest:
		state.actor.logger.Sugar().Debugf("powermode@overridden: request %s", msg.Mode)
		state.stopTick()
		if msg.Mode == e3dc.PowerModeNormal {
			state.toNormal(ctx)
			// leave the device in normal mode
			state.actor.BecomeStacked(PMAwaitDeviceState{
				actor: state.actor,
			}.OnEnterAction(ctx, e3dc.PowerModeNormal, 0))
			ctx.Respond(domain.PowerModeResponse{})
			return
		}
		state.respondPending(ctx, errors.New("superseded by a new power mode request"))
		next := PMOverriddenState{
			actor:   state.actor,
			mode:    msg.Mode,
			value:   msg.Value,
			pending: ctx.Sender(),
		}
		state.actor.Become(next)
		next.OnEnterAction(ctx)
	case domain.PowerModeResetRequest:
		state.actor.logger.Debug("powermode@overridden: reset")
		state.respondPending(ctx, domain.ErrNotConnected)
		state.toNormal(ctx)
	case *actor.Stopping:
		state.stopTick()
		state.actor.clearOnDevice(ctx)
	default:
		state.actor.logger.Debug("powermode@overridden: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state PMOverriddenState) OnEnterAction(ctx actor.Context) PMOverriddenState {
	state.actor.BecomeStacked(PMAwaitDeviceState{
		actor: state.actor,
	}.OnEnterAction(ctx, state.mode, state.valueOrZero()))
	return state
}

func (state PMOverriddenState) valueOrZero() int32 {
	if state.value == nil {
		return 0
	}
	return *state.value
}

func (state PMOverriddenState) stopTick() {
	if state.cancelTick != nil {
		state.cancelTick()
	}
}

func (state PMOverriddenState) respondPending(ctx actor.Context, err error) {
	if state.pending != nil {
		ctx.Send(state.pending, domain.PowerModeResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		})
	}
}

func (state PMOverriddenState) toNormal(ctx actor.Context) {
	state.stopTick()
	state.actor.report(ctx, e3dc.PowerModeNormal, nil, nil)
	state.actor.Become(PMNormalState{
		actor: state.actor,
	})
}

// Await device state. Must be stacked on top of the state that handles
// powerModeResult.

type PMAwaitDeviceState struct {
	ActorState
	actor *PowerModeActor
}

func (state PMAwaitDeviceState) Name() string {
	return "awaitDevice"
}

func (state PMAwaitDeviceState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.DeviceCallResponse:
		ctx.CancelReceiveTimeout()
		result := powerModeResult{err: msg.GetResponseError()}
		if reported, ok := msg.Result.(*e3dc.PowerModeState); ok {
			result.reported = reported
		}
		state.actor.logger.Debug("powermode@awaitDevice: DeviceCallResponse", zap.Error(result.err))
		ctx.Send(ctx.Self(), result)
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.CancelReceiveTimeout()
		state.actor.logger.Debug("powermode@awaitDevice: ReceiveTimeout")
		ctx.Send(ctx.Self(), powerModeResult{
			err: domain.NewDeviceError(domain.ErrUnavailable, "set_power_mode", errors.New("receive timeout")),
		})
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(state.actor.health(state.Name()))
	case *actor.Stopping:
		state.actor.clearOnDevice(ctx)
	default:
		state.actor.logger.Debug("powermode@awaitDevice: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// OnEnterAction sends the mode and reads back the mode reported by the device.
func (state PMAwaitDeviceState) OnEnterAction(ctx actor.Context, mode e3dc.PowerMode, value int32) PMAwaitDeviceState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.device, domain.DeviceCallRequest{
		Op: "set_power_mode",
		Call: func(p port.DeviceProxy) (any, error) {
			if err := p.SetPowerMode(mode, value); err != nil {
				return nil, err
			}
			return p.PowerMode()
		},
	}, state.actor.callTimeout),
		func(err error) any {
			return domain.DeviceCallResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	ctx.SetReceiveTimeout(state.actor.callTimeout + time.Second)
	return state
}

// Other actor function helpers

func (state *PowerModeActor) health(name string) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_POWER_MODE,
		Healthy: true,
		State:   name,
	}
}

func (state *PowerModeActor) report(ctx actor.Context, mode e3dc.PowerMode, value *int32, reported *e3dc.PowerModeState) {
	if parent := ctx.Parent(); parent != nil {
		ctx.Send(parent, domain.PowerModeStateChanged{
			Mode:     mode,
			Value:    value,
			Reported: reported,
		})
	}
}

// clearOnDevice is a best effort NORMAL request used on shutdown.
func (state *PowerModeActor) clearOnDevice(ctx actor.Context) {
	state.logger.Debug("powermode: clearing override")
	ctx.Send(state.device, domain.DeviceCallRequest{
		Op: "set_power_mode",
		Call: func(p port.DeviceProxy) (any, error) {
			return nil, p.SetPowerMode(e3dc.PowerModeNormal, 0)
		},
	})
}
