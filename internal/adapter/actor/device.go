package actor

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"go.uber.org/zap"
)

// DeviceActor runs blocking device calls one at a time, outside of the
// callers. Requests received while a call is running are stashed.
type DeviceActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	proxy    port.DeviceProxy
	timeout  time.Duration
	current  string
	failures uint32
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewDeviceActor(proxy port.DeviceProxy, timeout time.Duration, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		proxy:    proxy,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_DEVICE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@starting started")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.disconnect()
	default:
		state.logger.Debug("device@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("device@default: ActorHealthRequest")
		ctx.Respond(state.health("idle"))
	case domain.DeviceCallRequest:
		state.logger.Debug("device@default: DeviceCallRequest", zap.String("op", msg.Op))
		state.runCall(ctx, msg)
		state.behavior.BecomeStacked(state.WaitingDevice)
	case *actor.Stopping:
		state.disconnect()
	default:
		state.logger.Debug("device@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("device@waitingDevice backgroundTaskResult", zap.String("op", state.current))
		if resp, ok := msg.message.(domain.DeviceCallResponse); ok && resp.HasResponseError() {
			state.failures++
		} else {
			state.failures = 0
		}
		state.current = ""
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("busy"))
	case *actor.Stopping:
		state.disconnect()
	default:
		state.logger.Debug("device@waitingDevice stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) runCall(ctx actor.Context, req domain.DeviceCallRequest) {
	sender := actorutil.ForRequest(req).ReplyTo(ctx)
	state.current = req.Op
	proxy := state.proxy
	actorutil.NewBackgroundTaskNoError(ctx, func() *backgroundTaskResult {
		result, err := req.Call(proxy)
		return &backgroundTaskResult{
			message: domain.DeviceCallResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
				Op:     req.Op,
				Result: result,
			},
			replyTo: sender,
		}
	}).Recover(func(err error) backgroundTaskResult {
		state.logger.Warn("device call failed", zap.String("op", req.Op), zap.Error(err))
		return backgroundTaskResult{
			message: domain.DeviceCallResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: domain.NewDeviceError(domain.ErrUnavailable, req.Op, err),
				},
				Op: req.Op,
			},
			replyTo: sender,
		}
	}).WithTimeout(state.timeout).PipeTo(ctx.Self())
}

func (state *DeviceActor) health(name string) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_DEVICE,
		Healthy: true,
		State:   name,
	}
}

func (state *DeviceActor) disconnect() {
	if err := state.proxy.Disconnect(); err != nil {
		state.logger.Debug("device disconnect", zap.Error(err))
	}
}
