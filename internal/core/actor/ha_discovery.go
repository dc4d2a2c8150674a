package actor

import (
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/entity"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const healthRetryInterval = 5 * time.Second

// HADiscoveryActor publishes the Home Assistant discovery messages once the
// MQTT actor is up, and again whenever the set of snapshot keys or the
// sub-devices change.
type HADiscoveryActor struct {
	config          *config.Config
	behavior        actor.Behavior
	stash           *actorutil.Stash
	coordinator     *actor.PID
	mqttActor       *actor.PID
	eventStream     *eventstream.EventStream
	subscription    *eventstream.Subscription
	scheduler       *scheduler.TimerScheduler
	publishedKeys   []string
	publishedIds    string
	publishInFlight bool

	logger *zap.Logger
}

type checkHealth struct {
}

func NewHADiscoveryActor(config *config.Config, coordinator *actor.PID, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		coordinator: coordinator,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.requestHealth(ctx)
	case checkHealth:
		state.requestHealth(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@starting ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			state.logger.Info("hadiscovery: mqtt not ready, retrying", zap.Duration("in", healthRetryInterval))
			state.scheduler.SendOnce(healthRetryInterval, ctx.Self(), checkHealth{})
			return
		}
		state.subscribe(ctx)
		// seed from the current snapshot, events may have been missed
		future := ctx.RequestFuture(state.coordinator, domain.GetSnapshotRequest{}, 2*time.Second)
		ctx.ReenterAfter(future, func(res any, err error) {
			if err != nil {
				state.logger.Warn("hadiscovery: could not get the current snapshot", zap.Error(err))
				return
			}
			snap, ok := res.(domain.GetSnapshotResponse)
			if !ok || !snap.Connected {
				return
			}
			ctx.ReenterAfter(ctx.RequestFuture(state.coordinator, domain.GetIdentitiesRequest{}, 2*time.Second), func(res any, err error) {
				if idResp, ok := res.(domain.GetIdentitiesResponse); ok && err == nil {
					ctx.Send(ctx.Self(), domain.SnapshotUpdatedEvent{Snapshot: snap.Snapshot, Identities: idResp.Identities})
				}
			})
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SnapshotUpdatedEvent:
		if len(msg.Snapshot) == 0 || state.publishInFlight {
			return
		}
		keys := msg.Snapshot.Keys()
		ids := fmt.Sprintf("%+v", msg.Identities)
		if slices.Equal(keys, state.publishedKeys) && ids == state.publishedIds {
			return
		}
		state.logger.Info("hadiscovery: publishing discovery", zap.Int("keys", len(keys)))
		req := entity.Build(entity.BridgeDevice(state.config.MQTT.BaseTopic), msg.Identities, msg.Snapshot).DiscoveryRequest()
		state.publishInFlight = true
		future := ctx.RequestFuture(state.mqttActor, req, 10*time.Second)
		ctx.ReenterAfter(future, func(res any, err error) {
			state.publishInFlight = false
			if err == nil {
				if resp, ok := res.(domain.PublishDiscoveryResponse); ok && resp.HasResponseError() {
					err = resp.GetResponseError()
				}
			}
			if err != nil {
				state.logger.Error("hadiscovery: could not publish discovery", zap.Error(err))
				return
			}
			state.publishedKeys = keys
			state.publishedIds = ids
		})
	case domain.IdentitiesChangedEvent:
		// force a new publication on the next snapshot
		state.publishedIds = ""
	case *actor.Restarting:
		state.unsubscribe()
	case *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) requestHealth(ctx actor.Context) {
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			Reason:  err.Error(),
		}
	})
}

func (state *HADiscoveryActor) subscribe(ctx actor.Context) {
	if state.eventStream == nil {
		return
	}
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	state.subscription = state.eventStream.SubscribeWithPredicate(func(evt any) {
		root.Send(self, evt)
	}, func(evt any) bool {
		switch evt.(type) {
		case domain.SnapshotUpdatedEvent, domain.IdentitiesChangedEvent:
			return true
		}
		return false
	})
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
}
