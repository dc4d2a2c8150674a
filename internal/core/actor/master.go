package actor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/e3dc2mqtt/internal/adapter/actor"
	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/entity"
	"github.com/berfenger/e3dc2mqtt/internal/mqtt"
	. "github.com/berfenger/e3dc2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type DeviceActorProvider func() *adactor.DeviceActor

// MasterOfPuppetsActor supervises the device, coordinator, MQTT and
// discovery actors and is the single entry point for the outer surfaces.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	deviceActor         *actor.PID
	coordinatorActor    *actor.PID
	mqttActor           *actor.PID
	deviceActorProvider DeviceActorProvider
	mqttActorProvider   MQTTActorProvider
	logger              *zap.Logger
}

type healthCheckResult struct {
	expected  []string
	healthy   map[string]bool
	reasons   map[string]string
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, eventStream *eventstream.EventStream, deviceActorProvider DeviceActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         eventStream,
		deviceActorProvider: deviceActorProvider,
		mqttActorProvider:   mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{
			expected: []string{domain.ACTOR_ID_DEVICE, domain.ACTOR_ID_COORDINATOR, domain.ACTOR_ID_MQTT},
		}
		state.currentHealthCheck.reset()

		// start Device child
		deviceActorPID, err := state.startDeviceActor(ctx)
		if err != nil {
			panic(err)
		}
		state.deviceActor = deviceActorPID

		// start Coordinator child
		coordinatorActorPID, err := state.startCoordinatorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.coordinatorActor = coordinatorActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ForRequest(msg).ReplyTo(ctx)
		state.requestHealth(ctx, state.deviceActor, domain.ACTOR_ID_DEVICE)
		state.requestHealth(ctx, state.coordinatorActor, domain.ACTOR_ID_COORDINATOR)
		state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetSnapshotRequest, domain.GetIdentitiesRequest, domain.DiagnosticsRequest, domain.CommandRequest, domain.RefreshRequest:
		ctx.Forward(state.coordinatorActor)
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			state.handleParsedCommand(ctx, *msg.Command)
		}
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_DEVICE) {
			state.logger.Error("master@default device actor terminated")
			panic(errors.New("device terminated"))
		}
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if !msg.Healthy {
			state.currentHealthCheck.reasons[msg.Id] = msg.Reason
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
			Reason:  err.Error(),
		}
	})
}

// handleParsedCommand turns an MQTT command into a coordinator command.
// Entity commands are resolved against the current snapshot.
func (state *MasterOfPuppetsActor) handleParsedCommand(ctx actor.Context, cmd mqtt.ParsedMQTTCommand) {
	if cmd.Platform == mqtt.PLATFORM_SERVICE {
		command, err := entity.ParseService(cmd.Id, []byte(cmd.Payload))
		if err != nil {
			state.logger.Warn("master: invalid service call", zap.String("service", cmd.Id), zap.Error(err))
			return
		}
		state.sendCommand(ctx, command)
		return
	}
	snapshotFuture := ctx.RequestFuture(state.coordinatorActor, domain.GetSnapshotRequest{}, 2*time.Second)
	ctx.ReenterAfter(snapshotFuture, func(res any, err error) {
		snap, ok := res.(domain.GetSnapshotResponse)
		if err != nil || !ok {
			state.logger.Warn("master: could not resolve command", zap.String("id", cmd.Id), zap.Error(err))
			return
		}
		idFuture := ctx.RequestFuture(state.coordinatorActor, domain.GetIdentitiesRequest{}, 2*time.Second)
		ctx.ReenterAfter(idFuture, func(res any, err error) {
			ids, ok := res.(domain.GetIdentitiesResponse)
			if err != nil || !ok {
				state.logger.Warn("master: could not resolve command", zap.String("id", cmd.Id), zap.Error(err))
				return
			}
			command, err := entity.NewCatalog(ids.Identities).ParseCommand(cmd.Platform, cmd.Id, cmd.Payload, snap.Snapshot)
			if err != nil {
				state.logger.Warn("master: invalid command", zap.String("platform", cmd.Platform), zap.String("id", cmd.Id), zap.Error(err))
				return
			}
			state.sendCommand(ctx, command)
		})
	})
}

func (state *MasterOfPuppetsActor) sendCommand(ctx actor.Context, command domain.Command) {
	future := ctx.RequestFuture(state.coordinatorActor, domain.CommandRequest{Command: command}, 30*time.Second)
	ctx.ReenterAfter(future, func(res any, err error) {
		if err == nil {
			if resp, ok := res.(domain.CommandResponse); ok {
				err = resp.GetResponseError()
			}
		}
		if err != nil {
			state.logger.Warn("master: command failed", zap.String("command", command.CommandKind()), zap.Error(err))
			return
		}
		state.logger.Info("master: command applied", zap.String("command", command.CommandKind()))
	})
}

func (state *MasterOfPuppetsActor) restartDecider(reason any) actor.Directive {
	state.logger.Warn("master: child failed, restarting", zap.Any("reason", reason))
	return actor.RestartDirective
}

func (state *MasterOfPuppetsActor) startDeviceActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return state.deviceActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(deviceProps, domain.ACTOR_ID_DEVICE)
}

func (state *MasterOfPuppetsActor) startCoordinatorActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(3, 30*time.Second, state.restartDecider)

	coordinatorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(state.config, state.deviceActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(coordinatorProps, domain.ACTOR_ID_COORDINATOR)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, state.restartDecider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.coordinatorActor, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset() {
	state.healthy = make(map[string]bool, len(state.expected))
	state.reasons = make(map[string]string)
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return len(state.healthy) == len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) reason() string {
	var parts []string
	for _, id := range state.expected {
		if _, ok := state.healthy[id]; !ok {
			parts = append(parts, id+": no response")
		} else if !state.healthy[id] {
			parts = append(parts, fmt.Sprintf("%s: %s", id, state.reasons[id]))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		Reason:  state.reason(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
