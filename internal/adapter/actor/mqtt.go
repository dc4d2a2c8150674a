package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/entity"
	"github.com/berfenger/e3dc2mqtt/internal/mqtt"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config       *config.Config
	behavior     actor.Behavior
	stash        *actorutil.Stash
	client       *mqtt.MQTTClient
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	published    domain.Snapshot
	sink         chan<- domain.PublishMessageRequest
	logger       *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			} else if err != mqtt.ErrNotACommand {
				state.logger.Warn("mqtt: discarded command", zap.String("topic", m.Topic()), zap.Error(err))
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.subscribeSnapshots(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.SnapshotUpdatedEvent:
		messages := state.snapshotMessages(msg)
		state.logger.Debug("mqtt@default SnapshotUpdatedEvent", zap.Int("changed", len(messages)))
		for _, m := range messages {
			state.publishRaw(m)
		}
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		messages, err := state.discoveryMessages(msg)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		for _, m := range messages {
			state.publishRaw(m)
		}
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// subscribeSnapshots routes snapshot updates from the event stream to the
// actor mailbox.
func (state *MQTTActor) subscribeSnapshots(ctx actor.Context) {
	if state.eventStream == nil {
		return
	}
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	state.subscription = state.eventStream.SubscribeWithPredicate(func(evt any) {
		root.Send(self, evt)
	}, func(evt any) bool {
		_, ok := evt.(domain.SnapshotUpdatedEvent)
		return ok
	})
}

// snapshotMessages returns the state messages of the keys changed since the
// last published snapshot. Removed keys get their retained state cleared.
func (state *MQTTActor) snapshotMessages(evt domain.SnapshotUpdatedEvent) []rawMessage {
	catalog := entity.NewCatalog(evt.Identities)
	changed, removed := evt.Snapshot.Diff(state.published)
	state.published = evt.Snapshot

	var messages []rawMessage
	for _, key := range changed.Keys() {
		platform := catalog.Platform(key)
		messages = append(messages, rawMessage{
			topic:   state.client.StateTopic(platform, key),
			message: mqtt.StatePayload(changed[key]),
			retain:  retainedPlatform(platform),
		})
	}
	for _, key := range removed {
		messages = append(messages, rawMessage{
			topic:  state.client.StateTopic(catalog.Platform(key), key),
			retain: true,
		})
	}
	return messages
}

func (state *MQTTActor) discoveryMessages(req domain.PublishDiscoveryRequest) ([]rawMessage, error) {
	var messages []rawMessage
	add := func(topic string, cfg mqtt.HADiscoveryConfig) error {
		payload, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		messages = append(messages, rawMessage{topic: topic, message: string(payload), retain: true})
		return nil
	}
	for i := range req.Sensors {
		if err := add(state.client.HADiscoverySensorTopic(req.Sensors[i]), mqtt.GenericSensorToHADiscoveryMessage(state.client, req.Sensors[i])); err != nil {
			return messages, err
		}
	}
	for i := range req.Switches {
		if err := add(state.client.HADiscoverySwitchTopic(req.Switches[i]), mqtt.GenericSwitchToHADiscoveryMessage(state.client, req.Switches[i])); err != nil {
			return messages, err
		}
	}
	for i := range req.InputNumbers {
		if err := add(state.client.HADiscoveryInputNumberTopic(req.InputNumbers[i]), mqtt.GenericInputNumberToHADiscoveryMessage(state.client, req.InputNumbers[i])); err != nil {
			return messages, err
		}
	}
	for i := range req.Buttons {
		if err := add(state.client.HADiscoveryButtonTopic(req.Buttons[i]), mqtt.GenericButtonToHADiscoveryMessage(state.client, req.Buttons[i])); err != nil {
			return messages, err
		}
	}
	for i := range req.Selects {
		if err := add(state.client.HADiscoverySelectTopic(req.Selects[i]), mqtt.GenericSelectToHADiscoveryMessage(state.client, req.Selects[i])); err != nil {
			return messages, err
		}
	}
	return messages, nil
}

func (state *MQTTActor) publishRaw(msg rawMessage) {
	state.logger.Sugar().Debugf("mqtt@publish: state publish %s => %s", msg.topic, msg.message)
	state.client.Publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
		if err != nil {
			state.logger.Error("mqtt@publish could not publish a message", zap.String("topic", msg.topic), zap.Error(err))
		}
	}, 5*time.Second)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func retainedPlatform(platform string) bool {
	switch platform {
	case entity.PLATFORM_SWITCH, entity.PLATFORM_NUMBER, entity.PLATFORM_SELECT:
		return true
	default:
		return false
	}
}

// Dummy actor, never connects. Every message it would publish goes to sink.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger, sink chan<- domain.PublishMessageRequest) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		sink:        sink,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeSnapshots(ctx)
	case *actor.Stopping:
		if state.subscription != nil {
			state.eventStream.Unsubscribe(state.subscription)
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.SnapshotUpdatedEvent:
		state.toSink(state.snapshotMessages(msg))
	case domain.PublishDiscoveryRequest:
		messages, err := state.discoveryMessages(msg)
		state.toSink(messages)
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			})
		}
	case domain.PublishMessageRequest:
		state.toSink([]rawMessage{{topic: msg.Topic, message: msg.Payload, retain: msg.Retain}})
		if replyTo := actorutil.ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.PublishMessageResponse{})
		}
	}
}

func (state *MQTTActor) toSink(messages []rawMessage) {
	if state.sink == nil {
		return
	}
	for _, m := range messages {
		state.sink <- domain.PublishMessageRequest{Topic: m.topic, Payload: m.message, Retain: m.retain}
	}
}
