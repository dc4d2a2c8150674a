package domain

import (
	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/port"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_DEVICE       = "device"
	ACTOR_ID_COORDINATOR  = "coordinator"
	ACTOR_ID_POWER_MODE   = "powermode"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
	Reason  string
}

// device actor

type DeviceCallRequest struct {
	ActorRequestMixIn
	Op   string
	Call func(port.DeviceProxy) (any, error)
}

type DeviceCallResponse struct {
	ActorResponseMixIn
	Op     string
	Result any
}

// coordinator

type RefreshRequest struct{}

type GetSnapshotRequest struct {
	ActorRequestMixIn
}

type GetSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot  Snapshot
	Connected bool
}

type GetIdentitiesRequest struct {
	ActorRequestMixIn
}

type GetIdentitiesResponse struct {
	ActorResponseMixIn
	Identities Identities
	Connected  bool
}

type CommandRequest struct {
	ActorRequestMixIn
	Command Command
}

type CommandResponse struct {
	ActorResponseMixIn
	Kind string
}

type DiagnosticsRequest struct {
	ActorRequestMixIn
}

type DiagnosticsResponse struct {
	ActorResponseMixIn
	Report map[string]any
}

// power mode

type PowerModeRequest struct {
	ActorRequestMixIn
	Mode  e3dc.PowerMode
	Value *int32
}

type PowerModeResponse struct {
	ActorResponseMixIn
}

// PowerModeResetRequest drops any override without talking to the device.
type PowerModeResetRequest struct{}

// PowerModeStateChanged is reported by the power mode actor to its parent.
type PowerModeStateChanged struct {
	Mode     e3dc.PowerMode
	Value    *int32
	Reported *e3dc.PowerModeState
}

// mqtt

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Buttons      []GenericButton
	Selects      []GenericSelect
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}
