package mqtt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/entity"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = entity.MQTT_PAYLOAD_ON
	MQTT_PAYLOAD_OFF     = entity.MQTT_PAYLOAD_OFF
	MQTT_PAYLOAD_NONE    = "None"
	PLATFORM_SERVICE     = "service"
)

var ErrNotACommand = errors.New("invalid command")

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("e3dc2mqtt_%s", uuid.NewString()[:8]))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client: mqtt.NewClient(opts),
		cfg:    cfg.MQTT,
		extractors: []commandExtractor{
			{entity.PLATFORM_SWITCH, switchCommandExtractor(cfg.MQTT.BaseTopic)},
			{entity.PLATFORM_NUMBER, inputNumberCommandExtractor(cfg.MQTT.BaseTopic)},
			{entity.PLATFORM_BUTTON, buttonCommandExtractor(cfg.MQTT.BaseTopic)},
			{entity.PLATFORM_SELECT, selectCommandExtractor(cfg.MQTT.BaseTopic)},
			{PLATFORM_SERVICE, serviceCommandExtractor(cfg.MQTT.BaseTopic)},
		},
	}
}

type MQTTClient struct {
	client     mqtt.Client
	cfg        config.MQTTConfig
	extractors []commandExtractor
}

type commandExtractor struct {
	platform string
	regexp   *regexp.Regexp
}

// ParsedMQTTCommand is a message received on a command topic. For services
// Id is the service name and Payload its JSON body.
type ParsedMQTTCommand struct {
	Platform string
	Id       string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) StateTopic(platform, id string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), platform, id)
}

func (c *MQTTClient) SwitchCommandTopic(switchId string) string {
	return fmt.Sprintf("%s/switch/%s/command", c.baseTopic(), switchId)
}

func (c *MQTTClient) InputNumberCommandTopic(id string) string {
	return fmt.Sprintf("%s/number/%s/set", c.baseTopic(), id)
}

func (c *MQTTClient) ButtonCommandTopic(id string) string {
	return fmt.Sprintf("%s/button/%s/press", c.baseTopic(), id)
}

func (c *MQTTClient) SelectCommandTopic(id string) string {
	return fmt.Sprintf("%s/select/%s/set", c.baseTopic(), id)
}

func (c *MQTTClient) DiscoveryPrefix() string {
	if c.cfg.HADiscoveryTopic == "" {
		return "homeassistant"
	}
	return c.cfg.HADiscoveryTopic
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return c.parseCommand(msg.Topic(), string(msg.Payload()))
}

func (c *MQTTClient) parseCommand(topic, payload string) (*ParsedMQTTCommand, error) {
	for _, ex := range c.extractors {
		matches := ex.regexp.FindAllStringSubmatch(topic, 1)
		if len(matches) == 0 {
			continue
		}
		if len(matches[0]) != 2 {
			return nil, fmt.Errorf("invalid %s command", ex.platform)
		}
		if ex.platform == entity.PLATFORM_NUMBER {
			// try to parse a valid number
			if _, err := strconv.ParseFloat(payload, 64); err != nil {
				return nil, err
			}
		}
		return &ParsedMQTTCommand{
			Platform: ex.platform,
			Id:       matches[0][1],
			Payload:  payload,
		}, nil
	}
	return nil, ErrNotACommand
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandTopic() string {
	return fmt.Sprintf("%s/#", c.baseTopic())
}

func switchCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/switch/([a-zA-Z0-9_-]+)/command$", baseTopic))
}

func inputNumberCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/number/([a-zA-Z0-9_-]+)/set$", baseTopic))
}

func buttonCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/button/([a-zA-Z0-9_-]+)/press$", baseTopic))
}

func selectCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/select/([a-zA-Z0-9_-]+)/set$", baseTopic))
}

func serviceCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/service/([a-z_]+)$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
