package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel    zapcore.Level
	Device      DeviceConfig      `mapstructure:"device"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Port        uint              `mapstructure:"port"`
	HttpLog     bool              `mapstructure:"http_log"`
}

type DeviceConfig struct {
	Host          string
	Port          uint
	Username      string
	Password      string
	RSCPKey       string `mapstructure:"rscp_key"`
	UnitId        uint8  `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type CoordinatorConfig struct {
	RefreshIntervalMillis      uint32                  `mapstructure:"refresh_interval_millis"`
	StatsRefreshIntervalMillis uint32                  `mapstructure:"stats_refresh_interval_millis"`
	PowerModeIntervalMillis    uint32                  `mapstructure:"power_mode_interval_millis"`
	CreateBatteryDevices       bool                    `mapstructure:"create_battery_devices"`
	Powermeters                []e3dc.PowermeterConfig `mapstructure:"powermeters"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c DeviceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// CallTimeout bounds one device actor call, which may chain several
// device requests.
func (c DeviceConfig) CallTimeout() time.Duration {
	timeout := 10 * c.Timeout()
	if timeout < 10*time.Second {
		return 10 * time.Second
	}
	return timeout
}

func (c DeviceConfig) ConnectConfig() e3dc.ConnectConfig {
	return e3dc.ConnectConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Key:      c.RSCPKey,
	}
}

func (c CoordinatorConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMillis) * time.Millisecond
}

func (c CoordinatorConfig) StatsRefreshInterval() time.Duration {
	return time.Duration(c.StatsRefreshIntervalMillis) * time.Millisecond
}

func (c CoordinatorConfig) PowerModeInterval() time.Duration {
	return time.Duration(c.PowerModeIntervalMillis) * time.Millisecond
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// CheckPowermeters validates the extra powermeter list: keys must be unique
// and usable as topic ids.
func CheckPowermeters(meters []e3dc.PowermeterConfig) error {
	keyRegexp := regexp.MustCompile("^[a-z0-9-]+$")
	seen := map[string]bool{}
	for _, m := range meters {
		if !keyRegexp.MatchString(m.Key) {
			return errors.New("invalid powermeter key " + m.Key + ". can only contain lowercase letters, numbers and dashes")
		}
		if seen[m.Key] {
			return errors.New("duplicated powermeter key " + m.Key)
		}
		seen[m.Key] = true
	}
	return nil
}
