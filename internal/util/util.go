package util

import (
	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Device: config.DeviceConfig{
			Host:          "-.-.-.-",
			Port:          502,
			Username:      "user",
			Password:      "password",
			RSCPKey:       "key",
			UnitId:        1,
			TimeoutMillis: 1000,
		},
		Coordinator: config.CoordinatorConfig{
			RefreshIntervalMillis:      10000,
			StatsRefreshIntervalMillis: 60000,
			PowerModeIntervalMillis:    10000,
			CreateBatteryDevices:       true,
			Powermeters: []e3dc.PowermeterConfig{
				{Index: 1, Key: "pv-east", Negate: true},
			},
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "e3dc",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
