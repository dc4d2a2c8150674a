package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/e3dc2mqtt/internal/adapter/actor"
	"github.com/berfenger/e3dc2mqtt/internal/adapter/proxy"
	"github.com/berfenger/e3dc2mqtt/internal/config"
	"github.com/berfenger/e3dc2mqtt/internal/core/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/internal/metrics"
	"github.com/berfenger/e3dc2mqtt/internal/scheduler"
	"github.com/berfenger/e3dc2mqtt/internal/server"
	"github.com/berfenger/e3dc2mqtt/internal/util/actorutil"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	scheduler.SetQuartzLogger(logger)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instrument, err := metrics.NewModbusInstrument(registry)
	if err != nil {
		panic(err)
	}
	eventStream := &eventstream.EventStream{}
	collector := metrics.NewSnapshotCollector()
	collector.Subscribe(eventStream)
	registry.MustRegister(collector)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, eventStream, deviceActorProvider(cfg, instrument, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	// refresh cadence
	refresh := scheduler.NewRefreshScheduler(cfg.Coordinator.RefreshInterval(), ctx, pid, logger)
	if err := refresh.Start(context.Background()); err != nil {
		panic(err)
	}

	server := server.NewServer(*cfg, ctx, pid, registry)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	refresh.Stop()
	collector.Unsubscribe()
	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => E3DC2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("E3DC2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("e3dc2mqtt")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.WarnLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Device.Host == "" {
		return nil, errors.New("config param device.host is required")
	}
	if cfg.Coordinator.RefreshIntervalMillis < 2000 {
		return nil, errors.New("config param coordinator.refresh_interval_millis should be >= 2000ms")
	}
	if cfg.Coordinator.PowerModeIntervalMillis < 1000 {
		return nil, errors.New("config param coordinator.power_mode_interval_millis should be >= 1000ms")
	}
	if cfg.Coordinator.StatsRefreshIntervalMillis < cfg.Coordinator.RefreshIntervalMillis {
		return nil, errors.New("config param coordinator.stats_refresh_interval_millis should be >= coordinator.refresh_interval_millis")
	}
	if err := config.CheckPowermeters(cfg.Coordinator.Powermeters); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func deviceActorProvider(cfg *config.Config, instrument *e3dc.ModbusInstrument, logger *zap.Logger) actor.DeviceActorProvider {
	return func() *adactor.DeviceActor {
		client := e3dc.NewModbusClient(cfg.Device.Timeout(), cfg.Device.UnitId, logger, instrument)
		p := proxy.NewE3DCProxy(client, cfg.Device.ConnectConfig(), logger)
		return adactor.NewDeviceActor(p, cfg.Device.CallTimeout(), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("device.port", 502)
	viper.SetDefault("device.unit_id", 1)
	viper.SetDefault("device.timeout_millis", 1000)
	viper.SetDefault("coordinator.refresh_interval_millis", 10000)
	viper.SetDefault("coordinator.stats_refresh_interval_millis", 60000)
	viper.SetDefault("coordinator.power_mode_interval_millis", 10000)
	viper.SetDefault("coordinator.create_battery_devices", false)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "e3dc")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.Device.Password = "*redacted*"
	cfg.Device.RSCPKey = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
