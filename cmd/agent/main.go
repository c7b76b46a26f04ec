package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluelock/agent/internal/service_registry"
	"github.com/bluelock/agent/internal/utils"
	"github.com/bluelock/agent/pkg/bluetooth"
	"github.com/bluelock/agent/pkg/file"
	"github.com/bluelock/agent/pkg/mqtt"
	"github.com/bluelock/agent/pkg/settings"
	"github.com/bluelock/agent/pkg/sysaction"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	deviceFlag := flag.String("device", "", "target device address (overrides the saved selection)")
	listDevices := flag.Bool("list-devices", false, "list known Bluetooth devices and exit")
	flag.Parse()

	// Human-readable console output; the level is applied after the
	// config is loaded.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(config.Logging.Level); err == nil {
		log = log.Level(level)
	} else {
		log.Warn().Str("level", config.Logging.Level).Msg("Unknown log level, keeping info")
	}

	scanner, err := newScanner(config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Bluetooth scanner")
	}
	defer scanner.Close()

	if *listDevices {
		if err := printDevices(scanner); err != nil {
			log.Fatal().Err(err).Msg("Failed to list devices")
		}
		return
	}

	store := settings.NewStore(config.Settings.DeviceFile, fileClient)
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device selection")
	}

	target, err := resolveTarget(store, scanner, *deviceFlag, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve target device")
	}

	actions, err := sysaction.New(sysaction.AwayMode(config.Services.Monitor.AwayAction), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize system actions")
	}

	// The MQTT connection is only brought up when presence publishing is
	// enabled; the monitor itself never touches the network.
	var mqttClient mqtt.MQTTClient
	var mqttService *mqtt.MqttService
	if config.Services.Presence.Enabled {
		config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT client ID")

		mqttService = mqtt.NewMqttService(fileClient)
		if err := mqttService.Initialize(config.MQTT.Broker, config.MQTT.ClientID, config.MQTT.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		mqttClient = mqttService
	}

	serviceRegistry := service_registry.NewServiceRegistry(scanner, actions, mqttClient, log)
	if err := serviceRegistry.RegisterServices(config, target); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Str("device", target.Address).Str("name", target.Name).Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Failed to stop services cleanly")
	}
	if mqttService != nil {
		mqttService.Disconnect(250)
	}
}

// newScanner builds the configured Bluetooth backend.
func newScanner(config *utils.Config, log zerolog.Logger) (bluetooth.Scanner, error) {
	switch config.Scanner.Backend {
	case "bluez":
		return bluetooth.NewBlueZScanner(config.Scanner.Adapter, log)
	case "powershell":
		return bluetooth.NewPowerShellScanner(log), nil
	default:
		return nil, fmt.Errorf("unknown scanner backend %q", config.Scanner.Backend)
	}
}

// resolveTarget picks the device to monitor: the -device flag wins, then
// the saved selection, then auto-selection over the paired devices. Flag
// overrides and auto-selections are saved for the next run.
func resolveTarget(store settings.StoreInterface, scanner bluetooth.Scanner, override string, log zerolog.Logger) (settings.Selection, error) {
	if override != "" {
		sel := settings.Selection{Address: bluetooth.NormalizeAddress(override)}
		if err := store.Save(sel); err != nil {
			log.Warn().Err(err).Msg("Failed to save device selection")
		}
		return sel, nil
	}

	if saved := store.Get(); saved.Address != "" {
		return saved, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	devices, err := scanner.Devices(ctx)
	if err != nil {
		return settings.Selection{}, fmt.Errorf("enumerate devices: %w", err)
	}

	picked, ok := bluetooth.PickTarget(devices)
	if !ok {
		return settings.Selection{}, fmt.Errorf("no Bluetooth devices found; pair a device or pass -device")
	}

	sel := settings.Selection{Address: picked.Address, Name: picked.Name}
	log.Info().Str("device", sel.Address).Str("name", sel.Name).Msg("Auto-selected target device")
	if err := store.Save(sel); err != nil {
		log.Warn().Err(err).Msg("Failed to save device selection")
	}
	return sel, nil
}

// printDevices writes the ranked device table for the selection flow.
func printDevices(scanner bluetooth.Scanner) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	devices, err := scanner.Devices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No Bluetooth devices found.")
		return nil
	}

	fmt.Printf("%-20s %-35s %-10s %s\n", "ADDRESS", "NAME", "CONNECTED", "RSSI")
	for _, d := range bluetooth.Rank(devices) {
		rssi := "-"
		if d.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *d.RSSI)
		}
		fmt.Printf("%-20s %-35s %-10t %s\n", d.Address, d.Name, d.Connected, rssi)
	}
	return nil
}
