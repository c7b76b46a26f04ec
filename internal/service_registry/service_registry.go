package service_registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluelock/agent/internal/services"
	"github.com/bluelock/agent/internal/utils"
	"github.com/bluelock/agent/pkg/bluetooth"
	"github.com/bluelock/agent/pkg/mqtt"
	"github.com/bluelock/agent/pkg/settings"
	"github.com/bluelock/agent/pkg/sysaction"
	"github.com/rs/zerolog"
)

// Service is the lifecycle contract every registered service implements.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the agent's services.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	scanner     bluetooth.Scanner
	actions     sysaction.Actions
	mqttClient  mqtt.MQTTClient
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(scanner bluetooth.Scanner, actions sysaction.Actions,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		scanner:    scanner,
		actions:    actions,
		mqttClient: mqttClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on
// configuration. The presence publisher registers before the monitor so
// it is running when the first transition fires.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, target settings.Selection) error {
	monitorCfg := config.Services.Monitor
	if !monitorCfg.Enabled {
		return errors.New("monitor service is disabled in configuration")
	}

	monitor := services.NewMonitorService(
		target,
		monitorCfg.Interval*time.Second,
		monitorCfg.RSSIThreshold,
		monitorCfg.MissCount,
		monitorCfg.HitCount,
		monitorCfg.StatsEvery,
		sr.scanner,
		sr.actions,
		sr.Logger,
	)

	presenceCfg := config.Services.Presence
	if presenceCfg.Enabled {
		if sr.mqttClient == nil {
			return errors.New("presence service is enabled but no MQTT client is configured")
		}
		presence := services.NewPresenceService(
			presenceCfg.Topic,
			presenceCfg.Interval*time.Second,
			presenceCfg.QOS,
			config.MQTT.ClientID,
			monitor,
			sr.mqttClient,
			sr.Logger,
		)
		monitor.OnTransition = presence.PublishTransition
		sr.RegisterService("presence", presence)
	}

	sr.RegisterService("monitor", monitor)

	sr.Logger.Info().Msgf("Registered services in order: %v", sr.serviceKeys)
	return nil
}
