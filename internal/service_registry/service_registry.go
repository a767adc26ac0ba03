package service_registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/backend"
	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/registry"
	"github.com/homegrid/gateway-client/internal/services"
	"github.com/homegrid/gateway-client/internal/state_managers"
	"github.com/homegrid/gateway-client/internal/utils"
	"github.com/homegrid/gateway-client/pkg/mqtt"
)

// ServiceRegistry manages the lifecycle of the client's services: started in
// registration order, stopped in reverse.
type ServiceRegistry struct {
	services    map[string]registry.Service
	serviceKeys []string

	mqttClient    mqtt.MQTTClient
	backendClient *backend.Client
	reconciler    *device_state.Reconciler
	monitor       *device_state.GatewayMonitor
	cache         *state_managers.TelemetryCacheManager
	identity      services.GatewayIdentityStore
	Logger        zerolog.Logger

	// UI-facing handles kept after registration.
	Telemetry  *services.TelemetryService
	Polling    *services.PollingService
	Enrollment *services.EnrollmentService
	Command    *services.CommandService
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, backendClient *backend.Client, reconciler *device_state.Reconciler,
	monitor *device_state.GatewayMonitor, cache *state_managers.TelemetryCacheManager,
	identity services.GatewayIdentityStore, logger zerolog.Logger) *ServiceRegistry {

	return &ServiceRegistry{
		services:      make(map[string]registry.Service),
		mqttClient:    mqttClient,
		backendClient: backendClient,
		reconciler:    reconciler,
		monitor:       monitor,
		cache:         cache,
		identity:      identity,
		Logger:        logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
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

// RegisterServices initializes and registers enabled services based on configuration.
// Telemetry is registered before polling so push recency is tracked from the
// first tick, and enrollment last since it layers on both.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, premisesID string) error {
	// The command surface has no lifecycle of its own; it is always available
	// to the UI layer alongside the registered services.
	sr.Command = services.NewCommandService(sr.backendClient, sr.reconciler, sr.monitor, sr.identity, sr.Logger)

	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "telemetry",
			enabled: config.Services.Telemetry.Enabled,
			constructor: func() (registry.Service, error) {
				sr.Telemetry = services.NewTelemetryService(
					premisesID,
					config.Services.Telemetry.QOS,
					sr.mqttClient,
					sr.reconciler,
					sr.monitor,
					sr.backendClient,
					sr.Logger,
				)
				return sr.Telemetry, nil
			},
		},
		{
			name:    "polling",
			enabled: config.Services.Polling.Enabled,
			constructor: func() (registry.Service, error) {
				sr.Polling = services.NewPollingService(
					premisesID,
					config.Services.Polling.Interval,
					config.Services.Polling.SilenceThreshold,
					sr.backendClient,
					sr.reconciler,
					sr.monitor,
					sr.cache,
					sr.identity,
					sr.Logger,
				)
				return sr.Polling, nil
			},
		},
		{
			name:    "enrollment",
			enabled: config.Services.Enrollment.Enabled,
			constructor: func() (registry.Service, error) {
				var refresher services.CredentialRefresher
				if sr.Telemetry != nil {
					refresher = sr.Telemetry
				}
				sr.Enrollment = services.NewEnrollmentService(
					premisesID,
					config.Services.Enrollment.QOS,
					config.Services.Enrollment.Timeout,
					sr.mqttClient,
					sr.backendClient,
					sr.monitor,
					refresher,
					sr.Logger,
				)
				return sr.Enrollment, nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
