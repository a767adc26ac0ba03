package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/backend"
	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/service_registry"
	"github.com/homegrid/gateway-client/internal/state_managers"
	"github.com/homegrid/gateway-client/internal/utils"
	"github.com/homegrid/gateway-client/pkg/file"
	"github.com/homegrid/gateway-client/pkg/mqtt"
	"github.com/homegrid/gateway-client/pkg/premises"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Load the persisted premises identity
	premisesInfo := premises.NewPremisesInfo(config.Premises.InfoFile, fileClient)
	if err := premisesInfo.LoadPremisesInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load premises information")
	}
	premisesID := premisesInfo.GetPremisesID()
	if premisesID == "" {
		log.Fatal().Msg("No premises ID configured, cannot start")
	}
	log.Info().Str("premises_id", premisesID).Msg("Premises identity loaded")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient, log)
	if err := mqttClient.Initialize(config.MQTT.Broker, config.MQTT.ClientID, config.MQTT.CACertificate); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}
	if err := mqttClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
	}

	// Backend REST client
	backendClient := backend.NewClient(config.Backend.BaseURL, premisesID, config.Backend.Timeout, config.Backend.Retries, log)

	// Device state core
	resolver := device_state.NewResolver(config.Identity.AllowSubstringMatch, log)
	reconciler := device_state.NewReconciler(resolver, log)
	monitor := device_state.NewGatewayMonitor(
		config.Liveness.PushGraceWindow,
		config.Liveness.StalenessThreshold,
		config.Liveness.MinFirmware,
		log,
	)

	// Resurrect the last known telemetry so the view is not blank until the
	// first poll. Restored data stays flagged stale until live data arrives.
	cache := state_managers.NewTelemetryCacheManager(config.Cache.File, log)
	if cached, err := cache.Restore(premisesID, config.Cache.MaxAge); err != nil {
		log.Warn().Err(err).Msg("Failed to restore cached telemetry")
	} else if cached != nil {
		monitor.SetSnapshot(cached, true)
		log.Info().Time("captured_at", cached.CapturedAt).Msg("Restored last known telemetry from cache")
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, backendClient, reconciler, monitor, cache, premisesInfo, log)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, premisesID); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Error while stopping services")
	}
	mqttClient.Disconnect(250)

	// Give in-flight handlers a moment to drain before exit.
	time.Sleep(100 * time.Millisecond)
}
