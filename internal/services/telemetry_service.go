package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/internal/constants"
	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/models"
	"github.com/homegrid/gateway-client/pkg/mqtt"
)

// CredentialFetcher reads the registered credential list from the backend.
type CredentialFetcher interface {
	FetchCredentials(ctx context.Context) ([]models.Credential, error)
}

// TelemetryService subscribes to the premises push topics and routes each
// message to the reconciler and gateway monitor. Every inbound message, on any
// topic, counts as push-channel activity for liveness purposes. Malformed
// payloads are logged and dropped.
type TelemetryService struct {
	PremisesID string
	QOS        int
	MqttClient mqtt.MQTTClient
	Reconciler *device_state.Reconciler
	Monitor    *device_state.GatewayMonitor
	Backend    CredentialFetcher
	Logger     zerolog.Logger

	mu          sync.Mutex
	handles     []string
	running     bool
	credentials []models.Credential
}

// NewTelemetryService initializes a new TelemetryService.
func NewTelemetryService(premisesID string, qos int, mqttClient mqtt.MQTTClient, reconciler *device_state.Reconciler,
	monitor *device_state.GatewayMonitor, backendClient CredentialFetcher, logger zerolog.Logger) *TelemetryService {

	return &TelemetryService{
		PremisesID: premisesID,
		QOS:        qos,
		MqttClient: mqttClient,
		Reconciler: reconciler,
		Monitor:    monitor,
		Backend:    backendClient,
		Logger:     logger,
	}
}

// Start subscribes to all push topics for the premises.
func (t *TelemetryService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.Logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{constants.DeviceStatusTopic(t.PremisesID), t.handleDeviceStatus},
		{constants.GatewayStatusTopic(t.PremisesID), t.handleGatewayStatus},
		{constants.TelemetryTopic(t.PremisesID), t.handleTelemetry},
		{constants.CredentialListChangedTopic(t.PremisesID), t.handleCredentialListChanged},
		{constants.EmergencyTopic(t.PremisesID), t.handleEmergency},
	}

	for _, sub := range subscriptions {
		handle, err := t.MqttClient.Subscribe(sub.topic, byte(t.QOS), sub.handler)
		if err != nil {
			t.Logger.Error().Err(err).Str("topic", sub.topic).Msg("Failed to subscribe, will be retried on reconnect")
		}
		t.handles = append(t.handles, handle)
	}

	t.running = true
	t.Logger.Info().Str("premises_id", t.PremisesID).Msg("TelemetryService started successfully")
	return nil
}

// Stop drops every push subscription. Safe to call repeatedly.
func (t *TelemetryService) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		t.Logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}

	for _, handle := range t.handles {
		t.MqttClient.Unsubscribe(handle)
	}
	t.handles = nil
	t.running = false

	t.Logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

// Credentials returns the most recently fetched credential list.
func (t *TelemetryService) Credentials() []models.Credential {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := make([]models.Credential, len(t.credentials))
	copy(list, t.credentials)
	return list
}

// RefreshCredentials re-fetches the credential list from the backend.
func (t *TelemetryService) RefreshCredentials(ctx context.Context) error {
	credentials, err := t.Backend.FetchCredentials(ctx)
	if err != nil {
		t.Logger.Warn().Err(err).Msg("Failed to refresh credential list")
		return err
	}

	t.mu.Lock()
	t.credentials = credentials
	t.mu.Unlock()

	t.Logger.Debug().Int("credentials", len(credentials)).Msg("Credential list refreshed")
	return nil
}

func (t *TelemetryService) handleDeviceStatus(topic string, payload []byte) {
	t.Monitor.MarkPushActivity(time.Now())

	var delta models.DeviceDelta
	if err := json.Unmarshal(payload, &delta); err != nil {
		t.Logger.Warn().Err(err).Str("topic", topic).Msg("Malformed device status payload, dropping")
		return
	}

	if !t.Reconciler.ApplyPushDelta(delta) {
		// Expected during initial load races; the device may simply not be
		// in the local view yet.
		t.Logger.Debug().Str("topic", topic).Msg("Device delta did not resolve to a known device")
	}
}

func (t *TelemetryService) handleGatewayStatus(topic string, payload []byte) {
	t.Monitor.MarkPushActivity(time.Now())

	var event models.GatewayStatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Logger.Warn().Err(err).Str("topic", topic).Msg("Malformed gateway status payload, dropping")
		return
	}

	t.Monitor.ApplyGatewayStatusEvent(event)
}

func (t *TelemetryService) handleTelemetry(topic string, payload []byte) {
	t.Monitor.MarkPushActivity(time.Now())

	var snapshot models.TelemetrySnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		t.Logger.Warn().Err(err).Str("topic", topic).Msg("Malformed telemetry payload, dropping")
		return
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now()
	}

	t.Monitor.SetSnapshot(&snapshot, false)
}

func (t *TelemetryService) handleCredentialListChanged(topic string, payload []byte) {
	t.Monitor.MarkPushActivity(time.Now())

	// Signal-only topic: the payload carries nothing useful, just re-fetch.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = t.RefreshCredentials(ctx)
	}()
}

func (t *TelemetryService) handleEmergency(topic string, payload []byte) {
	t.Monitor.MarkPushActivity(time.Now())

	var event models.EmergencyEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Logger.Warn().Err(err).Str("topic", topic).Msg("Malformed emergency payload, dropping")
		return
	}

	if event.Active {
		t.Logger.Warn().Str("type", event.Type).Msg("Emergency reported by gateway")
	} else {
		t.Logger.Info().Str("type", event.Type).Msg("Emergency cleared")
	}
	t.Monitor.SetEmergency(event)
}
