package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/homegrid/gateway-client/internal/constants"
	"github.com/homegrid/gateway-client/internal/device_state"
	"github.com/homegrid/gateway-client/internal/models"
	"github.com/homegrid/gateway-client/internal/state_managers"
)

func newPollingFixture(t *testing.T, backendClient *MockFullStateSource, interval, silence time.Duration) (*PollingService, *device_state.Reconciler, *device_state.GatewayMonitor) {
	t.Helper()
	logger := zerolog.Nop()
	reconciler := device_state.NewReconciler(device_state.NewResolver(true, logger), logger)
	monitor := device_state.NewGatewayMonitor(90*time.Second, 120*time.Second, "", logger)
	cache := state_managers.NewTelemetryCacheManager(filepath.Join(t.TempDir(), "cache.json"), logger)
	p := NewPollingService("premises-1", interval, silence, backendClient, reconciler, monitor, cache, nil, logger)
	return p, reconciler, monitor
}

// TestPollingService_StartStop tests the service lifecycle guards.
func TestPollingService_StartStop(t *testing.T) {
	backendClient := new(MockFullStateSource)
	backendClient.On("FetchDevices", mock.Anything).Return([]models.Device{}, nil)
	backendClient.On("FetchGatewaySnapshot", mock.Anything).Return(&models.GatewaySnapshot{}, nil)

	p, _, _ := newPollingFixture(t, backendClient, time.Hour, time.Minute)

	require.NoError(t, p.Start())
	err := p.Start()
	assert.Error(t, err)
	assert.Equal(t, "polling service is already running", err.Error())

	require.NoError(t, p.Stop())
	err = p.Stop()
	assert.Error(t, err)
	assert.Equal(t, "polling service is not running", err.Error())
}

// TestPollingService_InitialPollPopulatesState verifies that the first poll
// runs immediately and fills the reconciler and monitor.
func TestPollingService_InitialPollPopulatesState(t *testing.T) {
	backendClient := new(MockFullStateSource)
	backendClient.On("FetchDevices", mock.Anything).Return([]models.Device{
		{ID: 1, Code: "SW01", Status: "ON"},
	}, nil)
	backendClient.On("FetchGatewaySnapshot", mock.Anything).Return(&models.GatewaySnapshot{
		Gateway:   &models.Gateway{Serial: "GW-1", Status: constants.GatewayStatusOnline, ReportedOnline: true},
		Telemetry: &models.TelemetrySnapshot{GatewaySerial: "GW-1", CapturedAt: time.Now()},
	}, nil)

	p, reconciler, monitor := newPollingFixture(t, backendClient, time.Hour, time.Minute)

	require.NoError(t, p.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Stop())

	assert.Len(t, reconciler.Devices(), 1)
	assert.Equal(t, constants.LivenessOnline, monitor.Liveness(time.Now()))
	snapshot, stale := monitor.Snapshot(time.Now())
	require.NotNil(t, snapshot)
	assert.False(t, stale)
}

// TestPollingService_SkipsWhenPushHealthy verifies that recent push activity
// suppresses the tick's poll.
func TestPollingService_SkipsWhenPushHealthy(t *testing.T) {
	backendClient := new(MockFullStateSource)
	p, _, monitor := newPollingFixture(t, backendClient, time.Hour, time.Minute)

	monitor.MarkPushActivity(time.Now())

	assert.False(t, p.shouldPoll(time.Now()))
}

// TestPollingService_PollsAfterSilence verifies the fallback fires once the
// push channel has been quiet past the threshold, and always when no push was
// ever received.
func TestPollingService_PollsAfterSilence(t *testing.T) {
	backendClient := new(MockFullStateSource)
	p, _, monitor := newPollingFixture(t, backendClient, time.Hour, time.Minute)

	assert.True(t, p.shouldPoll(time.Now()), "never-pushed premises must poll")

	monitor.MarkPushActivity(time.Now().Add(-2 * time.Minute))
	assert.True(t, p.shouldPoll(time.Now()))
}

// TestPollingService_FailedPollKeepsState verifies that a transient backend
// failure never clears previously applied state.
func TestPollingService_FailedPollKeepsState(t *testing.T) {
	backendClient := new(MockFullStateSource)
	backendClient.On("FetchDevices", mock.Anything).Return([]models.Device{
		{ID: 1, Code: "SW01", Status: "ON"},
	}, nil).Once()
	backendClient.On("FetchGatewaySnapshot", mock.Anything).Return(&models.GatewaySnapshot{
		Gateway: &models.Gateway{Serial: "GW-1", ReportedOnline: true},
	}, nil).Once()
	backendClient.On("FetchDevices", mock.Anything).Return(nil, assert.AnError)

	p, reconciler, _ := newPollingFixture(t, backendClient, time.Hour, time.Minute)

	require.NoError(t, p.ForceRefresh(context.Background()))
	assert.Error(t, p.ForceRefresh(context.Background()))

	assert.Len(t, reconciler.Devices(), 1, "state survives a failed poll")
}

// TestPollingService_PersistsGatewaySerial verifies that a poll records the
// paired gateway serial on disk, and only rewrites it when it changes.
func TestPollingService_PersistsGatewaySerial(t *testing.T) {
	backendClient := new(MockFullStateSource)
	backendClient.On("FetchDevices", mock.Anything).Return([]models.Device{}, nil)
	backendClient.On("FetchGatewaySnapshot", mock.Anything).Return(&models.GatewaySnapshot{
		Gateway: &models.Gateway{Serial: "GW-1", ReportedOnline: true},
	}, nil)

	logger := zerolog.Nop()
	reconciler := device_state.NewReconciler(device_state.NewResolver(true, logger), logger)
	monitor := device_state.NewGatewayMonitor(90*time.Second, 120*time.Second, "", logger)
	cache := state_managers.NewTelemetryCacheManager(filepath.Join(t.TempDir(), "cache.json"), logger)
	identity := &FakeIdentityStore{}
	p := NewPollingService("premises-1", time.Hour, time.Minute, backendClient, reconciler, monitor, cache, identity, logger)

	require.NoError(t, p.ForceRefresh(context.Background()))
	assert.Equal(t, "GW-1", identity.GetGatewaySerial())

	require.NoError(t, p.ForceRefresh(context.Background()))
	assert.Equal(t, 1, identity.Saves(), "unchanged serial is not rewritten")
}

// TestPollingService_ForceRefreshIgnoresRecency verifies that a forced refresh
// polls even when the push channel is healthy.
func TestPollingService_ForceRefreshIgnoresRecency(t *testing.T) {
	backendClient := new(MockFullStateSource)
	backendClient.On("FetchDevices", mock.Anything).Return([]models.Device{}, nil)
	backendClient.On("FetchGatewaySnapshot", mock.Anything).Return(&models.GatewaySnapshot{}, nil)

	p, _, monitor := newPollingFixture(t, backendClient, time.Hour, time.Minute)
	monitor.MarkPushActivity(time.Now())

	require.NoError(t, p.ForceRefresh(context.Background()))
	backendClient.AssertCalled(t, "FetchDevices", mock.Anything)
}
